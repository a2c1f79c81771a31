// Package docpipeline prepares diploma documents for registration and
// retrieves them for verification.
//
// Ingestion hashes the raw document with keccak-256 (the hash that gets bound
// into the certificate), optionally encrypts it with a passphrase-derived key,
// and persists the resulting payload in content-addressed storage. Retrieval
// reverses the process and checks the recovered document against the hash
// recorded in the certificate, so a tampered storage backend cannot serve a
// forged document.
package docpipeline

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/attestia/diploma-registry-backend/cryptoutils"
	"github.com/attestia/diploma-registry-backend/interfaces"
)

const casScheme = "cas"

// StoredDocument describes a document after ingestion. DocHash is the value
// to bind into the issuance request; StorageURI is the location reference the
// certificate will carry.
type StoredDocument struct {
	DocHash    interfaces.DocHash
	ContentID  interfaces.ContentID
	StorageURI string
	Encrypted  bool
}

// Pipeline moves documents between callers and a storage backend.
type Pipeline struct {
	backend interfaces.StorageBackend
	log     *slog.Logger
}

// NewPipeline creates a document pipeline backed by the given storage backend.
func NewPipeline(backend interfaces.StorageBackend, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{backend: backend, log: log}
}

// Ingest hashes the document, optionally encrypts it when a passphrase is
// provided, and stores the payload. The keccak-256 hash is always computed
// over the plaintext so the certificate commits to the document itself, not
// to a ciphertext.
func (p *Pipeline) Ingest(ctx context.Context, document, passphrase []byte) (StoredDocument, error) {
	if len(document) == 0 {
		return StoredDocument{}, fmt.Errorf("empty document")
	}

	docHash := cryptoutils.DocumentHash(document)

	payload := document
	encrypted := false
	if len(passphrase) > 0 {
		salt, err := cryptoutils.NewSalt()
		if err != nil {
			return StoredDocument{}, fmt.Errorf("failed to generate document salt: %w", err)
		}

		key := cryptoutils.DeriveDocumentKey(passphrase, salt[:])
		ciphertext, err := cryptoutils.EncryptDocument(key, document)
		if err != nil {
			return StoredDocument{}, fmt.Errorf("failed to encrypt document: %w", err)
		}

		// Salt travels with the ciphertext so retrieval only needs the passphrase.
		payload = append(salt[:], ciphertext...)
		encrypted = true
	}

	contentID, err := p.backend.Store(ctx, payload, interfaces.DocumentType)
	if err != nil {
		return StoredDocument{}, fmt.Errorf("failed to store document: %w", err)
	}

	stored := StoredDocument{
		DocHash:    docHash,
		ContentID:  contentID,
		StorageURI: formatStorageURI(contentID, encrypted),
		Encrypted:  encrypted,
	}

	p.log.Info("Ingested document",
		slog.String("doc_hash", docHash.String()),
		slog.String("content_id", hex.EncodeToString(contentID[:8])),
		slog.Bool("encrypted", encrypted))

	return stored, nil
}

// Retrieve fetches the document behind a storage URI, decrypts it if needed,
// and verifies it against the expected document hash.
func (p *Pipeline) Retrieve(ctx context.Context, storageURI string, expected interfaces.DocHash, passphrase []byte) ([]byte, error) {
	contentID, encrypted, err := ParseStorageURI(storageURI)
	if err != nil {
		return nil, err
	}

	payload, err := p.backend.Fetch(ctx, contentID, interfaces.DocumentType)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}

	document := payload
	if encrypted {
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("document is encrypted, passphrase required")
		}
		if len(payload) < 16 {
			return nil, fmt.Errorf("encrypted payload too short")
		}

		key := cryptoutils.DeriveDocumentKey(passphrase, payload[:16])
		document, err = cryptoutils.DecryptDocument(key, payload[16:])
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt document: %w", err)
		}
	}

	if got := cryptoutils.DocumentHash(document); got != expected {
		p.log.Warn("Document hash mismatch",
			slog.String("expected", expected.String()),
			slog.String("got", got.String()))
		return nil, fmt.Errorf("document hash mismatch: expected %s, got %s", expected, got)
	}

	return document, nil
}

// StoreMetadata persists certificate metadata (JSON) alongside the document
// and returns its content ID.
func (p *Pipeline) StoreMetadata(ctx context.Context, metadata []byte) (interfaces.ContentID, error) {
	id, err := p.backend.Store(ctx, metadata, interfaces.MetadataType)
	if err != nil {
		return id, fmt.Errorf("failed to store metadata: %w", err)
	}
	return id, nil
}

// FetchMetadata retrieves previously stored certificate metadata.
func (p *Pipeline) FetchMetadata(ctx context.Context, id interfaces.ContentID) ([]byte, error) {
	return p.backend.Fetch(ctx, id, interfaces.MetadataType)
}

func formatStorageURI(id interfaces.ContentID, encrypted bool) string {
	uri := fmt.Sprintf("%s://sha256/%s", casScheme, hex.EncodeToString(id[:]))
	if encrypted {
		uri += "?enc=aesgcm"
	}
	return uri
}

// ParseStorageURI extracts the content ID and encryption flag from a
// cas://sha256/<hex> storage URI.
func ParseStorageURI(storageURI string) (interfaces.ContentID, bool, error) {
	var id interfaces.ContentID

	u, err := url.Parse(storageURI)
	if err != nil {
		return id, false, fmt.Errorf("invalid storage URI: %w", err)
	}
	if u.Scheme != casScheme || u.Host != "sha256" {
		return id, false, fmt.Errorf("unsupported storage URI: %s", storageURI)
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(u.Path, "/"))
	if err != nil || len(raw) != 32 {
		return id, false, fmt.Errorf("invalid content ID in storage URI: %s", storageURI)
	}
	copy(id[:], raw)

	return id, u.Query().Get("enc") == "aesgcm", nil
}
