package interfaces

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ContentID is the SHA-256 digest addressing a stored blob. It identifies
// the stored payload (possibly ciphertext) and is distinct from the
// keccak-256 document hash bound into a certificate, which always covers
// the plaintext.
type ContentID [32]byte

// ComputeID calculates the content ID for data.
func ComputeID(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

// NewContentIDFromHex parses a 64-character hex string, with or without a
// 0x prefix.
func NewContentIDFromHex(source string) (ContentID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentID{}, errors.New("invalid content ID: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid content ID: %w", err)
	}

	var id ContentID
	copy(id[:], raw)
	return id, nil
}

func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ContentID) Bytes() []byte {
	return id[:]
}

// ContentType selects the storage namespace a blob lives in. Documents and
// metadata for the same certificate are stored side by side but never mix.
type ContentType int

const (
	// DocumentType holds encrypted diploma documents.
	DocumentType ContentType = iota
	// MetadataType holds public certificate metadata.
	MetadataType
)

func (ct ContentType) String() string {
	switch ct {
	case DocumentType:
		return "document"
	case MetadataType:
		return "metadata"
	default:
		return "unknown"
	}
}

// Dir returns the namespace directory backends place the blob under.
func (ct ContentType) Dir() string {
	if ct == MetadataType {
		return "metadata"
	}
	return "documents"
}

// StorageBackendLocation is a backend URI of the form
// scheme://[auth@]host[:port][/path][?params]. The factory in the storage
// package interprets it.
type StorageBackendLocation string

func (loc StorageBackendLocation) String() string {
	return string(loc)
}

var (
	// ErrContentNotFound is returned when the backend does not hold the requested blob.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StorageBackend provides content-addressed storage for encrypted diploma
// documents and their public metadata. The registry core never inspects
// document content; it only consumes the resulting digests and locators.
type StorageBackend interface {
	// Fetch retrieves data by content ID and type.
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)

	// Store saves data and returns its content ID.
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}

// StorageBackendFactory creates storage backends from location URIs.
type StorageBackendFactory interface {
	// StorageBackendFor creates a backend from a URI.
	// Supports file://, s3://, ipfs://, vault://
	StorageBackendFor(locationURI StorageBackendLocation) (StorageBackend, error)

	// CreateMultiBackend aggregates several backends behind one interface.
	CreateMultiBackend(locationURIs []StorageBackendLocation) (StorageBackend, error)
}
