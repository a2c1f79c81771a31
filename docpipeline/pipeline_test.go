package docpipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attestia/diploma-registry-backend/cryptoutils"
	"github.com/attestia/diploma-registry-backend/interfaces"
	"github.com/attestia/diploma-registry-backend/storage"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := storage.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)
	return NewPipeline(backend, logger)
}

func TestPipeline_PlaintextRoundtrip(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	document := []byte("B.Sc. Computer Science, issued to 0xholder")

	stored, err := p.Ingest(ctx, document, nil)
	require.NoError(t, err)
	assert.False(t, stored.Encrypted)
	assert.Equal(t, cryptoutils.DocumentHash(document), stored.DocHash)

	got, err := p.Retrieve(ctx, stored.StorageURI, stored.DocHash, nil)
	require.NoError(t, err)
	assert.Equal(t, document, got)
}

func TestPipeline_EncryptedRoundtrip(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	document := []byte("M.Sc. Mathematics transcript")
	passphrase := []byte("graduate-secret")

	stored, err := p.Ingest(ctx, document, passphrase)
	require.NoError(t, err)
	assert.True(t, stored.Encrypted)
	assert.Contains(t, stored.StorageURI, "enc=aesgcm")

	// Hash commits to the plaintext even when the payload is encrypted.
	assert.Equal(t, cryptoutils.DocumentHash(document), stored.DocHash)

	got, err := p.Retrieve(ctx, stored.StorageURI, stored.DocHash, passphrase)
	require.NoError(t, err)
	assert.Equal(t, document, got)

	_, err = p.Retrieve(ctx, stored.StorageURI, stored.DocHash, []byte("wrong"))
	assert.Error(t, err)

	_, err = p.Retrieve(ctx, stored.StorageURI, stored.DocHash, nil)
	assert.Error(t, err)
}

func TestPipeline_HashMismatchRejected(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	stored, err := p.Ingest(ctx, []byte("authentic document"), nil)
	require.NoError(t, err)

	forged := cryptoutils.DocumentHash([]byte("forged document"))
	_, err = p.Retrieve(ctx, stored.StorageURI, forged, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestPipeline_EmptyDocumentRejected(t *testing.T) {
	p := newTestPipeline(t)
	_, err := p.Ingest(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestPipeline_MetadataRoundtrip(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	metadata := []byte(`{"degree":"B.A. History","year":2026}`)

	id, err := p.StoreMetadata(ctx, metadata)
	require.NoError(t, err)

	got, err := p.FetchMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, metadata, got)
}

func TestParseStorageURI(t *testing.T) {
	id := interfaces.ContentID{0xab, 0xcd}
	uri := formatStorageURI(id, true)

	parsed, encrypted, err := ParseStorageURI(uri)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.True(t, encrypted)

	_, _, err = ParseStorageURI("https://example.com/doc")
	assert.Error(t, err)

	_, _, err = ParseStorageURI("cas://sha256/zz")
	assert.Error(t, err)
}
