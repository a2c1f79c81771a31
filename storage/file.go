package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/attestia/diploma-registry-backend/interfaces"
)

// FileBackend stores diploma documents and metadata on the local
// filesystem, one file per content ID under a namespace subdirectory.
// Mostly used for development and single-node deployments.
type FileBackend struct {
	baseDir string
	log     *slog.Logger
}

// NewFileBackend creates the base directory and its documents/metadata
// subdirectories if they do not exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, interfaces.DocumentType.Dir()), filepath.Join(baseDir, interfaces.MetadataType.Dir())} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}

	return &FileBackend{baseDir: baseDir, log: log}, nil
}

// Fetch reads a blob by content identifier and namespace.
func (b *FileBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	data, err := os.ReadFile(b.blobPath(id, contentType))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to read stored blob: %w", err)
	}
	return data, nil
}

// Store writes data under its SHA-256 content identifier. Re-storing
// identical data overwrites the file with the same bytes, so the operation
// is idempotent.
func (b *FileBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	path := b.blobPath(id, contentType)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return id, fmt.Errorf("failed to write blob: %w", err)
	}

	b.log.Debug("Stored content on filesystem", "path", path, "size", len(data))
	return id, nil
}

// Available reports whether the base directory still exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	if _, err := os.Stat(b.baseDir); err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

func (b *FileBackend) Name() string {
	return "file-" + filepath.Base(b.baseDir)
}

func (b *FileBackend) LocationURI() string {
	return "file://" + b.baseDir
}

func (b *FileBackend) blobPath(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return filepath.Join(b.baseDir, contentType.Dir(), id.String())
}
