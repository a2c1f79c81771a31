package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/attestia/diploma-registry-backend/interfaces"
)

const ipfsRootDir = "/diploma-registry"

// IPFSBackend stores diploma documents on an IPFS node. Blobs are written
// into the node's mutable filesystem (MFS) under a registry directory keyed
// by content ID, so retrieval by the registry's own SHA-256 identifier works
// without tracking IPFS CIDs separately.
type IPFSBackend struct {
	shell *shell.Shell
	host  string
	port  string
	log   *slog.Logger
}

// NewIPFSBackend connects to the IPFS node API at host:port.
func NewIPFSBackend(host, port string, log *slog.Logger) (*IPFSBackend, error) {
	return &IPFSBackend{
		shell: shell.NewShell(fmt.Sprintf("%s:%s", host, port)),
		host:  host,
		port:  port,
		log:   log,
	}, nil
}

// Fetch reads a blob from the node's MFS by content identifier.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable", "host", b.host, "port", b.port)
		return nil, interfaces.ErrBackendUnavailable
	}

	path := b.mfsPath(id, contentType)
	reader, err := b.shell.FilesRead(ctx, path)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "file does not exist") {
			return nil, interfaces.ErrContentNotFound
		}
		b.log.Error("Failed to read from IPFS", "path", path, "err", err)
		return nil, fmt.Errorf("failed to read from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read IPFS response: %w", err)
	}
	return data, nil
}

// Store writes a blob into the node's MFS under its SHA-256 content
// identifier and pins it through the MFS reference.
func (b *IPFSBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	if !b.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	path := b.mfsPath(id, contentType)
	err := b.shell.FilesWrite(ctx, path, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true),
	)
	if err != nil {
		return id, fmt.Errorf("failed to write to IPFS: %w", err)
	}

	b.log.Debug("Stored content in IPFS", "path", path, "size", len(data))
	return id, nil
}

// Available checks the node API.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

func (b *IPFSBackend) LocationURI() string {
	return fmt.Sprintf("ipfs://%s:%s/", b.host, b.port)
}

func (b *IPFSBackend) mfsPath(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return fmt.Sprintf("%s/%s/%s", ipfsRootDir, contentType.Dir(), id.String())
}
