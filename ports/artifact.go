package ports

import (
	"context"
	"io"

	"github.com/layer-3/certify/core"
)

// Hasher derives certificate content hashes.
type Hasher interface {
	Derive(in core.HashInput) (core.HashResult, error)
}

// ArtifactRenderer produces the scan code and the certificate document.
// Printable rejects text the document cannot represent.
type ArtifactRenderer interface {
	Printable(data core.DocumentData) error
	ScanCode(hash string) ([]byte, error)
	Document(data core.DocumentData, scanCode []byte) ([]byte, error)
}

// FileStore persists rendered documents.
type FileStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Remove(ctx context.Context, path string) error
}
