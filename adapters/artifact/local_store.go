package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
)

// LocalStore keeps documents in a directory on the local filesystem.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &LocalStore{dir: abs}, nil
}

var _ ports.FileStore = (*LocalStore)(nil)

// Save writes data through a temporary file so readers never see a partial
// document.
func (s *LocalStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", artifactError("save document", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", artifactError("save document", err)
	}
	if err := tmp.Close(); err != nil {
		return "", artifactError("save document", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", artifactError("save document", err)
	}
	return path, nil
}

func (s *LocalStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	path, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, core.E(core.KindNotFound, "certificate file not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Remove(ctx context.Context, path string) error {
	path, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove document: %w", err)
	}
	return nil
}

// resolve maps a name or a previously returned path into the store
// directory, refusing anything that escapes it.
func (s *LocalStore) resolve(name string) (string, error) {
	if !filepath.IsAbs(name) {
		name = filepath.Join(s.dir, name)
	}
	clean := filepath.Clean(name)
	if !strings.HasPrefix(clean, s.dir+string(filepath.Separator)) {
		return "", core.E(core.KindValidation, "invalid file path")
	}
	return clean, nil
}
