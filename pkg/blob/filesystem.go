package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FilesystemStore stores objects as files under root, used for local
// development and the testcontainers-backed integration tests where a real
// S3 bucket isn't worth the setup cost.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates (if absent) root and returns a Store backed by
// it.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "create blob root")
	}
	return &FilesystemStore{root: root}, nil
}

func (f *FilesystemStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	return filepath.Join(f.root, clean), nil
}

func (f *FilesystemStore) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "mkdir parent")
	}

	tmp := p + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "write object")
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "close object")
	}
	if err := os.Rename(tmp, p); err != nil {
		return errors.Wrap(err, "rename into place")
	}
	return nil
}

func (f *FilesystemStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ErrNotFound{Key: key}
		}
		return nil, errors.Wrap(err, "open object")
	}
	return file, nil
}

func (f *FilesystemStore) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "delete object")
	}
	return nil
}

func (f *FilesystemStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := f.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "stat object")
}
