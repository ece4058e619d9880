package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/o2cms/cfmigrate/internal/errors"
)

// ErrNoState is returned by Backend.Read when nothing has been saved yet.
var ErrNoState = errors.NewStd("no saved state")

// Backend stores the encoded state document.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Remove(ctx context.Context) error
	Location() string
	Close() error
}

// FileBackend keeps the document in a single JSON file. Writes go to a
// temporary file that is then renamed over the target, so a crash leaves
// either the old or the new document.
type FileBackend struct {
	fs   afero.Fs
	path string
}

// NewFileBackend returns a backend writing path on fs. A nil fs means the
// OS filesystem.
func NewFileBackend(fs afero.Fs, path string) *FileBackend {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileBackend{fs: fs, path: path}
}

func (b *FileBackend) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(b.fs, b.path)
	if os.IsNotExist(err) {
		return nil, ErrNoState
	}
	return data, err
}

func (b *FileBackend) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := filepath.Dir(b.path); dir != "." {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	tmp := b.path + ".tmp"
	if err := afero.WriteFile(b.fs, tmp, data, 0o600); err != nil {
		_ = b.fs.Remove(tmp)
		return err
	}
	if err := b.fs.Rename(tmp, b.path); err != nil {
		_ = b.fs.Remove(tmp)
		return err
	}
	return nil
}

func (b *FileBackend) Remove(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = b.fs.Remove(b.path + ".tmp")
	if err := b.fs.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *FileBackend) Location() string { return b.path }

func (b *FileBackend) Close() error { return nil }
