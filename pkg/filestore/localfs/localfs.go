// Package localfs provides the operating-system directory backend.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/planethub/planethub/pkg/filestore"
)

// Handler maps one OS directory. File sizes come from the OS; there is no
// content identifier.
type Handler struct {
	path string
}

// New creates a handler for the given directory, which must exist.
func New(path string) (*Handler, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, mapError(err))
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, filestore.ErrNotDirectory)
	}
	return &Handler{path: path}, nil
}

// Path returns the OS path of the directory.
func (h *Handler) Path() string {
	return h.path
}

// List implements filestore.Handler.
func (h *Handler) List(_ context.Context, fn func(filestore.Entry)) error {
	entries, err := os.ReadDir(h.path)
	if err != nil {
		return mapError(err)
	}
	for _, de := range entries {
		switch {
		case de.IsDir():
			fn(filestore.Entry{Type: filestore.EntryDir, Name: de.Name()})
		case de.Type().IsRegular():
			size := filestore.SizeUnknown
			if info, err := de.Info(); err == nil {
				size = info.Size()
			}
			fn(filestore.Entry{
				Type: filestore.EntryFile,
				Name: de.Name(),
				Info: filestore.FileInfo{Name: de.Name(), Size: size},
			})
		default:
			fn(filestore.Entry{Type: filestore.EntryUnknown, Name: de.Name()})
		}
	}
	return nil
}

// GetFile implements filestore.Handler.
func (h *Handler) GetFile(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(h.path, name))
	if err != nil {
		return nil, mapError(err)
	}
	return data, nil
}

// PutFile implements filestore.Handler.
func (h *Handler) PutFile(_ context.Context, name string, content []byte) (filestore.FileInfo, error) {
	if err := os.WriteFile(filepath.Join(h.path, name), content, 0644); err != nil {
		return filestore.FileInfo{}, mapError(err)
	}
	return filestore.FileInfo{Name: name, Size: int64(len(content))}, nil
}

// RemoveFile implements filestore.Handler.
func (h *Handler) RemoveFile(_ context.Context, name string) error {
	path := filepath.Join(h.path, name)
	info, err := os.Lstat(path)
	if err != nil {
		return mapError(err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s: %w", name, filestore.ErrIsDirectory)
	}
	return mapError(os.Remove(path))
}

// EnterDirectory implements filestore.Handler.
func (h *Handler) EnterDirectory(_ context.Context, name string) (filestore.Handler, error) {
	return New(filepath.Join(h.path, name))
}

// CreateDirectory implements filestore.Handler.
func (h *Handler) CreateDirectory(_ context.Context, name string) (filestore.Handler, error) {
	path := filepath.Join(h.path, name)
	if err := os.Mkdir(path, 0755); err != nil {
		return nil, mapError(err)
	}
	return &Handler{path: path}, nil
}

// RemoveDirectory implements filestore.Handler.
func (h *Handler) RemoveDirectory(_ context.Context, name string) error {
	path := filepath.Join(h.path, name)
	info, err := os.Lstat(path)
	if err != nil {
		return mapError(err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", name, filestore.ErrNotDirectory)
	}
	return mapError(os.Remove(path))
}

// mapError converts OS errors to the filestore sentinels.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w", filestore.ErrNotFound)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w", filestore.ErrExists)
	case errors.Is(err, syscall.ENOTEMPTY):
		return fmt.Errorf("%w", filestore.ErrNotEmpty)
	default:
		return err
	}
}
