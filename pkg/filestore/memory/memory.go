// Package memory provides an in-memory directory backend, used for tests
// and for the "int:" virtual root.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/planethub/planethub/pkg/filestore"
)

// Handler is an in-memory directory. All handlers of one tree share a mutex
// so that concurrent connections see consistent state.
type Handler struct {
	mu    *sync.RWMutex
	files map[string][]byte
	dirs  map[string]*Handler
}

// New creates an empty in-memory root.
func New() *Handler {
	return newDir(&sync.RWMutex{})
}

func newDir(mu *sync.RWMutex) *Handler {
	return &Handler{
		mu:    mu,
		files: make(map[string][]byte),
		dirs:  make(map[string]*Handler),
	}
}

// List implements filestore.Handler. Entries are reported in name order for
// deterministic listings.
func (h *Handler) List(_ context.Context, fn func(filestore.Entry)) error {
	h.mu.RLock()
	names := make([]string, 0, len(h.files)+len(h.dirs))
	for name := range h.files {
		names = append(names, name)
	}
	for name := range h.dirs {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]filestore.Entry, 0, len(names))
	for _, name := range names {
		if content, ok := h.files[name]; ok {
			entries = append(entries, filestore.Entry{
				Type: filestore.EntryFile,
				Name: name,
				Info: filestore.FileInfo{Name: name, Size: int64(len(content))},
			})
		} else {
			entries = append(entries, filestore.Entry{Type: filestore.EntryDir, Name: name})
		}
	}
	h.mu.RUnlock()

	for _, e := range entries {
		fn(e)
	}
	return nil
}

// GetFile implements filestore.Handler.
func (h *Handler) GetFile(_ context.Context, name string) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	content, ok := h.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

// PutFile implements filestore.Handler.
func (h *Handler) PutFile(_ context.Context, name string, content []byte) (filestore.FileInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.dirs[name]; ok {
		return filestore.FileInfo{}, fmt.Errorf("%s: %w", name, filestore.ErrIsDirectory)
	}
	stored := make([]byte, len(content))
	copy(stored, content)
	h.files[name] = stored
	return filestore.FileInfo{Name: name, Size: int64(len(content))}, nil
}

// RemoveFile implements filestore.Handler.
func (h *Handler) RemoveFile(_ context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.files[name]; !ok {
		return fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
	}
	delete(h.files, name)
	return nil
}

// EnterDirectory implements filestore.Handler.
func (h *Handler) EnterDirectory(_ context.Context, name string) (filestore.Handler, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sub, ok := h.dirs[name]
	if !ok {
		if _, isFile := h.files[name]; isFile {
			return nil, fmt.Errorf("%s: %w", name, filestore.ErrNotDirectory)
		}
		return nil, fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
	}
	return sub, nil
}

// CreateDirectory implements filestore.Handler.
func (h *Handler) CreateDirectory(_ context.Context, name string) (filestore.Handler, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.dirs[name]; ok {
		return nil, fmt.Errorf("%s: %w", name, filestore.ErrExists)
	}
	if _, ok := h.files[name]; ok {
		return nil, fmt.Errorf("%s: %w", name, filestore.ErrExists)
	}
	sub := newDir(h.mu)
	h.dirs[name] = sub
	return sub, nil
}

// RemoveDirectory implements filestore.Handler.
func (h *Handler) RemoveDirectory(_ context.Context, name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.dirs[name]
	if !ok {
		if _, isFile := h.files[name]; isFile {
			return fmt.Errorf("%s: %w", name, filestore.ErrNotDirectory)
		}
		return fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
	}
	if len(sub.files) > 0 || len(sub.dirs) > 0 {
		return fmt.Errorf("%s: %w", name, filestore.ErrNotEmpty)
	}
	delete(h.dirs, name)
	return nil
}
