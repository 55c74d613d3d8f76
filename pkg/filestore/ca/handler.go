package ca

import (
	"context"
	"fmt"
	"sort"

	"github.com/planethub/planethub/pkg/filestore"
)

// Handler exposes one directory of a Store as a filestore.Handler. The root
// handler additionally supports snapshots.
type Handler struct {
	store *Store
	path  []string
}

var (
	_ filestore.Handler     = (*Handler)(nil)
	_ filestore.Copier      = (*Handler)(nil)
	_ filestore.Snapshotter = (*Handler)(nil)
)

// List implements filestore.Handler.
func (h *Handler) List(_ context.Context, fn func(filestore.Entry)) error {
	h.store.mu.Lock()

	node, err := h.node()
	if err != nil {
		h.store.mu.Unlock()
		return err
	}

	names := make([]string, 0, len(node.entries))
	for name := range node.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	collected := make([]filestore.Entry, 0, len(names))
	for _, name := range names {
		ne := node.entries[name]
		if ne.dir != nil {
			collected = append(collected, filestore.Entry{Type: filestore.EntryDir, Name: name})
			continue
		}
		if ne.size == filestore.SizeUnknown {
			if _, size, err := h.store.objects.Stat(ne.id); err == nil {
				ne.size = size
			}
		}
		collected = append(collected, filestore.Entry{
			Type: filestore.EntryFile,
			Name: name,
			Info: filestore.FileInfo{Name: name, Size: ne.size, ContentID: ne.id.String()},
		})
	}
	h.store.mu.Unlock()

	for _, e := range collected {
		fn(e)
	}
	return nil
}

// GetFile implements filestore.Handler.
func (h *Handler) GetFile(_ context.Context, name string) ([]byte, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	node, err := h.node()
	if err != nil {
		return nil, err
	}
	ne, ok := node.entries[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
	}
	if ne.dir != nil {
		return nil, fmt.Errorf("%s: %w", name, filestore.ErrIsDirectory)
	}
	typ, body, err := h.store.objects.Read(ne.id)
	if err != nil {
		return nil, err
	}
	if typ != typeBlob {
		return nil, fmt.Errorf("%s: object %s is a %s", name, ne.id, typ)
	}
	ne.size = int64(len(body))
	return body, nil
}

// PutFile implements filestore.Handler.
func (h *Handler) PutFile(_ context.Context, name string, content []byte) (filestore.FileInfo, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	chain, err := h.store.resolveDir(h.path)
	if err != nil {
		return filestore.FileInfo{}, err
	}
	node := chain[len(chain)-1]
	if existing, ok := node.entries[name]; ok && existing.dir != nil {
		return filestore.FileInfo{}, fmt.Errorf("%s: %w", name, filestore.ErrIsDirectory)
	}

	id, err := h.store.objects.Write(typeBlob, content)
	if err != nil {
		return filestore.FileInfo{}, err
	}
	node.entries[name] = &nodeEntry{mode: modeFile, id: id, size: int64(len(content))}

	if err := h.store.commit(chain); err != nil {
		return filestore.FileInfo{}, err
	}
	return filestore.FileInfo{Name: name, Size: int64(len(content)), ContentID: id.String()}, nil
}

// RemoveFile implements filestore.Handler.
func (h *Handler) RemoveFile(_ context.Context, name string) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	chain, err := h.store.resolveDir(h.path)
	if err != nil {
		return err
	}
	node := chain[len(chain)-1]
	ne, ok := node.entries[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
	}
	if ne.dir != nil {
		return fmt.Errorf("%s: %w", name, filestore.ErrIsDirectory)
	}
	delete(node.entries, name)
	return h.store.commit(chain)
}

// EnterDirectory implements filestore.Handler.
func (h *Handler) EnterDirectory(_ context.Context, name string) (filestore.Handler, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	node, err := h.node()
	if err != nil {
		return nil, err
	}
	ne, ok := node.entries[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
	}
	if ne.dir == nil {
		return nil, fmt.Errorf("%s: %w", name, filestore.ErrNotDirectory)
	}
	return &Handler{store: h.store, path: childPath(h.path, name)}, nil
}

// CreateDirectory implements filestore.Handler.
func (h *Handler) CreateDirectory(_ context.Context, name string) (filestore.Handler, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	chain, err := h.store.resolveDir(h.path)
	if err != nil {
		return nil, err
	}
	node := chain[len(chain)-1]
	if _, ok := node.entries[name]; ok {
		return nil, fmt.Errorf("%s: %w", name, filestore.ErrExists)
	}
	node.entries[name] = &nodeEntry{
		mode: modeTree,
		dir:  &dirNode{entries: map[string]*nodeEntry{}, loaded: true, dirty: true},
	}
	if err := h.store.commit(chain); err != nil {
		return nil, err
	}
	return &Handler{store: h.store, path: childPath(h.path, name)}, nil
}

// RemoveDirectory implements filestore.Handler.
func (h *Handler) RemoveDirectory(_ context.Context, name string) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	chain, err := h.store.resolveDir(h.path)
	if err != nil {
		return err
	}
	node := chain[len(chain)-1]
	ne, ok := node.entries[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
	}
	if ne.dir == nil {
		return fmt.Errorf("%s: %w", name, filestore.ErrNotDirectory)
	}
	if err := h.store.load(ne.dir); err != nil {
		return err
	}
	if len(ne.dir.entries) > 0 {
		return fmt.Errorf("%s: %w", name, filestore.ErrNotEmpty)
	}
	delete(node.entries, name)
	return h.store.commit(chain)
}

// CopyFile implements filestore.Copier. Within the same store the copy is
// pure object reuse; across stores or backends it declines.
func (h *Handler) CopyFile(_ context.Context, src filestore.Handler, srcName, dstName string) (bool, error) {
	srcHandler, ok := src.(*Handler)
	if !ok || srcHandler.store != h.store {
		return false, nil
	}

	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	srcChain, err := h.store.resolveDir(srcHandler.path)
	if err != nil {
		return true, err
	}
	srcNode := srcChain[len(srcChain)-1]
	srcEntry, ok := srcNode.entries[srcName]
	if !ok {
		return true, fmt.Errorf("%s: %w", srcName, filestore.ErrNotFound)
	}
	if srcEntry.dir != nil {
		return true, fmt.Errorf("%s: %w", srcName, filestore.ErrIsDirectory)
	}

	dstChain, err := h.store.resolveDir(h.path)
	if err != nil {
		return true, err
	}
	dstNode := dstChain[len(dstChain)-1]
	if existing, ok := dstNode.entries[dstName]; ok && existing.dir != nil {
		return true, fmt.Errorf("%s: %w", dstName, filestore.ErrIsDirectory)
	}
	dstNode.entries[dstName] = &nodeEntry{mode: modeFile, id: srcEntry.id, size: srcEntry.size}
	return true, h.store.commit(dstChain)
}

// SnapCreate implements filestore.Snapshotter: records the current master
// commit under refs/snapshots/<name>.
func (h *Handler) SnapCreate(_ context.Context, name string) error {
	if err := validSnapName(name); err != nil {
		return err
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	master, err := h.store.readRef(masterRef)
	if err != nil {
		return err
	}
	if master.IsZero() {
		// An empty repository still snapshots: write an empty commit.
		chain := []*dirNode{h.store.root}
		if err := h.store.commit(chain); err != nil {
			return err
		}
		if master, err = h.store.readRef(masterRef); err != nil {
			return err
		}
	}
	return h.store.writeRef("refs/snapshots/"+name, master)
}

// SnapCopy implements filestore.Snapshotter.
func (h *Handler) SnapCopy(_ context.Context, src, dst string) error {
	if err := validSnapName(src); err != nil {
		return err
	}
	if err := validSnapName(dst); err != nil {
		return err
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	id, err := h.store.readRef("refs/snapshots/" + src)
	if err != nil {
		return err
	}
	if id.IsZero() {
		return fmt.Errorf("snapshot %s: %w", src, filestore.ErrNotFound)
	}
	return h.store.writeRef("refs/snapshots/"+dst, id)
}

// SnapRemove implements filestore.Snapshotter.
func (h *Handler) SnapRemove(_ context.Context, name string) error {
	if err := validSnapName(name); err != nil {
		return err
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	path := h.store.refPath("refs/snapshots/" + name)
	if err := removeFileIfExists(path); err != nil {
		return fmt.Errorf("snapshot %s: %w", name, err)
	}
	return nil
}

// SnapList implements filestore.Snapshotter.
func (h *Handler) SnapList(_ context.Context) ([]string, error) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.store.snapshotNames()
}

// node returns the loaded dirNode for this handler's path.
func (h *Handler) node() (*dirNode, error) {
	chain, err := h.store.resolveDir(h.path)
	if err != nil {
		return nil, err
	}
	return chain[len(chain)-1], nil
}

func childPath(path []string, name string) []string {
	child := make([]string, 0, len(path)+1)
	child = append(child, path...)
	return append(child, name)
}
