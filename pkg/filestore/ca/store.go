// Package ca provides the content-addressable directory backend.
//
// Every file is stored as a zlib-compressed blob named by the SHA-1 of its
// content, every directory as a tree object, and the master state as one
// commit object whose id is persisted under refs/heads/master. The layout is
// git-compatible. Identical content is stored once; backend-side copies
// reuse objects; snapshots are additional refs; unreachable objects are
// reclaimed by GC.
package ca

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/planethub/planethub/pkg/filestore"
)

// Store is one content-addressable repository. All handlers of the tree
// share the store and serialise through its mutex.
type Store struct {
	mu      sync.Mutex
	repoDir string
	objects *objectStore
	root    *dirNode
}

// dirNode is the in-memory state of one directory. Entries are loaded
// lazily from the persisted tree object and marked dirty on mutation.
type dirNode struct {
	entries map[string]*nodeEntry
	treeID  ObjectID // persisted tree id; meaningless while dirty
	loaded  bool
	dirty   bool
}

// nodeEntry is one name within a directory.
type nodeEntry struct {
	mode string
	id   ObjectID // blob id, or tree id for clean subdirectories
	dir  *dirNode // non-nil for subdirectories
	size int64    // blob size, SizeUnknown until probed
}

// Open opens (or initialises) the repository at repoDir.
func Open(repoDir string) (*Store, error) {
	objects, err := newObjectStore(filepath.Join(repoDir, "objects"))
	if err != nil {
		return nil, fmt.Errorf("ca: init objects: %w", err)
	}
	for _, sub := range []string{"refs/heads", "refs/snapshots"} {
		if err := os.MkdirAll(filepath.Join(repoDir, sub), 0755); err != nil {
			return nil, fmt.Errorf("ca: init refs: %w", err)
		}
	}

	s := &Store{
		repoDir: repoDir,
		objects: objects,
	}

	master, err := s.readRef(masterRef)
	if err != nil {
		return nil, err
	}
	if master.IsZero() {
		s.root = &dirNode{entries: map[string]*nodeEntry{}, loaded: true}
		return s, nil
	}

	_, commitBody, err := objects.Read(master)
	if err != nil {
		return nil, fmt.Errorf("ca: read master commit: %w", err)
	}
	treeID, err := decodeCommit(commitBody)
	if err != nil {
		return nil, fmt.Errorf("ca: %w", err)
	}
	s.root = &dirNode{treeID: treeID}
	return s, nil
}

// Root returns the handler for the repository root.
func (s *Store) Root() *Handler {
	return &Handler{store: s}
}

const masterRef = "refs/heads/master"

func (s *Store) refPath(ref string) string {
	return filepath.Join(s.repoDir, filepath.FromSlash(ref))
}

// readRef returns the object id a ref points at, or the zero id if the ref
// does not exist.
func (s *Store) readRef(ref string) (ObjectID, error) {
	raw, err := os.ReadFile(s.refPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectID{}, nil
		}
		return ObjectID{}, err
	}
	id, err := ParseID(strings.TrimSpace(string(raw)))
	if err != nil {
		return ObjectID{}, fmt.Errorf("ca: corrupt ref %s: %w", ref, err)
	}
	return id, nil
}

func (s *Store) writeRef(ref string, id ObjectID) error {
	path := s.refPath(ref)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(id.String()+"\n"), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// load populates a directory node from its persisted tree object.
func (s *Store) load(d *dirNode) error {
	if d.loaded {
		return nil
	}
	d.entries = map[string]*nodeEntry{}
	if !d.treeID.IsZero() {
		_, body, err := s.objects.Read(d.treeID)
		if err != nil {
			return err
		}
		treeEntries, err := decodeTree(body)
		if err != nil {
			return err
		}
		for _, te := range treeEntries {
			ne := &nodeEntry{mode: te.Mode, id: te.ID, size: filestore.SizeUnknown}
			if te.Mode == modeTree {
				ne.dir = &dirNode{treeID: te.ID}
			}
			d.entries[te.Name] = ne
		}
	}
	d.loaded = true
	return nil
}

// resolveDir walks path from the root, loading every node, and returns the
// chain of visited nodes (root first, target last).
func (s *Store) resolveDir(path []string) ([]*dirNode, error) {
	chain := []*dirNode{s.root}
	node := s.root
	for _, name := range path {
		if err := s.load(node); err != nil {
			return nil, err
		}
		entry, ok := node.entries[name]
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
		}
		if entry.dir == nil {
			return nil, fmt.Errorf("%s: %w", name, filestore.ErrNotDirectory)
		}
		node = entry.dir
		chain = append(chain, node)
	}
	if err := s.load(node); err != nil {
		return nil, err
	}
	return chain, nil
}

// commit flushes dirty trees bottom-up, writes a commit object, and moves
// the master ref. The chain marks the mutated path dirty first.
func (s *Store) commit(chain []*dirNode) error {
	for _, node := range chain {
		node.dirty = true
	}
	rootID, err := s.flush(s.root)
	if err != nil {
		return err
	}
	commitID, err := s.objects.Write(typeCommit, encodeCommit(rootID))
	if err != nil {
		return err
	}
	return s.writeRef(masterRef, commitID)
}

// flush writes the tree object for a node, recursing into dirty children,
// and returns the node's tree id.
func (s *Store) flush(d *dirNode) (ObjectID, error) {
	if !d.dirty {
		return d.treeID, nil
	}
	entries := make([]treeEntry, 0, len(d.entries))
	for name, ne := range d.entries {
		id := ne.id
		if ne.dir != nil && ne.dir.dirty {
			childID, err := s.flush(ne.dir)
			if err != nil {
				return ObjectID{}, err
			}
			id = childID
			ne.id = childID
		}
		entries = append(entries, treeEntry{Mode: ne.mode, Name: name, ID: id})
	}
	id, err := s.objects.Write(typeTree, encodeTree(entries))
	if err != nil {
		return ObjectID{}, err
	}
	d.treeID = id
	d.dirty = false
	return id, nil
}

// GC removes every object unreachable from the master ref and the snapshot
// refs. Returns the number of objects removed.
func (s *Store) GC() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := map[ObjectID]bool{}

	refs := []string{masterRef}
	snaps, err := s.snapshotNames()
	if err != nil {
		return 0, err
	}
	for _, name := range snaps {
		refs = append(refs, "refs/snapshots/"+name)
	}

	for _, ref := range refs {
		id, err := s.readRef(ref)
		if err != nil {
			return 0, err
		}
		if id.IsZero() {
			continue
		}
		if err := s.mark(id, live); err != nil {
			return 0, err
		}
	}

	removed := 0
	var garbage []ObjectID
	if err := s.objects.Walk(func(id ObjectID) error {
		if !live[id] {
			garbage = append(garbage, id)
		}
		return nil
	}); err != nil {
		return 0, err
	}
	for _, id := range garbage {
		if err := s.objects.Remove(id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// mark records id and everything reachable from it as live.
func (s *Store) mark(id ObjectID, live map[ObjectID]bool) error {
	if live[id] {
		return nil
	}
	live[id] = true

	typ, body, err := s.objects.Read(id)
	if err != nil {
		return err
	}
	switch typ {
	case typeCommit:
		treeID, err := decodeCommit(body)
		if err != nil {
			return err
		}
		return s.mark(treeID, live)
	case typeTree:
		entries, err := decodeTree(body)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := s.mark(e.ID, live); err != nil {
				return err
			}
		}
	}
	return nil
}

// ObjectCount reports the number of objects in the database.
func (s *Store) ObjectCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	err := s.objects.Walk(func(ObjectID) error {
		count++
		return nil
	})
	return count, err
}

func (s *Store) snapshotNames() ([]string, error) {
	files, err := os.ReadDir(filepath.Join(s.repoDir, "refs", "snapshots"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, f := range files {
		if !f.IsDir() && !strings.HasSuffix(f.Name(), ".tmp") {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func removeFileIfExists(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return filestore.ErrNotFound
	}
	return err
}

// validSnapName refuses names that would escape the refs directory.
func validSnapName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}
