// Package fileservice implements the file server: a permission-controlled
// virtual namespace over a pluggable storage backend, exposed through the
// RESP wire protocol.
package fileservice

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/planethub/planethub/internal/logger"
	"github.com/planethub/planethub/internal/protocol/resp"
	"github.com/planethub/planethub/pkg/filestore"
	"github.com/planethub/planethub/pkg/svcerr"
	"github.com/planethub/planethub/pkg/vfs"
)

// Service is the file service core. Operations are serialised; the
// directory cache is only ever touched under the service mutex.
type Service struct {
	mu          sync.Mutex
	root        *vfs.DirectoryItem
	snap        filestore.Snapshotter
	maxFileSize int64
}

// New creates a service over the given root backend. maxFileSize bounds
// both uploads and downloads.
func New(root filestore.Handler, maxFileSize int64) *Service {
	s := &Service{root: vfs.NewRoot(root), maxFileSize: maxFileSize}
	if snap, ok := root.(filestore.Snapshotter); ok {
		s.snap = snap
	}
	return s
}

func (s *Service) resolver(user string) *vfs.Resolver {
	return vfs.NewResolver(s.root, user)
}

// Stat reports one item: [type, name, size] for a file, [type, name,
// visibility] for a directory.
func (s *Service) Stat(ctx context.Context, user, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, dir, err := s.resolver(user).Stat(ctx, path)
	if err != nil {
		return resp.Value{}, err
	}
	if file != nil {
		return resp.Array(resp.Bulk("file"), resp.Bulk(file.Name()), resp.Integer(file.Size())), nil
	}
	return resp.Array(resp.Bulk("dir"), resp.Bulk(dir.Name()), resp.Integer(int64(dir.VisibilityLevel(ctx)))), nil
}

// List returns the entry names of a directory, subdirectories suffixed
// with a slash.
func (s *Service) List(ctx context.Context, user, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.resolver(user).Directory(ctx, path, vfs.PermList)
	if err != nil {
		return resp.Value{}, err
	}
	var names []string
	for _, d := range dir.Dirs(ctx) {
		names = append(names, d.Name()+"/")
	}
	for _, f := range dir.Files(ctx) {
		names = append(names, f.Name())
	}
	return resp.StringArray(names...), nil
}

// Get returns the content of a file.
func (s *Service) Get(ctx context.Context, user, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFile(ctx, s.resolver(user), path)
	if err != nil {
		return resp.Value{}, err
	}
	return resp.Bulk(string(data)), nil
}

func (s *Service) readFile(ctx context.Context, r *vfs.Resolver, path string) ([]byte, error) {
	f, err := r.File(ctx, path)
	if err != nil {
		return nil, err
	}
	if f.Size() != filestore.SizeUnknown && f.Size() > s.maxFileSize {
		return nil, svcerr.FileTooLarge()
	}
	data, err := f.Read(ctx)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxFileSize {
		return nil, svcerr.FileTooLarge()
	}
	return data, nil
}

// Put stores a file, creating or replacing it.
func (s *Service) Put(ctx context.Context, user, path string, content []byte) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int64(len(content)) > s.maxFileSize {
		return resp.Value{}, svcerr.FileTooLarge()
	}
	parent, name, err := s.resolver(user).Parent(ctx, path)
	if err != nil {
		return resp.Value{}, err
	}
	if !parent.PermissionsFor(ctx, user).Has(vfs.PermWrite) {
		return resp.Value{}, svcerr.PermissionDenied()
	}
	if parent.Dir(ctx, name) != nil {
		return resp.Value{}, svcerr.New(svcerr.CodeNotADirectory, "Is a directory")
	}
	if _, err := parent.CreateFile(ctx, name, content); err != nil {
		return resp.Value{}, err
	}
	s.snoop(ctx, parent, name, content)
	return resp.Simple("OK"), nil
}

// Copy duplicates a file, preferring a backend-side copy.
func (s *Service) Copy(ctx context.Context, user, src, dst string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.resolver(user)
	f, err := r.File(ctx, src)
	if err != nil {
		return resp.Value{}, err
	}
	parent, name, err := r.Parent(ctx, dst)
	if err != nil {
		return resp.Value{}, err
	}
	if !parent.PermissionsFor(ctx, user).Has(vfs.PermWrite) {
		return resp.Value{}, svcerr.PermissionDenied()
	}
	if parent.Dir(ctx, name) != nil {
		return resp.Value{}, svcerr.AlreadyExists("Already exists")
	}

	handled, err := parent.CopyFileFrom(ctx, f.Dir(), f.Name(), name)
	if err != nil {
		return resp.Value{}, err
	}
	if !handled {
		data, err := s.readFile(ctx, r, src)
		if err != nil {
			return resp.Value{}, err
		}
		if _, err := parent.CreateFile(ctx, name, data); err != nil {
			return resp.Value{}, err
		}
		s.snoop(ctx, parent, name, data)
		return resp.Simple("OK"), nil
	}

	// Backend-side copy: fetch the content only if snooping wants it.
	if name == snoopFileName {
		if data, err := f.Read(ctx); err == nil {
			s.snoop(ctx, parent, name, data)
		}
	}
	return resp.Simple("OK"), nil
}

// Remove deletes a file or an empty subdirectory.
func (s *Service) Remove(ctx context.Context, user, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.resolver(user)
	parent, name, err := r.Parent(ctx, path)
	if err != nil {
		return resp.Value{}, err
	}
	if !parent.PermissionsFor(ctx, user).Has(vfs.PermWrite) {
		return resp.Value{}, svcerr.PermissionDenied()
	}
	if parent.File(ctx, name) != nil {
		if err := parent.RemoveFile(ctx, name); err != nil {
			return resp.Value{}, err
		}
		return resp.Simple("OK"), nil
	}
	if d := parent.Dir(ctx, name); d != nil {
		if err := s.removeEmptyDir(ctx, parent, d); err != nil {
			return resp.Value{}, err
		}
		return resp.Simple("OK"), nil
	}
	if parent.PermissionsFor(ctx, user).Has(vfs.PermList) {
		return resp.Value{}, svcerr.NotFound("File not found")
	}
	return resp.Value{}, svcerr.PermissionDenied()
}

// removeEmptyDir removes a user-perceived empty directory: no visible
// content, no unknown content, control file stripped first.
func (s *Service) removeEmptyDir(ctx context.Context, parent, d *vfs.DirectoryItem) error {
	if len(d.Files(ctx)) > 0 || len(d.Dirs(ctx)) > 0 || d.HasUnknownContent(ctx) {
		return svcerr.New(svcerr.CodeAlreadyExists, "Directory not empty")
	}
	if err := d.RemoveControlFile(ctx); err != nil {
		return err
	}
	return parent.RemoveDirectory(ctx, d.Name())
}

// RemoveTree removes a directory recursively. Write permission is
// verified on every directory first; clearing then proceeds bottom-up
// and aborts on the first failure, possibly leaving a partially cleared
// tree.
func (s *Service) RemoveTree(ctx context.Context, user, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.resolver(user)
	parent, name, err := r.Parent(ctx, path)
	if err != nil {
		return resp.Value{}, err
	}
	if !parent.PermissionsFor(ctx, user).Has(vfs.PermWrite) {
		return resp.Value{}, svcerr.PermissionDenied()
	}
	d := parent.Dir(ctx, name)
	if d == nil {
		if parent.File(ctx, name) != nil {
			return resp.Value{}, svcerr.NotADirectory()
		}
		if parent.PermissionsFor(ctx, user).Has(vfs.PermList) {
			return resp.Value{}, svcerr.NotFound("File not found")
		}
		return resp.Value{}, svcerr.PermissionDenied()
	}
	if err := s.verifyTreeWritable(ctx, user, d); err != nil {
		return resp.Value{}, err
	}
	if err := s.clearTree(ctx, d); err != nil {
		return resp.Value{}, err
	}
	if err := parent.RemoveDirectory(ctx, name); err != nil {
		return resp.Value{}, err
	}
	return resp.Simple("OK"), nil
}

func (s *Service) verifyTreeWritable(ctx context.Context, user string, d *vfs.DirectoryItem) error {
	if !d.PermissionsFor(ctx, user).Has(vfs.PermWrite) {
		return svcerr.PermissionDenied()
	}
	for _, c := range d.Dirs(ctx) {
		if err := s.verifyTreeWritable(ctx, user, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) clearTree(ctx context.Context, d *vfs.DirectoryItem) error {
	if d.HasUnknownContent(ctx) {
		return svcerr.New(svcerr.CodeAlreadyExists, "Directory not empty")
	}
	for _, c := range d.Dirs(ctx) {
		if err := s.clearTree(ctx, c); err != nil {
			return err
		}
		if err := d.RemoveDirectory(ctx, c.Name()); err != nil {
			return err
		}
	}
	for _, f := range d.Files(ctx) {
		if err := d.RemoveFile(ctx, f.Name()); err != nil {
			return err
		}
	}
	return d.RemoveControlFile(ctx)
}

// Mkdir creates one directory.
func (s *Service) Mkdir(ctx context.Context, user, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, name, err := s.resolver(user).Parent(ctx, path)
	if err != nil {
		return resp.Value{}, err
	}
	if !parent.PermissionsFor(ctx, user).Has(vfs.PermWrite) {
		return resp.Value{}, svcerr.PermissionDenied()
	}
	if _, err := parent.CreateDirectory(ctx, name); err != nil {
		return resp.Value{}, err
	}
	return resp.Simple("OK"), nil
}

// MkdirAs creates a directory owned by the given user. Admin only.
func (s *Service) MkdirAs(ctx context.Context, user, path, owner string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user != "" {
		return resp.Value{}, svcerr.PermissionDenied()
	}
	parent, name, err := s.resolver(user).Parent(ctx, path)
	if err != nil {
		return resp.Value{}, err
	}
	d, err := parent.CreateDirectory(ctx, name)
	if err != nil {
		return resp.Value{}, err
	}
	if err := d.SetOwner(ctx, owner); err != nil {
		return resp.Value{}, err
	}
	return resp.Simple("OK"), nil
}

// MkdirHier creates every missing directory along a path. An existing
// file at any prefix fails the operation.
func (s *Service) MkdirHier(ctx context.Context, user, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comps, err := vfs.SplitPath(path)
	if err != nil {
		return resp.Value{}, err
	}
	cur := s.root
	for _, name := range comps {
		if next := cur.Dir(ctx, name); next != nil {
			cur = next
			continue
		}
		if cur.File(ctx, name) != nil {
			return resp.Value{}, svcerr.AlreadyExists("Already exists")
		}
		if !cur.PermissionsFor(ctx, user).Has(vfs.PermWrite) {
			return resp.Value{}, svcerr.PermissionDenied()
		}
		next, err := cur.CreateDirectory(ctx, name)
		if err != nil {
			return resp.Value{}, err
		}
		cur = next
	}
	return resp.Simple("OK"), nil
}

// Usage reports [items, kilobytes] for a subtree. Every directory counts
// one item and one kilobyte; every file one item and its size rounded up
// to whole kilobytes.
func (s *Service) Usage(ctx context.Context, user, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.resolver(user).Directory(ctx, path, vfs.PermList)
	if err != nil {
		return resp.Value{}, err
	}
	items, kb := subtreeUsage(ctx, dir)
	return resp.Array(resp.Integer(items), resp.Integer(kb)), nil
}

func subtreeUsage(ctx context.Context, d *vfs.DirectoryItem) (items, kb int64) {
	items, kb = 1, 1
	for _, f := range d.Files(ctx) {
		items++
		if size := f.Size(); size > 0 {
			kb += (size + 1023) / 1024
		}
	}
	for _, c := range d.Dirs(ctx) {
		ci, ck := subtreeUsage(ctx, c)
		items += ci
		kb += ck
	}
	return items, kb
}

// Forget drops the cached state below path. Missing paths are ignored;
// no permission is required.
func (s *Service) Forget(ctx context.Context, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comps, err := vfs.SplitPath(path)
	if err != nil {
		return resp.Value{}, err
	}
	cur := s.root
	for _, name := range comps {
		if cur = cur.Dir(ctx, name); cur == nil {
			return resp.Simple("OK"), nil
		}
	}
	cur.ForgetContent()
	return resp.Simple("OK"), nil
}

// FileTest reports, per candidate path, 1 if a read would succeed and
// 0 otherwise. Never fails.
func (s *Service) FileTest(ctx context.Context, user string, paths []string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.resolver(user)
	items := make([]resp.Value, len(paths))
	for i, p := range paths {
		if _, err := r.File(ctx, p); err == nil {
			items[i] = resp.Integer(1)
		} else {
			items[i] = resp.Integer(0)
		}
	}
	return resp.Array(items...), nil
}

// PropGet returns a user-visible directory property, or null.
func (s *Service) PropGet(ctx context.Context, user, path, name string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.resolver(user).Directory(ctx, path, vfs.PermRead)
	if err != nil {
		return resp.Value{}, err
	}
	if v, ok := dir.Property(ctx, name); ok {
		return resp.Bulk(v), nil
	}
	return resp.Null(), nil
}

// PropSet stores a user-visible directory property.
func (s *Service) PropSet(ctx context.Context, user, path, name, value string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.resolver(user).Directory(ctx, path, vfs.PermWrite)
	if err != nil {
		return resp.Value{}, err
	}
	if err := dir.SetProperty(ctx, name, value); err != nil {
		return resp.Value{}, err
	}
	return resp.Simple("OK"), nil
}

// SetPerm grants a permission string to a user ("*" for everyone).
func (s *Service) SetPerm(ctx context.Context, user, path, grantee, perms string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.resolver(user).Directory(ctx, path, vfs.PermAccess)
	if err != nil {
		return resp.Value{}, err
	}
	if err := dir.SetPermission(ctx, grantee, perms); err != nil {
		return resp.Value{}, err
	}
	return resp.Simple("OK"), nil
}

// ListPerm reports [owner, [user perms...]] of a directory.
func (s *Service) ListPerm(ctx context.Context, user, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.resolver(user).Directory(ctx, path, vfs.PermAccess)
	if err != nil {
		return resp.Value{}, err
	}
	var rows []string
	for _, p := range dir.Permissions(ctx) {
		rows = append(rows, p.User+" "+p.Perm.String())
	}
	return resp.Array(resp.Bulk(dir.Owner(ctx)), resp.StringArray(rows...)), nil
}

// snoopFileName is the one file whose content is inspected on upload.
const snoopFileName = "pconfig.src"

// snoop extracts the game name from a freshly written pconfig.src and
// records it as the directory's "name" property. Failures are ignored;
// snooping must never fail the upload.
func (s *Service) snoop(ctx context.Context, dir *vfs.DirectoryItem, name string, content []byte) {
	if name != snoopFileName {
		return
	}
	for _, line := range strings.Split(string(content), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "gamename", "phost.gamename":
			if v := strings.TrimSpace(strings.TrimSuffix(value, "\r")); v != "" {
				if err := dir.SetProperty(ctx, "name", v); err != nil {
					logger.Warn("Cannot record game name", "path", dir.Path(), "error", err)
				}
				return
			}
		}
	}
}

// Snapshot operations; only available on the content-addressable backend.

func (s *Service) snapshotter(user string) (filestore.Snapshotter, error) {
	if s.snap == nil {
		return nil, svcerr.BadRequest("Unknown command")
	}
	if user != "" {
		return nil, svcerr.PermissionDenied()
	}
	return s.snap, nil
}

// SnapCreate records the current state under a snapshot name.
func (s *Service) SnapCreate(ctx context.Context, user, name string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshotter(user)
	if err != nil {
		return resp.Value{}, err
	}
	if err := snap.SnapCreate(ctx, name); err != nil {
		return resp.Value{}, mapSnapError(err)
	}
	return resp.Simple("OK"), nil
}

// SnapCopy duplicates a snapshot under a new name.
func (s *Service) SnapCopy(ctx context.Context, user, src, dst string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshotter(user)
	if err != nil {
		return resp.Value{}, err
	}
	if err := snap.SnapCopy(ctx, src, dst); err != nil {
		return resp.Value{}, mapSnapError(err)
	}
	return resp.Simple("OK"), nil
}

// SnapRemove deletes a snapshot.
func (s *Service) SnapRemove(ctx context.Context, user, name string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshotter(user)
	if err != nil {
		return resp.Value{}, err
	}
	if err := snap.SnapRemove(ctx, name); err != nil {
		return resp.Value{}, mapSnapError(err)
	}
	return resp.Simple("OK"), nil
}

// SnapList returns the snapshot names.
func (s *Service) SnapList(ctx context.Context, user string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshotter(user)
	if err != nil {
		return resp.Value{}, err
	}
	names, err := snap.SnapList(ctx)
	if err != nil {
		return resp.Value{}, err
	}
	return resp.StringArray(names...), nil
}

// mapSnapError converts backend sentinels from snapshot operations.
func mapSnapError(err error) error {
	switch {
	case errors.Is(err, filestore.ErrNotFound):
		return svcerr.NotFound("Snapshot not found")
	case errors.Is(err, filestore.ErrExists):
		return svcerr.AlreadyExists("Snapshot already exists")
	default:
		return err
	}
}
