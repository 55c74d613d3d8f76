// Package vfs implements the cached virtual file namespace served by the
// file service: a tree of directory nodes over a filestore backend, with
// per-directory control metadata (owner, permissions, properties) kept in
// a hidden control file.
//
// The cache is not self-synchronising. Callers serialise access; the file
// service runs one operation at a time against its tree.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/planethub/planethub/internal/logger"
	"github.com/planethub/planethub/pkg/filestore"
	"github.com/planethub/planethub/pkg/gameprobe"
	"github.com/planethub/planethub/pkg/svcerr"
)

// FileItem is a cached file node. The backend-supplied info record is
// captured at list or create time.
type FileItem struct {
	name   string
	parent *DirectoryItem
	info   filestore.FileInfo
}

// Name returns the file name (single path component).
func (f *FileItem) Name() string { return f.name }

// Size returns the backend-reported size, or filestore.SizeUnknown.
func (f *FileItem) Size() int64 { return f.info.Size }

// ContentID returns the backend content identifier, if any.
func (f *FileItem) ContentID() string { return f.info.ContentID }

// Dir returns the containing directory.
func (f *FileItem) Dir() *DirectoryItem { return f.parent }

// Read fetches the file content from the backend.
func (f *FileItem) Read(ctx context.Context) ([]byte, error) {
	h, err := f.parent.ensureHandler(ctx)
	if err != nil {
		return nil, err
	}
	data, err := h.GetFile(ctx, f.name)
	if err != nil {
		return nil, mapBackendError(err, f.name)
	}
	return data, nil
}

// DirectoryItem is a cached directory node. Content is read lazily from
// the backend; ForgetContent drops everything back to the unread state.
type DirectoryItem struct {
	name    string
	parent  *DirectoryItem
	handler filestore.Handler

	wasRead    bool
	hasUnknown bool
	files      map[string]*FileItem
	dirs       map[string]*DirectoryItem
	props      map[string]string

	owner      string
	ownerValid bool

	keyInfo    *gameprobe.KeyInfo
	keyProbed  bool
	gameInfo   *gameprobe.GameInfo
	gameProbed bool
}

// NewRoot wraps a backend handler as the root of a namespace.
func NewRoot(h filestore.Handler) *DirectoryItem {
	return &DirectoryItem{handler: h}
}

// Name returns the directory name; empty for the root.
func (d *DirectoryItem) Name() string { return d.name }

// Parent returns the containing directory, or nil for the root.
func (d *DirectoryItem) Parent() *DirectoryItem { return d.parent }

// Path returns the slash-separated path from the root, empty for the root.
func (d *DirectoryItem) Path() string {
	if d.parent == nil {
		return ""
	}
	parent := d.parent.Path()
	if parent == "" {
		return d.name
	}
	return parent + "/" + d.name
}

func (d *DirectoryItem) ensureHandler(ctx context.Context) (filestore.Handler, error) {
	if d.handler != nil {
		return d.handler, nil
	}
	ph, err := d.parent.ensureHandler(ctx)
	if err != nil {
		return nil, err
	}
	h, err := ph.EnterDirectory(ctx, d.name)
	if err != nil {
		return nil, mapBackendError(err, d.name)
	}
	d.handler = h
	return h, nil
}

// ReadContent populates the cache from the backend. It is idempotent;
// read errors are logged and leave the directory appearing empty.
func (d *DirectoryItem) ReadContent(ctx context.Context) {
	if d.wasRead {
		return
	}
	d.wasRead = true
	d.files = make(map[string]*FileItem)
	d.dirs = make(map[string]*DirectoryItem)
	d.props = make(map[string]string)

	h, err := d.ensureHandler(ctx)
	if err != nil {
		logger.Warn("Cannot access directory", "path", d.Path(), "error", err)
		return
	}

	var controlSeen bool
	err = h.List(ctx, func(e filestore.Entry) {
		switch e.Type {
		case filestore.EntryDir:
			if strings.HasPrefix(e.Name, ".") {
				d.hasUnknown = true
				return
			}
			d.dirs[e.Name] = &DirectoryItem{name: e.Name, parent: d}
		case filestore.EntryFile:
			if strings.HasPrefix(e.Name, ".") {
				if e.Name == ControlFileName {
					controlSeen = true
				} else {
					d.hasUnknown = true
				}
				return
			}
			d.files[e.Name] = &FileItem{name: e.Name, parent: d, info: e.Info}
		default:
			d.hasUnknown = true
		}
	})
	if err != nil {
		logger.Warn("Cannot list directory", "path", d.Path(), "error", err)
		d.files = make(map[string]*FileItem)
		d.dirs = make(map[string]*DirectoryItem)
		return
	}

	if controlSeen {
		data, err := h.GetFile(ctx, ControlFileName)
		if err == nil {
			props, perr := parseControlFile(data)
			err = perr
			if perr == nil {
				d.props = props
			}
		}
		if err != nil {
			logger.Warn("Cannot read control file", "path", d.Path(), "error", err)
			d.hasUnknown = true
		}
	}
}

// ForgetContent resets the node and all derived data to unread.
func (d *DirectoryItem) ForgetContent() {
	d.wasRead = false
	d.hasUnknown = false
	d.files = nil
	d.dirs = nil
	d.props = nil
	d.ownerValid = false
	d.owner = ""
	d.keyInfo = nil
	d.keyProbed = false
	d.gameInfo = nil
	d.gameProbed = false
	if d.parent != nil {
		d.handler = nil
	}
}

// WasRead reports whether the content has been read.
func (d *DirectoryItem) WasRead() bool { return d.wasRead }

// HasUnknownContent reports whether the directory contains entries the
// service does not manage (dotfiles other than the control file, or
// entries of unknown type). Such directories cannot be removed.
func (d *DirectoryItem) HasUnknownContent(ctx context.Context) bool {
	d.ReadContent(ctx)
	return d.hasUnknown
}

// Files returns the cached files sorted by name.
func (d *DirectoryItem) Files(ctx context.Context) []*FileItem {
	d.ReadContent(ctx)
	out := make([]*FileItem, 0, len(d.files))
	for _, f := range d.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Dirs returns the cached subdirectories sorted by name.
func (d *DirectoryItem) Dirs(ctx context.Context) []*DirectoryItem {
	d.ReadContent(ctx)
	out := make([]*DirectoryItem, 0, len(d.dirs))
	for _, c := range d.dirs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// File returns the named file, or nil.
func (d *DirectoryItem) File(ctx context.Context, name string) *FileItem {
	d.ReadContent(ctx)
	return d.files[name]
}

// Dir returns the named subdirectory, or nil.
func (d *DirectoryItem) Dir(ctx context.Context, name string) *DirectoryItem {
	d.ReadContent(ctx)
	return d.dirs[name]
}

// Owner returns the owning user of this directory: the "owner" control
// value, or recursively the owner of the parent. Empty means admin-only.
// The result is cached; changing the owner of a parent does not refresh
// already-cached children.
func (d *DirectoryItem) Owner(ctx context.Context) string {
	if d.ownerValid {
		return d.owner
	}
	d.ReadContent(ctx)
	if v, ok := d.props[ownerKey]; ok {
		d.owner = v
	} else if d.parent != nil {
		d.owner = d.parent.Owner(ctx)
	}
	d.ownerValid = true
	return d.owner
}

// PermissionsFor computes the permission set of user on this directory.
// The empty user is the admin context and holds every flag, as does the
// owner. Otherwise a per-user entry decides, then the world entry.
func (d *DirectoryItem) PermissionsFor(ctx context.Context, user string) Permission {
	if user == "" {
		return PermAll
	}
	if owner := d.Owner(ctx); owner != "" && user == owner {
		return PermAll
	}
	d.ReadContent(ctx)
	if v, ok := d.props[permsPrefix+user]; ok {
		return ParsePermission(v)
	}
	if v, ok := d.props[permsAllKey]; ok {
		return ParsePermission(v)
	}
	return 0
}

// Property returns the user-visible property value stored under
// "prop:" + name.
func (d *DirectoryItem) Property(ctx context.Context, name string) (string, bool) {
	d.ReadContent(ctx)
	v, ok := d.props[propPrefix+name]
	return v, ok
}

// SetProperty stores a user-visible property. Setting an empty value
// keeps the key present; see PROPSET.
func (d *DirectoryItem) SetProperty(ctx context.Context, name, value string) error {
	if !validControlKey(propPrefix+name) || strings.ContainsAny(name, ":") {
		return svcerr.BadRequest("Invalid property name")
	}
	if !validControlValue(value) {
		return svcerr.BadRequest("Invalid property value")
	}
	return d.setControlValue(ctx, propPrefix+name, value)
}

// SetPermission stores the permission string for a user ("*" for world).
// The string is canonicalised; unknown characters are dropped.
func (d *DirectoryItem) SetPermission(ctx context.Context, user, perms string) error {
	if user == "" || !validControlKey(permsPrefix+user) {
		return svcerr.BadRequest("Invalid user name")
	}
	return d.setControlValue(ctx, permsPrefix+user, ParsePermission(perms).String())
}

// SetOwner records the owning user and refreshes this node's cached
// owner. Cached children keep their previous owner until forgotten.
func (d *DirectoryItem) SetOwner(ctx context.Context, user string) error {
	if !validControlValue(user) {
		return svcerr.BadRequest("Invalid user name")
	}
	if err := d.setControlValue(ctx, ownerKey, user); err != nil {
		return err
	}
	d.owner = user
	d.ownerValid = true
	return nil
}

// UserPermission is one per-user entry of a directory's permission list.
type UserPermission struct {
	User string
	Perm Permission
}

// Permissions lists the explicit permission entries, sorted by user.
func (d *DirectoryItem) Permissions(ctx context.Context) []UserPermission {
	d.ReadContent(ctx)
	var out []UserPermission
	for k, v := range d.props {
		if user, ok := strings.CutPrefix(k, permsPrefix); ok {
			out = append(out, UserPermission{User: user, Perm: ParsePermission(v)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}

// VisibilityLevel summarises how widely this directory is shared:
// 0 owner-only, 1 some per-user grants, 2 world grants.
func (d *DirectoryItem) VisibilityLevel(ctx context.Context) int {
	d.ReadContent(ctx)
	if ParsePermission(d.props[permsAllKey]) != 0 {
		return 2
	}
	for k, v := range d.props {
		if k != permsAllKey && strings.HasPrefix(k, permsPrefix) && ParsePermission(v) != 0 {
			return 1
		}
	}
	return 0
}

// setControlValue writes a new control file before updating the cache;
// if the write fails the node is forgotten so the next access re-reads
// the authoritative on-disk state.
func (d *DirectoryItem) setControlValue(ctx context.Context, key, value string) error {
	d.ReadContent(ctx)
	next := make(map[string]string, len(d.props)+1)
	for k, v := range d.props {
		next[k] = v
	}
	next[key] = value

	h, err := d.ensureHandler(ctx)
	if err != nil {
		return err
	}
	if _, err := h.PutFile(ctx, ControlFileName, encodeControlFile(next)); err != nil {
		logger.Error("Cannot write control file", "path", d.Path(), "error", err)
		d.ForgetContent()
		return svcerr.Internal("Cannot write control file")
	}
	d.props = next
	return nil
}

// RemoveControlFile deletes the control file and clears the metadata.
// Used when stripping a directory before removal.
func (d *DirectoryItem) RemoveControlFile(ctx context.Context) error {
	d.ReadContent(ctx)
	if len(d.props) == 0 {
		return nil
	}
	h, err := d.ensureHandler(ctx)
	if err != nil {
		return err
	}
	if err := h.RemoveFile(ctx, ControlFileName); err != nil && !errors.Is(err, filestore.ErrNotFound) {
		return mapBackendError(err, ControlFileName)
	}
	d.props = make(map[string]string)
	d.ownerValid = false
	d.owner = ""
	return nil
}

// CreateFile writes a file through the backend and records it in the cache.
// The parent is read first so the cache holds exactly one node per entry.
func (d *DirectoryItem) CreateFile(ctx context.Context, name string, content []byte) (*FileItem, error) {
	d.ReadContent(ctx)
	h, err := d.ensureHandler(ctx)
	if err != nil {
		return nil, err
	}
	info, err := h.PutFile(ctx, name, content)
	if err != nil {
		return nil, mapBackendError(err, name)
	}
	f := &FileItem{name: name, parent: d, info: info}
	d.files[name] = f
	d.gameProbed = false
	d.gameInfo = nil
	d.keyProbed = false
	d.keyInfo = nil
	return f, nil
}

// RemoveFile deletes a file through the backend and from the cache.
func (d *DirectoryItem) RemoveFile(ctx context.Context, name string) error {
	h, err := d.ensureHandler(ctx)
	if err != nil {
		return err
	}
	if err := h.RemoveFile(ctx, name); err != nil {
		return mapBackendError(err, name)
	}
	if d.wasRead {
		delete(d.files, name)
	}
	d.gameProbed = false
	d.gameInfo = nil
	d.keyProbed = false
	d.keyInfo = nil
	return nil
}

// CreateDirectory creates a subdirectory and records it in the cache.
// The parent is read first so the cache holds exactly one node per entry.
func (d *DirectoryItem) CreateDirectory(ctx context.Context, name string) (*DirectoryItem, error) {
	d.ReadContent(ctx)
	h, err := d.ensureHandler(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := h.CreateDirectory(ctx, name)
	if err != nil {
		return nil, mapBackendError(err, name)
	}
	child := &DirectoryItem{name: name, parent: d, handler: ch}
	d.dirs[name] = child
	return child, nil
}

// RemoveDirectory removes an empty subdirectory.
func (d *DirectoryItem) RemoveDirectory(ctx context.Context, name string) error {
	h, err := d.ensureHandler(ctx)
	if err != nil {
		return err
	}
	if err := h.RemoveDirectory(ctx, name); err != nil {
		return mapBackendError(err, name)
	}
	if d.wasRead {
		delete(d.dirs, name)
	}
	return nil
}

// CopyFileFrom copies src (a file in srcDir) to name in this directory,
// preferring a backend-side copy when both ends support it. Returns the
// new file record, or handled=false when the caller must fall back to a
// read-write copy.
func (d *DirectoryItem) CopyFileFrom(ctx context.Context, srcDir *DirectoryItem, srcName, name string) (bool, error) {
	h, err := d.ensureHandler(ctx)
	if err != nil {
		return false, err
	}
	copier, ok := h.(filestore.Copier)
	if !ok {
		return false, nil
	}
	sh, err := srcDir.ensureHandler(ctx)
	if err != nil {
		return false, err
	}
	handled, err := copier.CopyFile(ctx, sh, srcName, name)
	if err != nil {
		return handled, mapBackendError(err, srcName)
	}
	if handled && d.wasRead {
		// Pick up the backend's info record for the new file.
		src := srcDir.File(ctx, srcName)
		info := filestore.FileInfo{Name: name, Size: filestore.SizeUnknown}
		if src != nil {
			info.Size = src.info.Size
			info.ContentID = src.info.ContentID
		}
		d.files[name] = &FileItem{name: name, parent: d, info: info}
		d.gameProbed = false
		d.gameInfo = nil
		d.keyProbed = false
		d.keyInfo = nil
	}
	return handled, nil
}

// CachedKeyInfo returns the probe result recorded by SetCachedKeyInfo.
func (d *DirectoryItem) CachedKeyInfo() (*gameprobe.KeyInfo, bool) {
	return d.keyInfo, d.keyProbed
}

// SetCachedKeyInfo records a registration probe result (nil = probed,
// nothing found). Dropped on ForgetContent and on file changes.
func (d *DirectoryItem) SetCachedKeyInfo(info *gameprobe.KeyInfo) {
	d.keyInfo = info
	d.keyProbed = true
}

// CachedGameInfo returns the probe result recorded by SetCachedGameInfo.
func (d *DirectoryItem) CachedGameInfo() (*gameprobe.GameInfo, bool) {
	return d.gameInfo, d.gameProbed
}

// SetCachedGameInfo records a game overview probe result.
func (d *DirectoryItem) SetCachedGameInfo(info *gameprobe.GameInfo) {
	d.gameInfo = info
	d.gameProbed = true
}

// mapBackendError converts filestore sentinels to wire error codes.
func mapBackendError(err error, name string) error {
	switch {
	case errors.Is(err, filestore.ErrNotFound):
		return svcerr.NotFound("File not found")
	case errors.Is(err, filestore.ErrExists):
		return svcerr.AlreadyExists("Already exists")
	case errors.Is(err, filestore.ErrNotEmpty):
		return svcerr.New(409, "Directory not empty")
	case errors.Is(err, filestore.ErrNotDirectory):
		return svcerr.NotADirectory()
	case errors.Is(err, filestore.ErrIsDirectory):
		return svcerr.New(svcerr.CodeNotADirectory, "Is a directory")
	default:
		logger.Error("Backend error", "name", name, "error", err)
		return fmt.Errorf("backend: %w", err)
	}
}
