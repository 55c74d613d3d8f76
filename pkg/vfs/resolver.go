package vfs

import (
	"context"
	"strings"

	"github.com/planethub/planethub/pkg/svcerr"
)

// Resolver resolves slash-separated paths against a root directory on
// behalf of one user. The empty user is the admin context.
//
// Error discrimination follows the visibility rules: a missing name
// yields 404 only when the caller can list the containing directory,
// 403 otherwise, so that non-listable directories do not leak names.
type Resolver struct {
	root *DirectoryItem
	user string
}

// NewResolver creates a resolver for user over root.
func NewResolver(root *DirectoryItem, user string) *Resolver {
	return &Resolver{root: root, user: user}
}

// User returns the user this resolver acts for.
func (r *Resolver) User() string { return r.user }

// ValidComponent reports whether name is acceptable as a path component:
// non-empty, no leading dot, none of NUL, ":", "/", "\".
func ValidComponent(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, "\x00:/\\")
}

// SplitPath splits a path into validated components. The empty path
// denotes the root and yields no components.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	comps := strings.Split(path, "/")
	for _, c := range comps {
		if !ValidComponent(c) {
			return nil, svcerr.BadRequest("Invalid file name")
		}
	}
	return comps, nil
}

// missing returns the error for a name that does not exist in parent.
func (r *Resolver) missing(ctx context.Context, parent *DirectoryItem) error {
	if parent.PermissionsFor(ctx, r.user).Has(PermList) {
		return svcerr.NotFound("File not found")
	}
	return svcerr.PermissionDenied()
}

// notDirectory returns the error for a name that exists in parent but is
// not a directory (or vice versa), hiding the fact from non-listing users.
func (r *Resolver) notDirectory(ctx context.Context, parent *DirectoryItem) error {
	if parent.PermissionsFor(ctx, r.user).Has(PermList) {
		return svcerr.NotADirectory()
	}
	return svcerr.PermissionDenied()
}

// walk resolves a component chain to a directory, without checking any
// permission on the final node.
func (r *Resolver) walk(ctx context.Context, comps []string) (*DirectoryItem, error) {
	cur := r.root
	for _, name := range comps {
		next := cur.Dir(ctx, name)
		if next == nil {
			if cur.File(ctx, name) != nil {
				return nil, r.notDirectory(ctx, cur)
			}
			return nil, r.missing(ctx, cur)
		}
		cur = next
	}
	return cur, nil
}

// Directory resolves path to a directory and requires the given
// permission flags on it (need may be zero).
func (r *Resolver) Directory(ctx context.Context, path string, need Permission) (*DirectoryItem, error) {
	comps, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	dir, err := r.walk(ctx, comps)
	if err != nil {
		return nil, err
	}
	if !dir.PermissionsFor(ctx, r.user).Has(need) {
		return nil, svcerr.PermissionDenied()
	}
	return dir, nil
}

// Parent resolves all but the last component to a directory and returns
// it together with the validated final component. No permission is
// checked on the parent; callers demand what the operation needs.
func (r *Resolver) Parent(ctx context.Context, path string) (*DirectoryItem, string, error) {
	comps, err := SplitPath(path)
	if err != nil {
		return nil, "", err
	}
	if len(comps) == 0 {
		return nil, "", svcerr.BadRequest("Invalid file name")
	}
	dir, err := r.walk(ctx, comps[:len(comps)-1])
	if err != nil {
		return nil, "", err
	}
	return dir, comps[len(comps)-1], nil
}

// File resolves path to a readable file: the containing directory must
// grant Read.
func (r *Resolver) File(ctx context.Context, path string) (*FileItem, error) {
	parent, name, err := r.Parent(ctx, path)
	if err != nil {
		return nil, err
	}
	perms := parent.PermissionsFor(ctx, r.user)
	f := parent.File(ctx, name)
	if f == nil {
		if parent.Dir(ctx, name) != nil {
			if perms.Has(PermList) {
				return nil, svcerr.New(svcerr.CodeNotADirectory, "Is a directory")
			}
			return nil, svcerr.PermissionDenied()
		}
		return nil, r.missing(ctx, parent)
	}
	if !perms.Has(PermRead) {
		return nil, svcerr.PermissionDenied()
	}
	return f, nil
}

// Stat resolves path to either a file or a directory. A directory is
// visible when it grants List to the caller; a file when the containing
// directory grants Read.
func (r *Resolver) Stat(ctx context.Context, path string) (*FileItem, *DirectoryItem, error) {
	parent, name, err := r.Parent(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if d := parent.Dir(ctx, name); d != nil {
		if !d.PermissionsFor(ctx, r.user).Has(PermList) {
			return nil, nil, svcerr.PermissionDenied()
		}
		return nil, d, nil
	}
	if f := parent.File(ctx, name); f != nil {
		if !parent.PermissionsFor(ctx, r.user).Has(PermRead) {
			return nil, nil, svcerr.PermissionDenied()
		}
		return f, nil, nil
	}
	return nil, nil, r.missing(ctx, parent)
}
