// Package filestore defines the low-level directory handler abstraction
// behind the file service's namespace.
//
// A Handler gives access to exactly one directory: its files, and handlers
// for its subdirectories. Implementations exist for the local filesystem
// (localfs), for memory (memory), for a content-addressable git-layout store
// (ca), and for an S3 bucket (s3). Optional capabilities (backend-side copy,
// snapshots) are expressed as additional interfaces that callers probe with
// type assertions; a backend that does not implement them gets the generic
// fallback behavior.
//
// Handlers report failures as generic errors wrapping the sentinel values
// below. The namespace layer translates them into user-visible coded errors;
// nothing in this package knows about wire codes.
package filestore

import (
	"context"
	"errors"
)

// Sentinel errors returned by handler implementations.
var (
	// ErrNotFound indicates the named file or directory does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExists indicates the name is already taken.
	ErrExists = errors.New("already exists")

	// ErrNotEmpty indicates a directory still has content.
	ErrNotEmpty = errors.New("directory not empty")

	// ErrNotDirectory indicates the name refers to a file.
	ErrNotDirectory = errors.New("not a directory")

	// ErrIsDirectory indicates the name refers to a directory.
	ErrIsDirectory = errors.New("is a directory")
)

// SizeUnknown marks a FileInfo whose backend cannot report a size cheaply.
const SizeUnknown int64 = -1

// FileInfo is the backend-supplied record for one file.
type FileInfo struct {
	// Name is the file name within its directory.
	Name string

	// Size is the content size in bytes, or SizeUnknown.
	Size int64

	// ContentID is an opaque backend content identifier ("" if none).
	// The content-addressable backend reports the object id, which equal
	// content shares.
	ContentID string
}

// EntryType classifies one directory entry.
type EntryType int

const (
	// EntryFile is a regular file.
	EntryFile EntryType = iota

	// EntryDir is a subdirectory.
	EntryDir

	// EntryUnknown is anything else (device node, socket, dangling link).
	// The namespace layer treats unknown entries as unremovable content.
	EntryUnknown
)

// Entry is one item reported by List.
type Entry struct {
	Type EntryType
	Name string

	// Info is populated for EntryFile entries.
	Info FileInfo
}

// Handler is the low-level interface to one directory.
//
// Name arguments are single path components; traversal happens through
// EnterDirectory. Implementations need not validate component syntax (the
// namespace layer rejects dangerous names before they get here) but must
// never interpret separators.
type Handler interface {
	// List reports every entry of the directory through fn.
	List(ctx context.Context, fn func(Entry)) error

	// GetFile returns the full content of the named file.
	GetFile(ctx context.Context, name string) ([]byte, error)

	// PutFile creates or replaces the named file.
	PutFile(ctx context.Context, name string, content []byte) (FileInfo, error)

	// RemoveFile deletes the named file.
	RemoveFile(ctx context.Context, name string) error

	// EnterDirectory returns a handler for the named subdirectory.
	EnterDirectory(ctx context.Context, name string) (Handler, error)

	// CreateDirectory creates the named subdirectory and returns its handler.
	CreateDirectory(ctx context.Context, name string) (Handler, error)

	// RemoveDirectory deletes the named subdirectory, which must be empty.
	RemoveDirectory(ctx context.Context, name string) error
}

// Copier is implemented by handlers that can copy a file without moving its
// content through the caller. CopyFile reports handled=false to decline, in
// which case the caller falls back to a read-write copy. Declining is not an
// error; the two are distinguished by the flag, not by the error value.
type Copier interface {
	CopyFile(ctx context.Context, src Handler, srcName, dstName string) (handled bool, err error)
}

// Snapshotter is implemented by root handlers that support named snapshots
// of the whole tree. Only the content-addressable backend does.
type Snapshotter interface {
	SnapCreate(ctx context.Context, name string) error
	SnapCopy(ctx context.Context, src, dst string) error
	SnapRemove(ctx context.Context, name string) error
	SnapList(ctx context.Context) ([]string, error)
}
