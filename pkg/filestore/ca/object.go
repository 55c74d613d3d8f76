package ca

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/planethub/planethub/pkg/filestore"
)

// Object types stored in the object database.
const (
	typeBlob   = "blob"
	typeTree   = "tree"
	typeCommit = "commit"
)

// ObjectID names an object by the SHA-1 of its encoded form.
type ObjectID [20]byte

// String returns the lowercase hex form.
func (id ObjectID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the id is unset.
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

// ParseID parses a 40-digit hex object id.
func ParseID(s string) (ObjectID, error) {
	var id ObjectID
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(id) {
		return id, fmt.Errorf("invalid object id %q", s)
	}
	copy(id[:], raw)
	return id, nil
}

// objectStore is the on-disk object database: zlib-compressed
// "<type> <size>\x00<body>" files under objects/XX/YYYY…, git-compatible.
type objectStore struct {
	dir string
}

func newObjectStore(dir string) (*objectStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &objectStore{dir: dir}, nil
}

func (s *objectStore) path(id ObjectID) string {
	name := id.String()
	return filepath.Join(s.dir, name[:2], name[2:])
}

// Write stores the object and returns its id. Identical content is stored
// exactly once.
func (s *objectStore) Write(typ string, body []byte) (ObjectID, error) {
	var encoded bytes.Buffer
	fmt.Fprintf(&encoded, "%s %d\x00", typ, len(body))
	encoded.Write(body)

	id := ObjectID(sha1.Sum(encoded.Bytes()))
	path := s.path(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return ObjectID{}, err
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(encoded.Bytes()); err != nil {
		return ObjectID{}, err
	}
	if err := zw.Close(); err != nil {
		return ObjectID{}, err
	}

	// Write-then-rename so a crashed write never leaves a truncated object
	// under its final name.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed.Bytes(), 0644); err != nil {
		return ObjectID{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return ObjectID{}, err
	}
	return id, nil
}

// Read loads an object and returns its type and body.
func (s *objectStore) Read(id ObjectID) (string, []byte, error) {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("object %s: %w", id, filestore.ErrNotFound)
		}
		return "", nil, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", nil, fmt.Errorf("object %s: corrupt: %w", id, err)
	}
	defer zr.Close()

	decoded, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, fmt.Errorf("object %s: corrupt: %w", id, err)
	}

	typ, body, err := splitHeader(decoded)
	if err != nil {
		return "", nil, fmt.Errorf("object %s: %w", id, err)
	}
	return typ, body, nil
}

// Stat returns the type and body size without reading the full body into
// the caller's hands; used for cheap size queries on blobs.
func (s *objectStore) Stat(id ObjectID) (string, int64, error) {
	typ, body, err := s.Read(id)
	if err != nil {
		return "", 0, err
	}
	return typ, int64(len(body)), nil
}

// Remove deletes an object. Used only by the garbage collector.
func (s *objectStore) Remove(id ObjectID) error {
	return os.Remove(s.path(id))
}

// Walk calls fn for every object in the database.
func (s *objectStore) Walk(fn func(ObjectID) error) error {
	fans, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, fan := range fans {
		if !fan.IsDir() || len(fan.Name()) != 2 {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.dir, fan.Name()))
		if err != nil {
			return err
		}
		for _, f := range files {
			id, err := ParseID(fan.Name() + f.Name())
			if err != nil {
				continue
			}
			if err := fn(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func splitHeader(decoded []byte) (string, []byte, error) {
	nul := bytes.IndexByte(decoded, 0)
	if nul < 0 {
		return "", nil, fmt.Errorf("missing object header")
	}
	header := string(decoded[:nul])
	typ, _, ok := bytes.Cut([]byte(header), []byte(" "))
	if !ok {
		return "", nil, fmt.Errorf("malformed object header %q", header)
	}
	return string(typ), decoded[nul+1:], nil
}
