package fileservice

import (
	"context"
	"strconv"

	"github.com/planethub/planethub/internal/protocol/resp"
	"github.com/planethub/planethub/pkg/gameprobe"
	"github.com/planethub/planethub/pkg/svcerr"
	"github.com/planethub/planethub/pkg/vfs"
)

// dirSource adapts a cached directory node to the probe's read interface.
type dirSource struct {
	d *vfs.DirectoryItem
}

func (s dirSource) HasFile(ctx context.Context, name string) bool {
	return s.d.File(ctx, name) != nil
}

func (s dirSource) ReadFile(ctx context.Context, name string) ([]byte, error) {
	f := s.d.File(ctx, name)
	if f == nil {
		return nil, svcerr.NotFound("File not found")
	}
	return f.Read(ctx)
}

// keyInfoFor probes and caches the registration key of a directory.
func keyInfoFor(ctx context.Context, d *vfs.DirectoryItem) *gameprobe.KeyInfo {
	if info, probed := d.CachedKeyInfo(); probed {
		return info
	}
	info := gameprobe.ProbeKey(ctx, dirSource{d})
	d.SetCachedKeyInfo(info)
	return info
}

// gameInfoFor probes and caches the game overview of a directory.
func gameInfoFor(ctx context.Context, d *vfs.DirectoryItem) *gameprobe.GameInfo {
	if info, probed := d.CachedGameInfo(); probed {
		return info
	}
	info := gameprobe.ProbeGame(ctx, dirSource{d})
	d.SetCachedGameInfo(info)
	return info
}

func keyValue(path string, info *gameprobe.KeyInfo) resp.Value {
	reg := int64(0)
	if info.Registered {
		reg = 1
	}
	return resp.Array(
		resp.Bulk(path),
		resp.Bulk(info.FileName),
		resp.Integer(reg),
		resp.Bulk(info.Label1),
		resp.Bulk(info.Label2),
		resp.Integer(int64(info.KeyID)),
	)
}

func propOr(ctx context.Context, d *vfs.DirectoryItem, name string) string {
	v, _ := d.Property(ctx, name)
	return v
}

func gameValue(ctx context.Context, path string, d *vfs.DirectoryItem, info *gameprobe.GameInfo) resp.Value {
	slots := make([]resp.Value, len(info.Slots))
	for i, slot := range info.Slots {
		slots[i] = resp.Array(resp.Integer(int64(slot.Number)), resp.Bulk(slot.RaceName))
	}
	return resp.Array(
		resp.Bulk(path),
		resp.Bulk(propOr(ctx, d, "name")),
		resp.Bulk(propOr(ctx, d, "game")),
		resp.Bulk(propOr(ctx, d, "hosttime")),
		resp.Bulk(propOr(ctx, d, "finished")),
		resp.Bulk(info.HostVersion),
		resp.Array(slots...),
		resp.StringArray(info.MissingFiles...),
	)
}

// StatReg reports the registration key of one directory, or null.
func (s *Service) StatReg(ctx context.Context, user, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.resolver(user).Directory(ctx, path, vfs.PermRead)
	if err != nil {
		return resp.Value{}, err
	}
	info := keyInfoFor(ctx, dir)
	if info == nil {
		return resp.Null(), nil
	}
	return keyValue(path, info), nil
}

// ListRegOptions filter the LSREG report.
type ListRegOptions struct {
	// Unique reports each distinct key id once.
	Unique bool

	// KeyID restricts the report to one key id (0 = all).
	KeyID uint32
}

// ListReg scans a subtree for registration keys. Directories the user
// cannot read are skipped; subdirectories the user cannot list are not
// descended into.
func (s *Service) ListReg(ctx context.Context, user, path string, opts ListRegOptions) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, err := s.resolver(user).Directory(ctx, path, 0)
	if err != nil {
		return resp.Value{}, err
	}

	var rows []resp.Value
	seen := make(map[uint32]bool)
	forEachVisibleDir(ctx, start, path, user, func(p string, d *vfs.DirectoryItem) {
		if !d.PermissionsFor(ctx, user).Has(vfs.PermRead) {
			return
		}
		info := keyInfoFor(ctx, d)
		if info == nil {
			return
		}
		if opts.KeyID != 0 && info.KeyID != opts.KeyID {
			return
		}
		if opts.Unique {
			if seen[info.KeyID] {
				return
			}
			seen[info.KeyID] = true
		}
		rows = append(rows, keyValue(p, info))
	})
	return resp.Array(rows...), nil
}

// StatGame reports the hosted-game overview of one directory, or null.
func (s *Service) StatGame(ctx context.Context, user, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.resolver(user).Directory(ctx, path, vfs.PermRead)
	if err != nil {
		return resp.Value{}, err
	}
	info := gameInfoFor(ctx, dir)
	if info == nil {
		return resp.Null(), nil
	}
	return gameValue(ctx, path, dir, info), nil
}

// ListGame scans a subtree for hosted games.
func (s *Service) ListGame(ctx context.Context, user, path string) (resp.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, err := s.resolver(user).Directory(ctx, path, 0)
	if err != nil {
		return resp.Value{}, err
	}

	var rows []resp.Value
	forEachVisibleDir(ctx, start, path, user, func(p string, d *vfs.DirectoryItem) {
		if !d.PermissionsFor(ctx, user).Has(vfs.PermRead) {
			return
		}
		if info := gameInfoFor(ctx, d); info != nil {
			rows = append(rows, gameValue(ctx, p, d, info))
		}
	})
	return resp.Array(rows...), nil
}

// forEachVisibleDir walks a subtree breadth-first with an explicit work
// list, calling fn for every directory including the start. Descends
// only into subdirectories the user may list.
func forEachVisibleDir(ctx context.Context, start *vfs.DirectoryItem, startPath, user string, fn func(path string, d *vfs.DirectoryItem)) {
	type item struct {
		path string
		dir  *vfs.DirectoryItem
	}
	queue := []item{{path: startPath, dir: start}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		fn(cur.path, cur.dir)
		for _, c := range cur.dir.Dirs(ctx) {
			if !c.PermissionsFor(ctx, user).Has(vfs.PermList) {
				continue
			}
			p := c.Name()
			if cur.path != "" {
				p = cur.path + "/" + c.Name()
			}
			queue = append(queue, item{path: p, dir: c})
		}
	}
}

// ParseListRegArgs decodes the optional LSREG flags following the path.
func ParseListRegArgs(args []string) (ListRegOptions, bool) {
	var opts ListRegOptions
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-UNIQ":
			opts.Unique = true
		case "-KEY":
			if i+1 >= len(args) {
				return opts, false
			}
			id, err := strconv.ParseUint(args[i+1], 10, 32)
			if err != nil {
				return opts, false
			}
			opts.KeyID = uint32(id)
			i++
		default:
			return opts, false
		}
	}
	return opts, true
}
