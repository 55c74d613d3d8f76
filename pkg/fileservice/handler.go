package fileservice

import (
	"context"

	"github.com/planethub/planethub/internal/protocol/resp"
	"github.com/planethub/planethub/pkg/svcerr"
)

// connHandler carries the per-connection state: the user set by USER.
type connHandler struct {
	svc  *Service
	user string
}

// NewHandler returns a fresh per-connection protocol handler. Each
// connection starts in the admin context until USER is issued.
func (s *Service) NewHandler() resp.Handler {
	return &connHandler{svc: s}
}

const helpText = `PlanetHub File Server
PING                    Check connectivity
HELP                    This text
USER user               Set user context ("" = admin)
STAT path               Describe a file or directory
LS dir                  List directory content
GET file                Fetch file content
PUT file content        Store file content
CP src dst              Copy a file
RM path                 Remove a file or empty directory
RMDIR dir               Remove a directory tree
MKDIR dir               Create a directory
MKDIRAS dir user        Create a directory owned by user (admin)
MKDIRHIER dir           Create all directories along a path
USAGE dir               Report subtree item and kilobyte counts
FORGET dir              Drop cached state
FTEST file...           Test file readability
PROPGET dir name        Read a directory property
PROPSET dir name value  Write a directory property
SETPERM dir user perms  Grant permissions (perms from "rwla", "0" = none)
LSPERM dir              List owner and permissions
STATREG dir             Report registration key
LSREG dir [-UNIQ] [-KEY id]  Scan subtree for registration keys
STATGAME dir            Report hosted game
LSGAME dir              Scan subtree for hosted games
SNAPCREATE name         Record a snapshot (CA backend, admin)
SNAPCP src dst          Copy a snapshot
SNAPRM name             Delete a snapshot
SNAPLS                  List snapshots`

func (h *connHandler) Handle(ctx context.Context, cmd resp.Command) (resp.Value, error) {
	args := cmd.Args
	// Verbs with fixed argument counts are checked up front; the few
	// variadic ones validate inline.
	argc := map[string]int{
		"PING": 0, "HELP": -1, "USER": 1,
		"STAT": 1, "LS": 1, "GET": 1, "PUT": 2, "CP": 2,
		"RM": 1, "RMDIR": 1, "MKDIR": 1, "MKDIRAS": 2, "MKDIRHIER": 1,
		"USAGE": 1, "FORGET": 1, "FTEST": -1,
		"PROPGET": 2, "PROPSET": 3, "SETPERM": 3, "LSPERM": 1,
		"STATREG": 1, "LSREG": -1, "STATGAME": 1, "LSGAME": 1,
		"SNAPCREATE": 1, "SNAPCP": 2, "SNAPRM": 1, "SNAPLS": 0,
	}
	want, known := argc[cmd.Verb]
	if !known {
		return resp.Value{}, svcerr.BadRequest("Unknown command")
	}
	if want >= 0 && len(args) != want {
		return resp.Value{}, svcerr.BadRequest("Invalid number of arguments")
	}

	switch cmd.Verb {
	case "PING":
		return resp.Simple("PONG"), nil
	case "HELP":
		return resp.Bulk(helpText), nil
	case "USER":
		h.user = args[0]
		return resp.Simple("OK"), nil
	case "STAT":
		return h.svc.Stat(ctx, h.user, args[0])
	case "LS":
		return h.svc.List(ctx, h.user, args[0])
	case "GET":
		return h.svc.Get(ctx, h.user, args[0])
	case "PUT":
		return h.svc.Put(ctx, h.user, args[0], []byte(args[1]))
	case "CP":
		return h.svc.Copy(ctx, h.user, args[0], args[1])
	case "RM":
		return h.svc.Remove(ctx, h.user, args[0])
	case "RMDIR":
		return h.svc.RemoveTree(ctx, h.user, args[0])
	case "MKDIR":
		return h.svc.Mkdir(ctx, h.user, args[0])
	case "MKDIRAS":
		return h.svc.MkdirAs(ctx, h.user, args[0], args[1])
	case "MKDIRHIER":
		return h.svc.MkdirHier(ctx, h.user, args[0])
	case "USAGE":
		return h.svc.Usage(ctx, h.user, args[0])
	case "FORGET":
		return h.svc.Forget(ctx, args[0])
	case "FTEST":
		return h.svc.FileTest(ctx, h.user, args)
	case "PROPGET":
		return h.svc.PropGet(ctx, h.user, args[0], args[1])
	case "PROPSET":
		return h.svc.PropSet(ctx, h.user, args[0], args[1], args[2])
	case "SETPERM":
		return h.svc.SetPerm(ctx, h.user, args[0], args[1], args[2])
	case "LSPERM":
		return h.svc.ListPerm(ctx, h.user, args[0])
	case "STATREG":
		return h.svc.StatReg(ctx, h.user, args[0])
	case "LSREG":
		if len(args) < 1 {
			return resp.Value{}, svcerr.BadRequest("Invalid number of arguments")
		}
		opts, ok := ParseListRegArgs(args[1:])
		if !ok {
			return resp.Value{}, svcerr.BadRequest("Invalid option")
		}
		return h.svc.ListReg(ctx, h.user, args[0], opts)
	case "STATGAME":
		return h.svc.StatGame(ctx, h.user, args[0])
	case "LSGAME":
		return h.svc.ListGame(ctx, h.user, args[0])
	case "SNAPCREATE":
		return h.svc.SnapCreate(ctx, h.user, args[0])
	case "SNAPCP":
		return h.svc.SnapCopy(ctx, h.user, args[0], args[1])
	case "SNAPRM":
		return h.svc.SnapRemove(ctx, h.user, args[0])
	case "SNAPLS":
		return h.svc.SnapList(ctx, h.user)
	}
	return resp.Value{}, svcerr.BadRequest("Unknown command")
}
