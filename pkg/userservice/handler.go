package userservice

import (
	"context"

	"github.com/planethub/planethub/internal/protocol/resp"
	"github.com/planethub/planethub/pkg/svcerr"
)

// handler is stateless; the user service has no per-connection context.
type handler struct {
	svc *Service
}

// NewHandler returns the protocol handler for one connection.
func (s *Service) NewHandler() resp.Handler {
	return &handler{svc: s}
}

const helpText = `PlanetHub User Server
PING                      Check connectivity
HELP                      This text
ADDUSER name pass         Create an account, returns the user id
DELUSER uid               Tombstone an account
LOGIN name pass           Verify credentials, returns the user id
LOOKUP name               Resolve a name to a user id
NAME uid                  Display name of a user
MNAME uid...              Display names of several users
GET uid field             Read a profile field
MGET uid field...         Read several profile fields
SET uid field value       Write a profile field
PASSWD uid pass           Replace the password
MAKETOKEN uid type        Get or mint a token (login, api, reset)
CHECKTOKEN token [TYPE t] [RENEW]
                          Validate a token
RESETTOKEN uid type...    Revoke tokens, returns the count
UGET uid key              Read user data
USET uid key value        Write user data`

func tokenValue(info TokenInfo) resp.Value {
	items := []resp.Value{
		resp.Bulk(info.UserID),
		resp.Bulk(info.Type),
		resp.Integer(info.ValidUntil.Unix()),
	}
	if info.NewToken != "" {
		items = append(items, resp.Bulk(info.NewToken))
	}
	return resp.Array(items...)
}

func (h *handler) Handle(ctx context.Context, cmd resp.Command) (resp.Value, error) {
	args := cmd.Args
	svc := h.svc

	wrongArgs := func() (resp.Value, error) {
		return resp.Value{}, svcerr.BadRequest("Invalid number of arguments")
	}

	switch cmd.Verb {
	case "PING":
		return resp.Simple("PONG"), nil

	case "HELP":
		return resp.Bulk(helpText), nil

	case "ADDUSER":
		if len(args) != 2 {
			return wrongArgs()
		}
		id, err := svc.AddUser(ctx, args[0], args[1])
		if err != nil {
			return resp.Value{}, err
		}
		return resp.Bulk(id), nil

	case "DELUSER":
		if len(args) != 1 {
			return wrongArgs()
		}
		if err := svc.DelUser(ctx, args[0]); err != nil {
			return resp.Value{}, err
		}
		return resp.Simple("OK"), nil

	case "LOGIN":
		if len(args) != 2 {
			return wrongArgs()
		}
		id, err := svc.Login(ctx, args[0], args[1])
		if err != nil {
			return resp.Value{}, err
		}
		return resp.Bulk(id), nil

	case "LOOKUP":
		if len(args) != 1 {
			return wrongArgs()
		}
		id, err := svc.Lookup(ctx, args[0])
		if err != nil {
			return resp.Value{}, err
		}
		return resp.Bulk(id), nil

	case "NAME":
		if len(args) != 1 {
			return wrongArgs()
		}
		name, err := svc.Name(ctx, args[0])
		if err != nil {
			return resp.Value{}, err
		}
		return resp.Bulk(name), nil

	case "MNAME":
		names, err := svc.Names(ctx, args)
		if err != nil {
			return resp.Value{}, err
		}
		return resp.StringArray(names...), nil

	case "GET":
		if len(args) != 2 {
			return wrongArgs()
		}
		v, err := svc.GetProfile(ctx, args[0], args[1])
		if err != nil {
			return resp.Value{}, err
		}
		return resp.Bulk(v), nil

	case "MGET":
		if len(args) < 1 {
			return wrongArgs()
		}
		items := make([]resp.Value, len(args)-1)
		for i, field := range args[1:] {
			v, err := svc.GetProfile(ctx, args[0], field)
			if err != nil {
				return resp.Value{}, err
			}
			items[i] = resp.Bulk(v)
		}
		return resp.Array(items...), nil

	case "SET":
		if len(args) != 3 {
			return wrongArgs()
		}
		if err := svc.SetProfile(ctx, args[0], args[1], args[2]); err != nil {
			return resp.Value{}, err
		}
		return resp.Simple("OK"), nil

	case "PASSWD":
		if len(args) != 2 {
			return wrongArgs()
		}
		if err := svc.SetPassword(ctx, args[0], args[1]); err != nil {
			return resp.Value{}, err
		}
		return resp.Simple("OK"), nil

	case "MAKETOKEN":
		if len(args) != 2 {
			return wrongArgs()
		}
		info, err := svc.GetToken(ctx, args[0], args[1])
		if err != nil {
			return resp.Value{}, err
		}
		return resp.Bulk(info.Token), nil

	case "CHECKTOKEN":
		if len(args) < 1 {
			return wrongArgs()
		}
		token := args[0]
		var requiredType string
		var renew bool
		for i := 1; i < len(args); i++ {
			switch args[i] {
			case "TYPE":
				if i+1 >= len(args) {
					return wrongArgs()
				}
				requiredType = args[i+1]
				i++
			case "RENEW":
				renew = true
			default:
				return resp.Value{}, svcerr.BadRequest("Invalid option")
			}
		}
		info, err := svc.CheckToken(ctx, token, requiredType, renew)
		if err != nil {
			return resp.Value{}, err
		}
		return tokenValue(info), nil

	case "RESETTOKEN":
		if len(args) < 2 {
			return wrongArgs()
		}
		n, err := svc.ResetTokens(ctx, args[0], args[1:])
		if err != nil {
			return resp.Value{}, err
		}
		return resp.Integer(int64(n)), nil

	case "UGET":
		if len(args) != 2 {
			return wrongArgs()
		}
		v, err := svc.GetData(ctx, args[0], args[1])
		if err != nil {
			return resp.Value{}, err
		}
		return resp.Bulk(v), nil

	case "USET":
		if len(args) != 3 {
			return wrongArgs()
		}
		if err := svc.SetData(ctx, args[0], args[1], args[2]); err != nil {
			return resp.Value{}, err
		}
		return resp.Simple("OK"), nil
	}
	return resp.Value{}, svcerr.BadRequest("Unknown command")
}
