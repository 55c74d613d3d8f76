package vfs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/planethub/planethub/pkg/svcerr"
)

// ControlFileName is the hidden per-directory metadata file.
const ControlFileName = ".c2file"

// Reserved control keys and prefixes. User-visible properties are stored
// under the "prop:" prefix; per-user permissions under "perms:".
const (
	ownerKey    = "owner"
	propPrefix  = "prop:"
	permsPrefix = "perms:"
	permsAllKey = "perms:*"
)

// validControlKey reports whether s may be used as a control-file key.
func validControlKey(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, "=\r\n")
}

// validControlValue reports whether s may be stored as a control-file value.
func validControlValue(s string) bool {
	return !strings.ContainsAny(s, "\r\n")
}

// parseControlFile decodes the key=value lines of a control file.
// Malformed lines are an error; the file is written by us only.
func parseControlFile(data []byte) (map[string]string, error) {
	props := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, svcerr.Newf(422, "Invalid control file line %q", line)
		}
		props[key] = value
	}
	return props, nil
}

// encodeControlFile renders properties with deterministic key order.
func encodeControlFile(props map[string]string) []byte {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, props[k])
	}
	return []byte(b.String())
}
