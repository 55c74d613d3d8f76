package router

import "strings"

// Conflict markers are session arguments beginning with -R (reader) or -W
// (writer). Readers on the same key coexist; a writer excludes everyone.
// Group selectors (CLOSE -Wkey, SAVE -Rkey*, ...) use the same syntax with
// wildcard matching enabled.

// splitMarker splits a conflict marker into its key tail and writer flag.
// Arguments that are not markers report ok=false.
func splitMarker(arg string) (tail string, writer, ok bool) {
	switch {
	case strings.HasPrefix(arg, "-W"):
		return arg[2:], true, true
	case strings.HasPrefix(arg, "-R"):
		return arg[2:], false, true
	}
	return "", false, false
}

// tailMatches matches a session marker tail against a query tail. In
// wildcard mode a query ending in "*" matches any tail equal to the prefix,
// or extending it across a "/" boundary.
func tailMatches(query, tail string, wild bool) bool {
	if wild && strings.HasSuffix(query, "*") {
		prefix := query[:len(query)-1]
		if tail == prefix {
			return true
		}
		return strings.HasPrefix(tail, prefix) && tail[len(prefix)] == '/'
	}
	return query == tail
}

// markersConflict reports whether two markers conflict: both must be
// markers, at least one must be a writer, and their tails must match.
func markersConflict(query, arg string, wild bool) bool {
	qTail, qWriter, qOK := splitMarker(query)
	aTail, aWriter, aOK := splitMarker(arg)
	if !qOK || !aOK {
		return false
	}
	if !qWriter && !aWriter {
		return false
	}
	return tailMatches(qTail, aTail, wild)
}

// argsConflict reports whether the query marker conflicts with any marker
// in args.
func argsConflict(query string, args []string, wild bool) bool {
	for _, a := range args {
		if markersConflict(query, a, wild) {
			return true
		}
	}
	return false
}

// sessionsConflict reports whether two argument vectors carry conflicting
// markers, using exact tail matching.
func sessionsConflict(queryArgs, args []string) bool {
	for _, q := range queryArgs {
		if argsConflict(q, args, false) {
			return true
		}
	}
	return false
}
