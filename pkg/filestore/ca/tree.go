package ca

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// File modes used in tree objects, matching git's conventions.
const (
	modeFile = "100644"
	modeTree = "40000"
)

// treeEntry is one (mode, name, object) triple of a tree object.
type treeEntry struct {
	Mode string
	Name string
	ID   ObjectID
}

// encodeTree serialises entries as "<mode> <name>\x00<20-byte id>" records.
// Entries are sorted the way git sorts them: by name, with directory names
// compared as if they ended in "/".
func encodeTree(entries []treeEntry) []byte {
	sorted := make([]treeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sortKey(sorted[i]) < sortKey(sorted[j])
	})

	var buf bytes.Buffer
	for _, e := range sorted {
		buf.WriteString(e.Mode)
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.ID[:])
	}
	return buf.Bytes()
}

func sortKey(e treeEntry) string {
	if e.Mode == modeTree {
		return e.Name + "/"
	}
	return e.Name
}

// decodeTree parses a tree object body.
func decodeTree(body []byte) ([]treeEntry, error) {
	var entries []treeEntry
	for len(body) > 0 {
		nul := bytes.IndexByte(body, 0)
		if nul < 0 || len(body) < nul+1+20 {
			return nil, fmt.Errorf("truncated tree entry")
		}
		mode, name, ok := strings.Cut(string(body[:nul]), " ")
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed tree entry %q", body[:nul])
		}
		var id ObjectID
		copy(id[:], body[nul+1:nul+1+20])
		entries = append(entries, treeEntry{Mode: mode, Name: name, ID: id})
		body = body[nul+1+20:]
	}
	return entries, nil
}

// encodeCommit serialises the master state pointer. Commits carry no parent
// link; superseded commits become garbage and are reclaimed by GC.
func encodeCommit(tree ObjectID) []byte {
	return []byte(fmt.Sprintf("tree %s\n", tree))
}

// decodeCommit extracts the tree id from a commit body.
func decodeCommit(body []byte) (ObjectID, error) {
	line, _, _ := strings.Cut(string(body), "\n")
	hexID, ok := strings.CutPrefix(line, "tree ")
	if !ok {
		return ObjectID{}, fmt.Errorf("malformed commit %q", line)
	}
	return ParseID(hexID)
}
