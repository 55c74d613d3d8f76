package vfs

import "strings"

// Permission is a set of access flags on a directory.
type Permission uint8

const (
	// PermRead allows fetching files by name.
	PermRead Permission = 1 << iota

	// PermWrite allows creating files and subdirectories.
	PermWrite

	// PermList allows listing the directory content.
	PermList

	// PermAccess allows changing permissions and properties.
	PermAccess
)

// PermAll grants every flag. Held by the owner and by the admin context.
const PermAll = PermRead | PermWrite | PermList | PermAccess

// ParsePermission decodes a permission string. Recognised characters are
// "r", "w", "l", "a"; anything else is ignored.
func ParsePermission(s string) Permission {
	var p Permission
	for _, c := range s {
		switch c {
		case 'r':
			p |= PermRead
		case 'w':
			p |= PermWrite
		case 'l':
			p |= PermList
		case 'a':
			p |= PermAccess
		}
	}
	return p
}

// String renders the canonical permission string. The empty set renders
// as "0" so that it survives a round trip through the control file.
func (p Permission) String() string {
	if p == 0 {
		return "0"
	}
	var b strings.Builder
	if p&PermRead != 0 {
		b.WriteByte('r')
	}
	if p&PermWrite != 0 {
		b.WriteByte('w')
	}
	if p&PermList != 0 {
		b.WriteByte('l')
	}
	if p&PermAccess != 0 {
		b.WriteByte('a')
	}
	return b.String()
}

// Has reports whether all flags in want are present.
func (p Permission) Has(want Permission) bool {
	return p&want == want
}
