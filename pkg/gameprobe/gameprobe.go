// Package gameprobe inspects game directories for registration keys and
// hosted-game artifacts. It understands just enough of the classic binary
// formats to summarise a directory; full game-file parsing is out of scope.
package gameprobe

import (
	"context"
	"encoding/binary"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Source provides read access to one game directory.
type Source interface {
	// HasFile reports whether the named file exists.
	HasFile(ctx context.Context, name string) bool

	// ReadFile returns the content of the named file.
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// KeyFileName is the registration key file.
const KeyFileName = "fizz.bin"

// MaxPlayers is the number of player slots in a hosted game.
const MaxPlayers = 11

// KeyInfo describes a registration key found in a directory.
type KeyInfo struct {
	FileName   string
	Registered bool
	Label1     string
	Label2     string
	KeyID      uint32
}

// Slot describes one occupied player slot.
type Slot struct {
	Number   int
	RaceName string
}

// GameInfo summarises a hosted game directory.
type GameInfo struct {
	Slots        []Slot
	MissingFiles []string
	HostVersion  string
}

// Registration key layout: 13 little-endian words, then two 25-byte
// label fields stored with a per-byte offset cipher, then the key id.
const (
	keyHeaderWords = 13
	keyLabelLen    = 25
	keyLabel1Off   = keyHeaderWords * 4
	keyLabel2Off   = keyLabel1Off + keyLabelLen
	keyIDOff       = keyLabel2Off + keyLabelLen
	keyFileSize    = keyIDOff + 4
)

// decodeLabel undoes the position cipher: each stored byte carries its
// one-based position as an additive offset.
func decodeLabel(raw []byte) string {
	out := make([]byte, len(raw))
	for i, b := range raw {
		out[i] = b - byte(i+1)
	}
	return strings.TrimRight(string(out), " \x00")
}

// parseKeyFile decodes a registration key file.
func parseKeyFile(data []byte) (*KeyInfo, error) {
	if len(data) < keyFileSize {
		return nil, fmt.Errorf("key file too short (%d bytes)", len(data))
	}
	return &KeyInfo{
		FileName:   KeyFileName,
		Registered: binary.LittleEndian.Uint32(data) != 0,
		Label1:     decodeLabel(data[keyLabel1Off:keyLabel2Off]),
		Label2:     decodeLabel(data[keyLabel2Off:keyIDOff]),
		KeyID:      binary.LittleEndian.Uint32(data[keyIDOff:]),
	}, nil
}

// ProbeKey looks for a registration key in the directory. Any read or
// parse failure yields nil; a missing or broken key is not an error.
func ProbeKey(ctx context.Context, src Source) *KeyInfo {
	if !src.HasFile(ctx, KeyFileName) {
		return nil
	}
	data, err := src.ReadFile(ctx, KeyFileName)
	if err != nil {
		return nil
	}
	info, err := parseKeyFile(data)
	if err != nil {
		return nil
	}
	return info
}

// standardFiles are expected in every hosted game directory.
var standardFiles = []string{
	"beamspec.dat",
	"engspec.dat",
	"hullspec.dat",
	"pconfig.src",
	"planet.nm",
	"torpspec.dat",
	"truehull.dat",
}

// defaultRaceNames is used when race.nm is absent.
var defaultRaceNames = []string{
	"The Solar Federation",
	"The Lizard Alliance",
	"The Empire of the Birds",
	"The Fascist Empire",
	"The Privateer Bands",
	"The Cyborg",
	"The Crystal Confederation",
	"The Evil Empire",
	"The Robotic Imperium",
	"The Rebel Confederation",
	"The Missing Colonies of Man",
}

// race.nm holds eleven 30-byte full names at offset 0; the shorter name
// tables that follow are not used here.
const raceNameLen = 30

func parseRaceNames(data []byte) ([]string, bool) {
	if len(data) < MaxPlayers*raceNameLen {
		return nil, false
	}
	names := make([]string, MaxPlayers)
	for i := range names {
		raw := data[i*raceNameLen : (i+1)*raceNameLen]
		names[i] = strings.TrimRight(string(raw), " \x00")
	}
	return names, true
}

var hostVersionRE = regexp.MustCompile(`VER[0-9][0-9.]{0,7}`)

// hostVersion scans the head of a result file for a version signature.
func hostVersion(data []byte) string {
	head := data
	if len(head) > 256 {
		head = head[:256]
	}
	return hostVersionRE.FindString(string(head))
}

// ProbeGame summarises a hosted game. Returns nil when no player result
// file is present (the directory does not look like a game).
func ProbeGame(ctx context.Context, src Source) *GameInfo {
	var occupied []int
	for n := 1; n <= MaxPlayers; n++ {
		if src.HasFile(ctx, fmt.Sprintf("player%d.rst", n)) {
			occupied = append(occupied, n)
		}
	}
	if len(occupied) == 0 {
		return nil
	}

	info := &GameInfo{}

	names := defaultRaceNames
	if src.HasFile(ctx, "race.nm") {
		data, err := src.ReadFile(ctx, "race.nm")
		if parsed, ok := parseRaceNames(data); err == nil && ok {
			names = parsed
		} else {
			info.MissingFiles = append(info.MissingFiles, "race.nm")
		}
	} else {
		info.MissingFiles = append(info.MissingFiles, "race.nm")
	}

	for _, n := range occupied {
		info.Slots = append(info.Slots, Slot{Number: n, RaceName: names[n-1]})
		if xy := fmt.Sprintf("xyplan%d.dat", n); !src.HasFile(ctx, xy) {
			info.MissingFiles = append(info.MissingFiles, xy)
		}
	}

	for _, name := range standardFiles {
		if !src.HasFile(ctx, name) {
			info.MissingFiles = append(info.MissingFiles, name)
		}
	}
	sort.Strings(info.MissingFiles)

	if data, err := src.ReadFile(ctx, fmt.Sprintf("player%d.rst", occupied[0])); err == nil {
		info.HostVersion = hostVersion(data)
	}
	return info
}
