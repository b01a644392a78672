package domain

import (
	"slices"
	"strings"
)

const roomSeparator = "_"

// RoomID identifies a two-party private room.
type RoomID string

// RoomIDFor derives the room of a pair of identity keys. The result does not
// depend on argument order, so a pair always lands in the same room.
func RoomIDFor(identityA, identityB string) RoomID {
	pair := []string{identityA, identityB}
	slices.Sort(pair)
	return RoomID(strings.Join(pair, roomSeparator))
}
