// Package identity generates session-scoped peer identities for the
// collaboration layer. An identity lives for exactly one session: it is
// generated at startup, announced over the signaling medium, and never
// persisted or authenticated.
package identity

import (
	"math/rand"

	"github.com/google/uuid"
)

// displayNames is the fixed enumeration of session display names. A small
// curated set keeps names recognizable in presence UI; the random ID is
// what actually distinguishes peers.
var displayNames = []string{
	"Amber Fox",
	"Blue Heron",
	"Coral Crab",
	"Dusky Owl",
	"Green Newt",
	"Ivory Hare",
	"Marsh Wren",
	"Onyx Wolf",
	"Sage Finch",
	"Teal Otter",
}

// palette is the fixed enumeration of cursor/stroke colors.
var palette = []string{
	"#e6194b",
	"#3cb44b",
	"#4363d8",
	"#f58231",
	"#911eb4",
	"#46f0f0",
	"#f032e6",
	"#9a6324",
	"#008080",
	"#800000",
}

// Identity is a session-scoped (id, name, color) tuple identifying one
// participant. Immutable for the lifetime of the session.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// New generates a fresh session identity. The ID is a random UUID string,
// so collisions are negligible for any realistic peer count. Name and
// color are drawn from the fixed enumerations.
func New() Identity {
	return Identity{
		ID:    uuid.NewString(),
		Name:  displayNames[rand.Intn(len(displayNames))],
		Color: palette[rand.Intn(len(palette))],
	}
}

// InitiatesTo reports whether this identity is the connection initiator
// toward the peer with the given ID.
//
// When two peers observe each other's presence, both evaluate this rule
// independently; correctness of the mesh depends on exactly one side
// initiating per unordered pair. The rule is a plain lexicographic (byte
// wise) comparison of the opaque ID strings: the greater ID initiates.
// Both sides MUST apply the same comparison, which is why it lives here
// next to ID generation rather than in the negotiation engine.
func (i Identity) InitiatesTo(peerID string) bool {
	return i.ID > peerID
}

// DisplayNames returns the name enumeration. Exposed for UI pickers.
func DisplayNames() []string {
	return append([]string(nil), displayNames...)
}

// Palette returns the color enumeration. Exposed for UI pickers.
func Palette() []string {
	return append([]string(nil), palette...)
}
