// Package keys builds the key names under which ship state lives in the
// backing store. All callers share one Space so that every component of a
// ship reads and writes the same namespace.
package keys

import (
	"fmt"

	"github.com/spacefleet/spaceship/internal/model"
)

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "spaceship"

// Space is a key namespace. Construct one per ship and pass it down;
// components never reach for a process-global prefix.
type Space struct {
	Prefix string
}

// NewSpace returns a Space with the given prefix, falling back to
// DefaultPrefix when empty.
func NewSpace(prefix string) Space {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Space{Prefix: prefix}
}

// DeckItems is the sorted-set index of top-level items on a deck,
// scored by mass.
func (s Space) DeckItems(deck string) string {
	return fmt.Sprintf("%s:deck:%s:items", s.Prefix, deck)
}

// DeckItem is the hash holding one stored object's fields.
func (s Space) DeckItem(deck, item string) string {
	return fmt.Sprintf("%s:deck:%s:item:%s", s.Prefix, deck, item)
}

// DeckItemChildren is the sorted-set index of a container's direct children,
// scored by mass. Children are stored as ordinary item hashes so they stay
// independently addressable.
func (s Space) DeckItemChildren(deck, item string) string {
	return fmt.Sprintf("%s:deck:%s:item:%s:children", s.Prefix, deck, item)
}

// DeckStoredMass is the float counter of aggregate top-level mass on a deck.
func (s Space) DeckStoredMass(deck string) string {
	return fmt.Sprintf("%s:deck:%s:stored_mass", s.Prefix, deck)
}

// ShipCurrentSpeed is the float cell tracking current speed along one
// compass direction.
func (s Space) ShipCurrentSpeed(d model.Direction) string {
	return fmt.Sprintf("%s:ship:speed:%s", s.Prefix, d)
}

// EventLog is the sorted-set event log, scored by timestamp.
func (s Space) EventLog() string {
	return fmt.Sprintf("%s:events", s.Prefix)
}
