// Package selection tracks which rolled dice count toward a roll's total and
// which single die, if any, is the effect die.
package selection

import (
	"github.com/bdobrica/Saikoro/internal/saikoro/dice"
)

// Role is the part a selected die plays.
type Role uint8

const (
	// Normal dice add their result to the total.
	Normal Role = iota + 1
	// Effect marks the die whose size is reported separately.
	Effect
)

func (r Role) String() string {
	switch r {
	case Normal:
		return "normal"
	case Effect:
		return "effect"
	default:
		return "unknown"
	}
}

// Entry is one selection: a die in a given role.
type Entry struct {
	Role  Role
	DieID string
}

// NormalEntry returns the normal-role entry for a die.
func NormalEntry(dieID string) Entry { return Entry{Role: Normal, DieID: dieID} }

// EffectEntry returns the effect-role entry for a die.
func EffectEntry(dieID string) Entry { return Entry{Role: Effect, DieID: dieID} }

// State is the set of selected entries for one roll.
//
// It holds at most one Effect entry and never an entry for a hitch die.
// State is not safe for concurrent use; a session owns exactly one.
type State struct {
	dice   map[string]dice.Die
	chosen map[Entry]struct{}
}

// New creates an empty selection over the given dice.
func New(rolled []dice.Die) *State {
	index := make(map[string]dice.Die, len(rolled))
	for _, d := range rolled {
		index[d.ID] = d
	}
	return &State{
		dice:   index,
		chosen: make(map[Entry]struct{}),
	}
}

// ToggleNormal adds the die to the total, or removes it if already there.
// The effect entry is left alone so that two toggles always cancel out.
// Unknown dice and hitches are ignored. Reports whether the state changed.
func (s *State) ToggleNormal(dieID string) bool {
	if !s.selectable(dieID) {
		return false
	}
	e := NormalEntry(dieID)
	if _, ok := s.chosen[e]; ok {
		delete(s.chosen, e)
	} else {
		s.chosen[e] = struct{}{}
	}
	return true
}

// ToggleEffect makes the die the effect die. Any other effect die is
// released and the die leaves the normal total. Toggling the current effect
// die clears the effect. Unknown dice and hitches are ignored. Reports
// whether the state changed.
func (s *State) ToggleEffect(dieID string) bool {
	if !s.selectable(dieID) {
		return false
	}
	e := EffectEntry(dieID)
	if _, ok := s.chosen[e]; ok {
		delete(s.chosen, e)
		return true
	}
	if current, ok := s.Effect(); ok {
		delete(s.chosen, EffectEntry(current))
	}
	delete(s.chosen, NormalEntry(dieID))
	s.chosen[e] = struct{}{}
	return true
}

// Toggle applies the toggle matching the entry's role.
func (s *State) Toggle(e Entry) bool {
	switch e.Role {
	case Normal:
		return s.ToggleNormal(e.DieID)
	case Effect:
		return s.ToggleEffect(e.DieID)
	default:
		return false
	}
}

// IsSelected reports whether the entry is currently selected.
func (s *State) IsSelected(e Entry) bool {
	_, ok := s.chosen[e]
	return ok
}

// HasEffect reports whether an effect die is selected.
func (s *State) HasEffect() bool {
	_, ok := s.Effect()
	return ok
}

// Effect returns the id of the effect die, if any.
func (s *State) Effect() (string, bool) {
	for e := range s.chosen {
		if e.Role == Effect {
			return e.DieID, true
		}
	}
	return "", false
}

// Clone returns an independent copy of the selection over the same dice.
func (s *State) Clone() *State {
	chosen := make(map[Entry]struct{}, len(s.chosen))
	for e := range s.chosen {
		chosen[e] = struct{}{}
	}
	return &State{dice: s.dice, chosen: chosen}
}

// Len returns the number of selected entries.
func (s *State) Len() int {
	return len(s.chosen)
}

// Entries returns a copy of the selected entries in no particular order.
func (s *State) Entries() []Entry {
	out := make([]Entry, 0, len(s.chosen))
	for e := range s.chosen {
		out = append(out, e)
	}
	return out
}

func (s *State) selectable(dieID string) bool {
	d, ok := s.dice[dieID]
	return ok && !d.IsHitch()
}
