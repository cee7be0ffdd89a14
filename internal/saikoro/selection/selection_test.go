package selection_test

import (
	"testing"

	"github.com/bdobrica/Saikoro/internal/saikoro/dice"
	"github.com/bdobrica/Saikoro/internal/saikoro/selection"
)

func rolled() []dice.Die {
	return []dice.Die{
		{ID: "a", Sides: 6, Result: 3},
		{ID: "b", Sides: 6, Result: 1},
		{ID: "c", Sides: 8, Result: 5},
		{ID: "d", Sides: 12, Result: 12},
	}
}

// effectCount counts effect entries; the invariant says it never exceeds one.
func effectCount(s *selection.State) int {
	n := 0
	for _, e := range s.Entries() {
		if e.Role == selection.Effect {
			n++
		}
	}
	return n
}

func TestToggleNormal_DoubleApplicationRestores(t *testing.T) {
	s := selection.New(rolled())

	if !s.ToggleNormal("a") {
		t.Fatalf("first toggle should change state")
	}
	if !s.IsSelected(selection.NormalEntry("a")) {
		t.Fatalf("a should be selected after first toggle")
	}
	if !s.ToggleNormal("a") {
		t.Fatalf("second toggle should change state")
	}
	if s.IsSelected(selection.NormalEntry("a")) {
		t.Fatalf("a should be deselected after second toggle")
	}
	if s.Len() != 0 {
		t.Errorf("Len: got %d, want 0", s.Len())
	}
}

func TestToggle_HitchIsNoop(t *testing.T) {
	s := selection.New(rolled())
	s.ToggleNormal("a")

	if s.ToggleNormal("b") {
		t.Errorf("ToggleNormal on hitch reported a change")
	}
	if s.ToggleEffect("b") {
		t.Errorf("ToggleEffect on hitch reported a change")
	}
	if s.IsSelected(selection.NormalEntry("b")) || s.IsSelected(selection.EffectEntry("b")) {
		t.Errorf("hitch must never be selected")
	}
	if s.Len() != 1 {
		t.Errorf("Len: got %d, want 1", s.Len())
	}
}

func TestToggle_UnknownIsNoop(t *testing.T) {
	s := selection.New(rolled())

	if s.ToggleNormal("missing") || s.ToggleEffect("missing") {
		t.Errorf("toggling an unknown die reported a change")
	}
	if s.Toggle(selection.Entry{DieID: "a"}) {
		t.Errorf("toggling an entry without a role reported a change")
	}
	if s.Len() != 0 {
		t.Errorf("Len: got %d, want 0", s.Len())
	}
}

func TestToggleEffect_AtMostOne(t *testing.T) {
	s := selection.New(rolled())

	s.ToggleEffect("a")
	s.ToggleEffect("c")
	s.ToggleEffect("d")

	if got := effectCount(s); got != 1 {
		t.Fatalf("effect entries: got %d, want 1", got)
	}
	id, ok := s.Effect()
	if !ok || id != "d" {
		t.Errorf("Effect: got (%q, %v), want (\"d\", true)", id, ok)
	}
}

func TestToggleEffect_RemovesNormal(t *testing.T) {
	s := selection.New(rolled())
	s.ToggleNormal("c")
	s.ToggleNormal("a")

	s.ToggleEffect("c")

	if s.IsSelected(selection.NormalEntry("c")) {
		t.Errorf("c should have left the normal selection")
	}
	if !s.IsSelected(selection.EffectEntry("c")) {
		t.Errorf("c should be the effect die")
	}
	if !s.IsSelected(selection.NormalEntry("a")) {
		t.Errorf("a should remain normally selected")
	}
}

func TestToggleEffect_SameDieClears(t *testing.T) {
	s := selection.New(rolled())
	s.ToggleEffect("a")
	s.ToggleEffect("a")

	if s.HasEffect() {
		t.Errorf("toggling the current effect die should clear it")
	}
}

func TestToggleNormal_OnEffectDieRoundTrips(t *testing.T) {
	s := selection.New(rolled())
	s.ToggleEffect("a")

	s.ToggleNormal("a")
	s.ToggleNormal("a")

	if !s.IsSelected(selection.EffectEntry("a")) {
		t.Errorf("effect entry should survive two normal toggles")
	}
	if s.IsSelected(selection.NormalEntry("a")) {
		t.Errorf("normal entry should be gone after two toggles")
	}
}

func TestToggleEffect_ThenNormalExclusive(t *testing.T) {
	s := selection.New(rolled())
	s.ToggleNormal("c")
	s.ToggleEffect("c")
	if s.IsSelected(selection.NormalEntry("c")) && s.IsSelected(selection.EffectEntry("c")) {
		t.Fatalf("activating the effect must drop the normal selection")
	}
}

func TestToggle_InvariantsUnderSequence(t *testing.T) {
	s := selection.New(rolled())
	seq := []selection.Entry{
		selection.NormalEntry("a"),
		selection.EffectEntry("a"),
		selection.EffectEntry("b"),
		selection.NormalEntry("b"),
		selection.EffectEntry("c"),
		selection.NormalEntry("d"),
		selection.EffectEntry("d"),
		selection.NormalEntry("c"),
		selection.EffectEntry("a"),
	}
	for i, e := range seq {
		s.Toggle(e)
		if got := effectCount(s); got > 1 {
			t.Fatalf("step %d: %d effect entries", i, got)
		}
		if s.IsSelected(selection.NormalEntry("b")) || s.IsSelected(selection.EffectEntry("b")) {
			t.Fatalf("step %d: hitch selected", i)
		}
	}
}

func TestRoleString(t *testing.T) {
	if selection.Normal.String() != "normal" || selection.Effect.String() != "effect" {
		t.Errorf("unexpected role names: %s %s", selection.Normal, selection.Effect)
	}
	if selection.Role(0).String() != "unknown" {
		t.Errorf("zero role should be unknown")
	}
}

func TestClone_Independent(t *testing.T) {
	s := selection.New(rolled())
	s.ToggleNormal("a")

	c := s.Clone()
	c.ToggleNormal("c")
	c.ToggleEffect("d")

	if s.IsSelected(selection.NormalEntry("c")) || s.HasEffect() {
		t.Errorf("mutating the clone changed the original")
	}
	if !c.IsSelected(selection.NormalEntry("a")) {
		t.Errorf("clone lost the original selection")
	}
	if c.ToggleNormal("b") {
		t.Errorf("clone must still reject hitches")
	}
}
