package dice_test

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/bdobrica/Saikoro/internal/saikoro/dice"
)

// fixedSource returns the queued values in order, wrapping around.
type fixedSource struct {
	values []int
	next   int
}

func (f *fixedSource) Intn(n int) int {
	v := f.values[f.next%len(f.values)]
	f.next++
	return v % n
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("die-%d", n)
	}
}

func TestParse_OrderAndDefaults(t *testing.T) {
	specs, err := dice.Parse("2d6 d8 20")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []int{6, 6, 8, 20}
	if len(specs) != len(want) {
		t.Fatalf("got %d specs, want %d (%v)", len(specs), len(want), specs)
	}
	for i, sides := range want {
		if specs[i].Sides != sides {
			t.Errorf("specs[%d].Sides: got %d, want %d", i, specs[i].Sides, sides)
		}
	}
}

func TestParse_Whitespace(t *testing.T) {
	specs, err := dice.Parse("  3d4\t\n10  ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(specs) != 4 {
		t.Fatalf("got %d specs, want 4", len(specs))
	}
	if specs[3].Sides != 10 {
		t.Errorf("last spec sides: got %d, want 10", specs[3].Sides)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"quantity over limit", "201d6"},
		{"quantity over limit later token", "1d6 500d2"},
		{"two dividers", "2d6d8"},
		{"trailing divider", "2d"},
		{"bare divider", "d"},
		{"letters", "abc"},
		{"letters as sides", "2dx"},
		{"letters as quantity", "xd6"},
		{"zero sides", "0"},
		{"zero quantity", "0d6"},
		{"negative", "-3"},
		{"signed quantity", "+2d6"},
		{"uppercase divider", "2D6"},
		{"decimal", "1.5d6"},
		{"overflow", "99999999999999999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dice.Parse(tt.input)
			if !errors.Is(err, dice.ErrInvalidNotation) {
				t.Fatalf("Parse(%q): got %v, want ErrInvalidNotation", tt.input, err)
			}
		})
	}
}

func TestParse_QuantityAtLimit(t *testing.T) {
	specs, err := dice.Parse("200d2")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(specs) != dice.MaxQuantity {
		t.Errorf("got %d specs, want %d", len(specs), dice.MaxQuantity)
	}
}

func TestRoll_TooManyDice(t *testing.T) {
	r, err := dice.NewRoller(&fixedSource{values: []int{0}})
	if err != nil {
		t.Fatalf("NewRoller: %v", err)
	}

	for _, notation := range []string{"10d6", "5d6 5d4", "200d6"} {
		_, err := r.RollNotation(notation)
		if !errors.Is(err, dice.ErrTooManyDice) {
			t.Errorf("RollNotation(%q): got %v, want ErrTooManyDice", notation, err)
		}
	}

	got, err := r.RollNotation("9d6")
	if err != nil {
		t.Fatalf("RollNotation(9d6): %v", err)
	}
	if len(got) != 9 {
		t.Errorf("got %d dice, want 9", len(got))
	}
}

func TestRoll_UsesSourceAndIDs(t *testing.T) {
	r, err := dice.NewRoller(&fixedSource{values: []int{2, 0, 7}}, dice.WithIDFunc(sequentialIDs()))
	if err != nil {
		t.Fatalf("NewRoller: %v", err)
	}

	got, err := r.RollNotation("2d6 d8")
	if err != nil {
		t.Fatalf("RollNotation: %v", err)
	}

	want := []dice.Die{
		{ID: "die-1", Sides: 6, Result: 3},
		{ID: "die-2", Sides: 6, Result: 1},
		{ID: "die-3", Sides: 8, Result: 8},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d dice, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("die %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
	if !got[1].IsHitch() {
		t.Errorf("die with result 1 should be a hitch")
	}
	if got[0].IsHitch() {
		t.Errorf("die with result 3 should not be a hitch")
	}
}

func TestRoll_ResultsInRange(t *testing.T) {
	r, err := dice.NewRoller(rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("NewRoller: %v", err)
	}

	for i := 0; i < 500; i++ {
		rolled, err := r.RollNotation("d1 d2 3d6 d20 d100")
		if err != nil {
			t.Fatalf("RollNotation: %v", err)
		}
		for _, d := range rolled {
			if d.Result < 1 || d.Result > d.Sides {
				t.Fatalf("result %d out of range for d%d", d.Result, d.Sides)
			}
		}
	}
}

func TestRoll_DefaultSourceUniqueIDs(t *testing.T) {
	r, err := dice.NewRoller(nil)
	if err != nil {
		t.Fatalf("NewRoller: %v", err)
	}

	rolled, err := r.RollNotation("9d6")
	if err != nil {
		t.Fatalf("RollNotation: %v", err)
	}
	seen := make(map[string]bool)
	for _, d := range rolled {
		if d.ID == "" {
			t.Fatalf("empty die id")
		}
		if seen[d.ID] {
			t.Fatalf("duplicate die id %q", d.ID)
		}
		seen[d.ID] = true
	}
}
