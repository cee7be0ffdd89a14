package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// MaxDice is the exclusive upper bound on the number of dice in one roll.
// Nine dice fill two rows of five controls per grid; with the normal grid,
// the effect grid and the confirm row that is the most a message can hold.
const MaxDice = 10

// ErrTooManyDice is returned when a roll would produce MaxDice or more dice.
var ErrTooManyDice = errors.New("too many dice")

// Die is a single rolled die. It is immutable once created and is referenced
// by ID everywhere else.
type Die struct {
	ID     string
	Sides  int
	Result int
}

// IsHitch reports whether the die rolled a 1. Hitches are never selectable.
func (d Die) IsHitch() bool {
	return d.Result == 1
}

// Source is the randomness provider for rolls.
type Source interface {
	// Intn returns a random int in [0, n). n is always > 0.
	Intn(n int) int
}

// Roller produces rolled dice from specs. It is safe for concurrent use.
type Roller struct {
	mu    sync.Mutex
	src   Source
	newID func() string
}

// Option customises a Roller.
type Option func(*Roller)

// WithIDFunc replaces the die identifier generator. Identifiers must be
// unique within a roll.
func WithIDFunc(fn func() string) Option {
	return func(r *Roller) { r.newID = fn }
}

// NewRoller creates a Roller drawing from src. When src is nil a math/rand
// generator seeded from crypto/rand is used.
func NewRoller(src Source, opts ...Option) (*Roller, error) {
	if src == nil {
		seed, err := NewSeed()
		if err != nil {
			return nil, err
		}
		src = rand.New(rand.NewSource(seed))
	}
	r := &Roller{src: src, newID: uuid.NewString}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Roll rolls one die per spec, in order. The dice count is checked before
// anything is drawn.
func (r *Roller) Roll(specs []Spec) ([]Die, error) {
	if len(specs) >= MaxDice {
		return nil, fmt.Errorf("%w: %d requested, at most %d allowed", ErrTooManyDice, len(specs), MaxDice-1)
	}
	for _, spec := range specs {
		if spec.Sides < 1 {
			return nil, fmt.Errorf("%w: die with %d sides", ErrInvalidNotation, spec.Sides)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dice := make([]Die, 0, len(specs))
	for _, spec := range specs {
		dice = append(dice, Die{
			ID:     r.newID(),
			Sides:  spec.Sides,
			Result: r.src.Intn(spec.Sides) + 1,
		})
	}
	return dice, nil
}

// RollNotation parses notation and rolls it in a single call.
func (r *Roller) RollNotation(notation string) ([]Die, error) {
	specs, err := Parse(notation)
	if err != nil {
		return nil, err
	}
	return r.Roll(specs)
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
