// Package summary computes and formats the outcome of a roll selection.
package summary

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bdobrica/Saikoro/internal/saikoro/dice"
	"github.com/bdobrica/Saikoro/internal/saikoro/selection"
)

// DefaultEffectSides is reported when no effect die is selected.
const DefaultEffectSides = 4

// Summary is the derived result of a selection.
type Summary struct {
	// Total is the sum of the normally selected results.
	Total int
	// Values are the normally selected results in roll order.
	Values []int
	// EffectSides is the size of the effect die, or DefaultEffectSides.
	EffectSides int
	// Hitches counts every die in the roll that came up 1, selected or not.
	Hitches int
}

// Compute derives the summary from a roll and its selection.
func Compute(rolled []dice.Die, state *selection.State) Summary {
	s := Summary{EffectSides: DefaultEffectSides}
	effectID, hasEffect := "", false
	if state != nil {
		effectID, hasEffect = state.Effect()
	}
	for _, d := range rolled {
		if d.IsHitch() {
			s.Hitches++
		}
		if state != nil && state.IsSelected(selection.NormalEntry(d.ID)) {
			s.Total += d.Result
			s.Values = append(s.Values, d.Result)
		}
		if hasEffect && d.ID == effectID {
			s.EffectSides = d.Sides
		}
	}
	return s
}

// String renders the summary as a single line, e.g.
//
//	Total: 3 (3)  Effect: D4  Hitches: 1
//
// The hitch clause is omitted when there are none.
func (s Summary) String() string {
	values := make([]string, len(s.Values))
	for i, v := range s.Values {
		values[i] = strconv.Itoa(v)
	}
	line := fmt.Sprintf("Total: %d (%s)  Effect: D%d", s.Total, strings.Join(values, ", "), s.EffectSides)
	if s.Hitches > 0 {
		line += fmt.Sprintf("  Hitches: %d", s.Hitches)
	}
	return line
}

// RollNotice lists every rolled die as result(Dsides), e.g. "3(D6)   1(D6)".
func RollNotice(rolled []dice.Die) string {
	parts := make([]string, len(rolled))
	for i, d := range rolled {
		parts[i] = fmt.Sprintf("%d(D%d)", d.Result, d.Sides)
	}
	return strings.Join(parts, "   ")
}

// CodeBlock wraps text in a fenced code block.
func CodeBlock(text string) string {
	return "```\n" + text + "\n```"
}
