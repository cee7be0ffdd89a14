// Package view turns a roll and its selection into rows of clickable
// controls. Rendering is a pure function of its inputs so a session can
// re-render after every click without keeping view state.
package view

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bdobrica/Saikoro/internal/saikoro/dice"
	"github.com/bdobrica/Saikoro/internal/saikoro/selection"
)

// RowSize is the number of controls per row.
const RowSize = 5

// ConfirmID is the control id of the confirm button.
const ConfirmID = "ok"

// ConfirmLabel is the label of the confirm button.
const ConfirmLabel = "Ok"

const (
	normalPrefix = "n:"
	effectPrefix = "e:"
)

// ErrUnknownControl is returned by Decode for ids it cannot interpret.
var ErrUnknownControl = errors.New("unknown control")

// Style is the visual state of a control.
type Style int

const (
	// Unselected controls are not part of the selection.
	Unselected Style = iota
	// SelectedNormal marks a die counted in the total.
	SelectedNormal
	// SelectedEffect marks the effect die.
	SelectedEffect
	// Confirm is the style of the confirm button.
	Confirm
)

func (s Style) String() string {
	switch s {
	case Unselected:
		return "unselected"
	case SelectedNormal:
		return "selected-normal"
	case SelectedEffect:
		return "selected-effect"
	case Confirm:
		return "confirm"
	default:
		return "Style(" + strconv.Itoa(int(s)) + ")"
	}
}

// Control is one clickable element.
type Control struct {
	ID       string
	Label    string
	Style    Style
	Disabled bool
}

// Row is a horizontal group of at most RowSize controls.
type Row []Control

// Render lays out the normal grid followed by the effect grid. Both grids
// cover every die in roll order.
func Render(rolled []dice.Die, state *selection.State) []Row {
	rows := grid(rolled, state, selection.Normal)
	return append(rows, grid(rolled, state, selection.Effect)...)
}

// Layout is Render plus the confirm row.
func Layout(rolled []dice.Die, state *selection.State) []Row {
	return append(Render(rolled, state), Row{{
		ID:    ConfirmID,
		Label: ConfirmLabel,
		Style: Confirm,
	}})
}

func grid(rolled []dice.Die, state *selection.State, role selection.Role) []Row {
	var rows []Row
	for start := 0; start < len(rolled); start += RowSize {
		end := start + RowSize
		if end > len(rolled) {
			end = len(rolled)
		}
		row := make(Row, 0, end-start)
		for _, d := range rolled[start:end] {
			row = append(row, control(d, state, role))
		}
		rows = append(rows, row)
	}
	return rows
}

func control(d dice.Die, state *selection.State, role selection.Role) Control {
	entry := selection.Entry{Role: role, DieID: d.ID}
	c := Control{
		ID:       EncodeID(entry),
		Style:    Unselected,
		Disabled: d.IsHitch(),
	}
	if role == selection.Effect {
		c.Label = fmt.Sprintf("D%d", d.Sides)
	} else {
		c.Label = strconv.Itoa(d.Result)
	}
	if state != nil && state.IsSelected(entry) {
		if role == selection.Effect {
			c.Style = SelectedEffect
		} else {
			c.Style = SelectedNormal
		}
	}
	return c
}

// EncodeID returns the control id for a selection entry.
func EncodeID(e selection.Entry) string {
	if e.Role == selection.Effect {
		return effectPrefix + e.DieID
	}
	return normalPrefix + e.DieID
}

// Target is what a control id refers to: the confirm button or a die entry.
type Target struct {
	Confirm bool
	Entry   selection.Entry
}

// Decode interprets a control id produced by Layout.
func Decode(controlID string) (Target, error) {
	switch {
	case controlID == ConfirmID:
		return Target{Confirm: true}, nil
	case strings.HasPrefix(controlID, normalPrefix) && len(controlID) > len(normalPrefix):
		return Target{Entry: selection.NormalEntry(strings.TrimPrefix(controlID, normalPrefix))}, nil
	case strings.HasPrefix(controlID, effectPrefix) && len(controlID) > len(effectPrefix):
		return Target{Entry: selection.EffectEntry(strings.TrimPrefix(controlID, effectPrefix))}, nil
	default:
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownControl, controlID)
	}
}

// Count returns the total number of controls across rows.
func Count(rows []Row) int {
	n := 0
	for _, r := range rows {
		n += len(r)
	}
	return n
}
