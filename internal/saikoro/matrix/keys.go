package matrix

import (
	"html"
	"strings"

	"github.com/bdobrica/Saikoro/internal/saikoro/selection"
	"github.com/bdobrica/Saikoro/internal/saikoro/view"
)

// Matrix has no buttons: every control is bound to a reaction key and the
// user clicks a control by reacting with (or retracting) that key.

// ConfirmKey is the reaction bound to the confirm control.
const ConfirmKey = "✅"

var (
	normalKeys = []string{"1️⃣", "2️⃣", "3️⃣", "4️⃣", "5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣"}
	effectKeys = []string{"🇦", "🇧", "🇨", "🇩", "🇪", "🇫", "🇬", "🇭", "🇮"}
)

// DefaultHeader introduces a control message when no content is given.
const DefaultHeader = "🎲 React to pick dice, " + ConfirmKey + " to confirm."

// binding ties a reaction key to one control.
type binding struct {
	key     string
	control view.Control
}

// Keymap binds reaction keys to the controls of one control message. Keys
// depend only on control order, which is stable across re-renders.
type Keymap struct {
	bindings []binding
	byKey    map[string]string
}

// NewKeymap assigns keys to rows in render order. Controls beyond the
// available keys are left unbound.
func NewKeymap(rows []view.Row) *Keymap {
	k := &Keymap{byKey: make(map[string]string)}
	var normal, effect int
	for _, row := range rows {
		for _, c := range row {
			target, err := view.Decode(c.ID)
			if err != nil {
				continue
			}
			b := binding{control: c}
			switch {
			case target.Confirm:
				b.key = ConfirmKey
			case target.Entry.Role == selection.Normal && normal < len(normalKeys):
				b.key = normalKeys[normal]
				normal++
			case target.Entry.Role == selection.Effect && effect < len(effectKeys):
				b.key = effectKeys[effect]
				effect++
			default:
				continue
			}
			k.bindings = append(k.bindings, b)
			k.byKey[normalizeKey(b.key)] = c.ID
		}
	}
	return k
}

// ControlID returns the control bound to a reaction key.
func (k *Keymap) ControlID(key string) (string, bool) {
	id, ok := k.byKey[normalizeKey(key)]
	return id, ok
}

// Seed returns the keys the bot pre-reacts with so users can click them:
// every enabled control, in render order.
func (k *Keymap) Seed() []string {
	var keys []string
	for _, b := range k.bindings {
		if !b.control.Disabled {
			keys = append(keys, b.key)
		}
	}
	return keys
}

// normalizeKey drops emoji variation selectors, which clients add or omit
// inconsistently.
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.TrimSpace(key), "\ufe0f", "")
}

// Render formats rows as a plain-text body and an HTML body. Current styles
// are taken from rows; keys from k.
func (k *Keymap) Render(header string, rows []view.Row) (plain, formatted string) {
	if header == "" {
		header = DefaultHeader
	}
	keyOf := make(map[string]string, len(k.bindings))
	for _, b := range k.bindings {
		keyOf[b.control.ID] = b.key
	}

	var p, h strings.Builder
	p.WriteString(header)
	h.WriteString(html.EscapeString(header))

	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		p.WriteString("\n")
		h.WriteString("<br/>")
		if label := rowLabel(row); label != "" {
			p.WriteString(label + " ")
			h.WriteString("<b>" + html.EscapeString(label) + "</b> ")
		}
		for i, c := range row {
			if i > 0 {
				p.WriteString("   ")
				h.WriteString("&nbsp;&nbsp; ")
			}
			text := strings.TrimSpace(keyOf[c.ID] + " " + c.Label)
			if m := marker(c.Style); m != "" {
				text += " " + m
			}
			p.WriteString(text)
			h.WriteString(styleHTML(c, html.EscapeString(text)))
		}
	}
	return p.String(), h.String()
}

func rowLabel(row view.Row) string {
	target, err := view.Decode(row[0].ID)
	if err != nil || target.Confirm {
		return ""
	}
	if target.Entry.Role == selection.Effect {
		return "Effect:"
	}
	return "Total:"
}

func marker(s view.Style) string {
	switch s {
	case view.SelectedNormal:
		return "✔"
	case view.SelectedEffect:
		return "★"
	default:
		return ""
	}
}

func styleHTML(c view.Control, escaped string) string {
	switch {
	case c.Disabled:
		return "<del>" + escaped + "</del>"
	case c.Style == view.SelectedNormal || c.Style == view.SelectedEffect || c.Style == view.Confirm:
		return "<strong>" + escaped + "</strong>"
	default:
		return escaped
	}
}
