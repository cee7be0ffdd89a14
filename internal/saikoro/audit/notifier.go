// Package audit records roll sessions: it writes the SQLite audit trail and
// roll history, and optionally mirrors finished rolls to an audit room.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/Saikoro/common/trace"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindRollConfirmed Kind = "roll.confirmed"
	KindRollExpired   Kind = "roll.expired"
	KindRollAborted   Kind = "roll.aborted"
	KindRollRejected  Kind = "roll.rejected"
	KindError         Kind = "error"
)

// Event carries the data that the audit notifier formats and sends.
type Event struct {
	Kind Kind
	// Actor is the transport-specific id of the user who rolled.
	Actor string
	// Target is the notation that was rolled.
	Target  string
	Message string
	// TraceID defaults to the trace in the context.
	TraceID string
	// Timestamp defaults to time.Now() when zero.
	Timestamp time.Time
}

// Notifier sends audit room notifications. Implementations must not block
// the caller for long; send failures are logged, not propagated.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Sender is the subset of the Matrix client needed by RoomNotifier.
type Sender interface {
	SendNotice(ctx context.Context, roomID, message string) error
}

// RoomNotifier posts formatted notices to a chat room.
type RoomNotifier struct {
	sender Sender
	roomID string
}

// NewRoomNotifier creates a RoomNotifier that posts to roomID via sender.
func NewRoomNotifier(sender Sender, roomID string) *RoomNotifier {
	return &RoomNotifier{sender: sender, roomID: roomID}
}

// Notify formats evt and posts it to the audit room.
func (n *RoomNotifier) Notify(ctx context.Context, evt Event) {
	if n.roomID == "" {
		return
	}
	if err := n.sender.SendNotice(ctx, n.roomID, Format(ctx, evt)); err != nil {
		slog.Warn("audit notifier: failed to send room notice",
			"room", n.roomID, "kind", evt.Kind, "err", err)
		return
	}
	slog.Debug("audit notifier: sent notice", "room", n.roomID, "kind", evt.Kind)
}

// Format renders evt as a short multi-line notice.
func Format(ctx context.Context, evt Event) string {
	tid := evt.TraceID
	if tid == "" {
		tid = trace.FromContext(ctx)
	}

	icon := kindIcon(evt.Kind)
	msg := fmt.Sprintf("%s [%s] %s", icon, evt.Kind, evt.Message)
	if evt.Target != "" {
		msg = fmt.Sprintf("%s %s → %s", icon, evt.Target, evt.Message)
	}
	if evt.Actor != "" {
		msg += "\n  actor: " + evt.Actor
	}
	if tid != "" {
		msg += "\n  trace: " + tid
	}
	return msg
}

// Noop is a Notifier used when audit room notifications are disabled.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, Event) {}

func kindIcon(k Kind) string {
	switch k {
	case KindRollConfirmed:
		return "🎲"
	case KindRollExpired:
		return "⌛"
	case KindRollAborted:
		return "⏹️"
	case KindRollRejected:
		return "🚫"
	case KindError:
		return "🚨"
	default:
		return "ℹ️"
	}
}
