package session

import (
	"context"
	"time"

	"github.com/bdobrica/Saikoro/internal/saikoro/view"
)

// Handle identifies a message posted through a Surface.
type Handle string

// Surface is what a chat transport provides to a session. Each call is made
// from the single goroutine running the session.
type Surface interface {
	// ReplyText answers the command with plain text and no controls.
	ReplyText(ctx context.Context, content string) error
	// ReplyWithControls answers the command with a private message holding
	// the given control rows.
	ReplyWithControls(ctx context.Context, rows []view.Row) (Handle, error)
	// UpdateControls replaces the controls (and content, when non-empty) of
	// a message returned by ReplyWithControls.
	UpdateControls(ctx context.Context, h Handle, content string, rows []view.Row) error
	// SendFollowUp posts a public message, as a reply to inReplyTo when it
	// is non-empty.
	SendFollowUp(ctx context.Context, content string, inReplyTo Handle) (Handle, error)
	// DeleteReply retracts a message returned by ReplyWithControls.
	DeleteReply(ctx context.Context, h Handle) error
	// SubscribeToClicks delivers clicks on the controls of h until
	// maxDuration elapses or the subscription is stopped.
	SubscribeToClicks(ctx context.Context, h Handle, maxDuration time.Duration) (Subscription, error)
	// UserMention formats the invoking user for inclusion in a message.
	UserMention() string
}

// Subscription is a bounded stream of clicks. The channel is closed when the
// window elapses or Stop is called.
type Subscription interface {
	Clicks() <-chan Click
	Stop()
}

// Click is one "user clicked control X" event.
type Click interface {
	// ControlID is the id of the clicked control.
	ControlID() string
	// Respond updates the clicked message in place.
	Respond(ctx context.Context, content string, rows []view.Row) error
	// Acknowledge tells the transport the click was handled without an
	// update. Transports that need no acknowledgement make it a no-op.
	Acknowledge(ctx context.Context) error
}
