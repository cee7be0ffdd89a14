package matrix

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Saikoro/internal/saikoro/session"
	"github.com/bdobrica/Saikoro/internal/saikoro/view"
)

// clickBuffer is the number of clicks queued per control message while the
// session is busy.
const clickBuffer = 64

// unsubscribedTTL bounds how long a control message is watched before its
// session subscribes to it.
const unsubscribedTTL = 5 * time.Minute

// ErrNotWatched is returned when subscribing to a message the router does not
// know, or whose window already closed.
var ErrNotWatched = errors.New("matrix: control message is not watched")

// ClickRouter turns reactions on control messages into clicks. It is fed from
// the sync goroutine and never blocks it.
type ClickRouter struct {
	mu        sync.Mutex
	watches   map[id.EventID]*watch
	reactions map[id.EventID]id.EventID // reaction event -> control message
	logger    *slog.Logger
}

type watch struct {
	surface    *Surface
	message    id.EventID
	keymap     *Keymap
	clicks     chan session.Click
	timer      *time.Timer
	subscribed bool
	reactions  map[id.EventID]string // reaction event -> control id
}

// NewClickRouter returns an empty router.
func NewClickRouter(logger *slog.Logger) *ClickRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClickRouter{
		watches:   make(map[id.EventID]*watch),
		reactions: make(map[id.EventID]id.EventID),
		logger:    logger,
	}
}

// Pending returns the number of watched control messages.
func (r *ClickRouter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}

// watch starts queueing clicks for a freshly sent control message.
func (r *ClickRouter) watch(s *Surface, message id.EventID, km *Keymap) {
	w := &watch{
		surface:   s,
		message:   message,
		keymap:    km,
		clicks:    make(chan session.Click, clickBuffer),
		reactions: make(map[id.EventID]string),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w.timer = time.AfterFunc(unsubscribedTTL, func() { r.close(message) })
	r.watches[message] = w
}

// subscribe hands the queued and future clicks of message to the caller for
// at most maxDuration.
func (r *ClickRouter) subscribe(message id.EventID, maxDuration time.Duration) (*subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[message]
	if !ok || w.subscribed {
		return nil, ErrNotWatched
	}
	w.subscribed = true
	w.timer.Stop()
	w.timer = time.AfterFunc(maxDuration, func() { r.close(message) })
	return &subscription{router: r, message: message, clicks: w.clicks}, nil
}

// close stops watching message and closes its click channel. Safe to call
// more than once.
func (r *ClickRouter) close(message id.EventID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[message]
	if !ok {
		return
	}
	w.timer.Stop()
	for reaction := range w.reactions {
		delete(r.reactions, reaction)
	}
	delete(r.watches, message)
	close(w.clicks)
}

// HandleReaction routes an m.reaction event. It reports whether the event
// was a click on a watched control message.
func (r *ClickRouter) HandleReaction(evt *event.Event) bool {
	rel := evt.Content.AsReaction().RelatesTo
	if rel.Type != event.RelAnnotation || rel.EventID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[rel.EventID]
	if !ok || evt.Sender != w.surface.actor {
		return false
	}
	controlID, ok := w.keymap.ControlID(rel.Key)
	if !ok {
		return false
	}
	w.reactions[evt.ID] = controlID
	r.reactions[evt.ID] = w.message
	r.deliver(w, controlID)
	return true
}

// HandleRedaction routes an m.room.redaction event. Retracting a reaction
// clicks the same control again.
func (r *ClickRouter) HandleRedaction(evt *event.Event) bool {
	redacts := evt.Content.AsRedaction().Redacts
	if redacts == "" {
		redacts = evt.Redacts
	}
	if redacts == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	message, ok := r.reactions[redacts]
	if !ok {
		return false
	}
	w := r.watches[message]
	if evt.Sender != w.surface.actor {
		return false
	}
	controlID := w.reactions[redacts]
	delete(w.reactions, redacts)
	delete(r.reactions, redacts)
	r.deliver(w, controlID)
	return true
}

// deliver queues a click without blocking. Called with r.mu held.
func (r *ClickRouter) deliver(w *watch, controlID string) {
	c := &click{surface: w.surface, message: w.message, controlID: controlID}
	select {
	case w.clicks <- c:
	default:
		r.logger.Warn("dropping click, session is not keeping up",
			"message", w.message, "control", controlID)
	}
}

type subscription struct {
	router  *ClickRouter
	message id.EventID
	clicks  chan session.Click
}

func (s *subscription) Clicks() <-chan session.Click { return s.clicks }
func (s *subscription) Stop()                        { s.router.close(s.message) }

// click is a reaction on a control message.
type click struct {
	surface   *Surface
	message   id.EventID
	controlID string
}

func (c *click) ControlID() string { return c.controlID }

// Respond edits the control message in place.
func (c *click) Respond(ctx context.Context, content string, rows []view.Row) error {
	return c.surface.UpdateControls(ctx, session.Handle(c.message), content, rows)
}

// Acknowledge is a no-op: reactions need no answer.
func (c *click) Acknowledge(context.Context) error { return nil }
