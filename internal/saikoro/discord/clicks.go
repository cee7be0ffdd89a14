package discord

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/bdobrica/Saikoro/internal/saikoro/session"
	"github.com/bdobrica/Saikoro/internal/saikoro/view"
)

const (
	clickBuffer     = 64
	unsubscribedTTL = 5 * time.Minute
)

// Messages shown to users whose click cannot be routed.
const (
	MsgExpired  = "⌛ This roll is over."
	MsgNotYours = "🚫 This roll belongs to someone else."
)

// ErrNotWatched is returned when subscribing to a message the router does not
// know, or whose window already closed.
var ErrNotWatched = errors.New("discord: control message is not watched")

// ClickRouter delivers button interactions to the session owning the message.
type ClickRouter struct {
	mu      sync.Mutex
	watches map[string]*watch
	logger  *slog.Logger
}

type watch struct {
	surface    *Surface
	message    string
	clicks     chan session.Click
	timer      *time.Timer
	subscribed bool
}

// NewClickRouter returns an empty router.
func NewClickRouter(logger *slog.Logger) *ClickRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClickRouter{watches: make(map[string]*watch), logger: logger}
}

// Pending returns the number of watched control messages.
func (r *ClickRouter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}

func (r *ClickRouter) watch(s *Surface, message string) {
	w := &watch{surface: s, message: message, clicks: make(chan session.Click, clickBuffer)}
	r.mu.Lock()
	defer r.mu.Unlock()
	w.timer = time.AfterFunc(unsubscribedTTL, func() { r.close(message) })
	r.watches[message] = w
}

func (r *ClickRouter) subscribe(message string, maxDuration time.Duration) (*subscription, error) {
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

func (r *ClickRouter) close(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[message]
	if !ok {
		return
	}
	w.timer.Stop()
	delete(r.watches, message)
	close(w.clicks)
}

// Route is the outcome of HandleComponent.
type Route int

const (
	// Delivered means the click was queued for its session.
	Delivered Route = iota
	// Unknown means no session watches the message.
	Unknown
	// Foreign means the clicker is not the invoking user.
	Foreign
	// Dropped means the session queue was full.
	Dropped
)

// HandleComponent routes a button interaction by the message it belongs to.
// Undelivered clicks are left for the caller to answer.
func (r *ClickRouter) HandleComponent(api API, i *discordgo.Interaction) Route {
	if i.Message == nil {
		return Unknown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[i.Message.ID]
	if !ok {
		return Unknown
	}
	if interactionUser(i) != w.surface.actor {
		return Foreign
	}
	c := &click{surface: w.surface, api: api, interaction: i, controlID: i.MessageComponentData().CustomID}
	select {
	case w.clicks <- c:
		return Delivered
	default:
		r.logger.Warn("dropping click, session is not keeping up", "message", w.message, "control", c.controlID)
		return Dropped
	}
}

type subscription struct {
	router  *ClickRouter
	message string
	clicks  chan session.Click
}

func (s *subscription) Clicks() <-chan session.Click { return s.clicks }
func (s *subscription) Stop()                        { s.router.close(s.message) }

// click is one button interaction. Discord requires every interaction to be
// answered within three seconds.
type click struct {
	surface     *Surface
	api         API
	interaction *discordgo.Interaction
	controlID   string
}

func (c *click) ControlID() string { return c.controlID }

// Respond updates the clicked message as the interaction response.
func (c *click) Respond(ctx context.Context, content string, rows []view.Row) error {
	return c.surface.do(ctx, func() error {
		return c.api.InteractionRespond(c.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Content:    content,
				Components: Components(rows),
			},
		}, discordgo.WithContext(ctx))
	})
}

// Acknowledge answers the interaction without changing the message.
func (c *click) Acknowledge(ctx context.Context) error {
	return c.surface.do(ctx, func() error {
		return c.api.InteractionRespond(c.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		}, discordgo.WithContext(ctx))
	})
}

// interactionUser returns the ID of the user behind an interaction, in a
// guild or a DM.
func interactionUser(i *discordgo.Interaction) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	default:
		return ""
	}
}
