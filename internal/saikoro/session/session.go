// Package session runs the interactive dice roll: it rolls once, renders the
// selection controls, applies clicks one at a time and publishes the summary
// when the user confirms.
//
// A session is Active from its first render until it is confirmed or its
// click window elapses, then Finalized. Clicks that arrive after that are
// ignored without any outgoing message.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bdobrica/Saikoro/common/observability"
	"github.com/bdobrica/Saikoro/common/trace"
	"github.com/bdobrica/Saikoro/internal/saikoro/dice"
	"github.com/bdobrica/Saikoro/internal/saikoro/selection"
	"github.com/bdobrica/Saikoro/internal/saikoro/summary"
	"github.com/bdobrica/Saikoro/internal/saikoro/view"
)

// DefaultWindow is how long a session accepts clicks.
const DefaultWindow = 60 * time.Second

// Phase is the lifecycle state of a session.
type Phase int

const (
	// Active sessions accept clicks.
	Active Phase = iota
	// Finalized sessions were confirmed or expired and ignore clicks.
	Finalized
)

func (p Phase) String() string {
	if p == Active {
		return "active"
	}
	return "finalized"
}

// Outcome records how a session ended.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeExpired   Outcome = "expired"
	// OutcomeAborted is used when the bot shuts down under a live session.
	OutcomeAborted Outcome = "aborted"
)

// User-facing replies for input that never becomes a session.
const (
	MsgInvalidNotation = "❌ Invalid dice notation. Use e.g. `2d6 d8 20`."
	MsgTooManyDice     = "❌ Too many dice, max %d per roll."
)

// Session is one interactive roll. It is owned by the goroutine running it
// and passed explicitly to every handler call.
type Session struct {
	ID        string
	Actor     string
	Notation  string
	Dice      []dice.Die
	Selection *selection.State
	StartedAt time.Time
	Deadline  time.Time
	Phase     Phase
	// Reply is the interactive message holding the controls.
	Reply Handle
	// Notice is the public "rolled" message the summary replies to.
	Notice Handle
}

// Recorder receives lifecycle events, typically to write an audit trail.
// Implementations log their own failures; they never fail a session.
type Recorder interface {
	Rejected(ctx context.Context, actor, notation string, err error)
	Started(ctx context.Context, s *Session)
	Finished(ctx context.Context, s *Session, outcome Outcome, result *summary.Summary)
}

// Config configures a Controller.
type Config struct {
	Roller *dice.Roller
	// Window defaults to DefaultWindow.
	Window time.Duration
	// Recorder is optional.
	Recorder Recorder
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller creates and drives sessions. One Controller serves any number
// of concurrent sessions; sessions share no mutable state.
type Controller struct {
	roller   *dice.Roller
	window   time.Duration
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	active   atomic.Int64
}

// NewController creates a Controller.
func NewController(cfg Config) *Controller {
	c := &Controller{
		roller:   cfg.Roller,
		window:   cfg.Window,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if c.window <= 0 {
		c.window = DefaultWindow
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Window returns the click window applied to new sessions.
func (c *Controller) Window() time.Duration { return c.window }

// ActiveSessions returns the number of sessions currently accepting clicks.
func (c *Controller) ActiveSessions() int { return int(c.active.Load()) }

// Execute runs a whole session for the given notation: it returns once the
// session is confirmed, expires or ctx is cancelled. Invalid input is
// answered with a text reply and creates no session.
func (c *Controller) Execute(ctx context.Context, notation, actor string, surface Surface) error {
	ctx, _ = trace.Ensure(ctx)
	log := observability.WithTrace(ctx, c.logger)

	s, err := c.Open(ctx, notation, actor)
	if err != nil {
		if msg, ok := InputErrorMessage(err); ok {
			log.Info("roll rejected", "actor", actor, "notation", notation, "err", err)
			c.record(func(r Recorder) { r.Rejected(ctx, actor, notation, err) })
			return surface.ReplyText(ctx, msg)
		}
		return err
	}

	if err := c.Start(ctx, s, surface); err != nil {
		return err
	}

	sub, err := surface.SubscribeToClicks(ctx, s.Reply, c.window)
	if err != nil {
		c.finish(ctx, s, OutcomeAborted, nil)
		return fmt.Errorf("subscribe to clicks: %w", err)
	}
	c.Run(ctx, s, surface, sub)
	return nil
}

// Open parses and rolls the notation and returns a new session that has not
// been rendered yet. Errors are input errors (see InputErrorMessage).
func (c *Controller) Open(ctx context.Context, notation, actor string) (*Session, error) {
	if c.roller == nil {
		return nil, errors.New("session: controller has no roller")
	}
	rolled, err := c.roller.RollNotation(notation)
	if err != nil {
		return nil, err
	}
	id := trace.FromContext(ctx)
	if id == "" {
		id = trace.GenerateID()
	}
	started := c.now()
	return &Session{
		ID:        id,
		Actor:     actor,
		Notation:  notation,
		Dice:      rolled,
		Selection: selection.New(rolled),
		StartedAt: started,
		Deadline:  started.Add(c.window),
		Phase:     Active,
	}, nil
}

// Start renders the initial controls and posts the public roll notice.
// The session counts as active once the controls are up.
func (c *Controller) Start(ctx context.Context, s *Session, surface Surface) error {
	log := observability.WithTrace(ctx, c.logger)

	reply, err := surface.ReplyWithControls(ctx, view.Layout(s.Dice, s.Selection))
	if err != nil {
		s.Phase = Finalized
		return fmt.Errorf("render controls: %w", err)
	}
	s.Reply = reply
	c.active.Add(1)

	content := fmt.Sprintf("%s rolled: %s", surface.UserMention(), summary.CodeBlock(summary.RollNotice(s.Dice)))
	notice, err := surface.SendFollowUp(ctx, content, "")
	if err != nil {
		// The session still works; the summary is posted without a parent.
		log.Warn("failed to post roll notice", "session", s.ID, "err", err)
	} else {
		s.Notice = notice
	}

	log.Info("roll session started",
		"session", s.ID,
		"actor", s.Actor,
		"dice", len(s.Dice),
		"deadline", s.Deadline)
	c.record(func(r Recorder) { r.Started(ctx, s) })
	return nil
}

// Run consumes clicks until the session is confirmed, the subscription
// closes, or ctx is cancelled. The subscription is always stopped on return.
func (c *Controller) Run(ctx context.Context, s *Session, surface Surface, sub Subscription) {
	defer sub.Stop()
	for {
		select {
		case <-ctx.Done():
			c.finish(context.WithoutCancel(ctx), s, OutcomeAborted, nil)
			return
		case click, ok := <-sub.Clicks():
			if !ok {
				c.finish(ctx, s, OutcomeExpired, nil)
				return
			}
			if c.Handle(ctx, s, surface, click) {
				return
			}
		}
	}
}

// Handle applies one click and reports whether the session is now finalized.
// Clicks on a finalized session are dropped without touching the surface.
func (c *Controller) Handle(ctx context.Context, s *Session, surface Surface, click Click) bool {
	if s.Phase != Active {
		return true
	}
	log := observability.WithTrace(ctx, c.logger)

	target, err := view.Decode(click.ControlID())
	if err != nil {
		log.Debug("ignoring click", "session", s.ID, "control", click.ControlID(), "err", err)
		c.acknowledge(ctx, click)
		return false
	}

	if target.Confirm {
		c.confirm(ctx, s, surface, click)
		return true
	}

	before := s.Selection.Clone()
	if !s.Selection.Toggle(target.Entry) {
		// Unknown or hitch die: nothing to re-render.
		c.acknowledge(ctx, click)
		return false
	}
	if err := click.Respond(ctx, "", view.Layout(s.Dice, s.Selection)); err != nil {
		s.Selection = before
		log.Warn("failed to re-render controls; selection reverted",
			"session", s.ID, "control", click.ControlID(), "err", err)
	}
	return false
}

func (c *Controller) confirm(ctx context.Context, s *Session, surface Surface, click Click) {
	log := observability.WithTrace(ctx, c.logger)
	result := summary.Compute(s.Dice, s.Selection)
	c.finish(ctx, s, OutcomeConfirmed, &result)

	c.acknowledge(ctx, click)
	if _, err := surface.SendFollowUp(ctx, summary.CodeBlock(result.String()), s.Notice); err != nil {
		log.Error("failed to publish roll summary", "session", s.ID, "err", err)
	}
	if err := surface.DeleteReply(ctx, s.Reply); err != nil {
		log.Warn("failed to delete interactive reply", "session", s.ID, "err", err)
	}
}

// finish moves the session to Finalized exactly once.
func (c *Controller) finish(ctx context.Context, s *Session, outcome Outcome, result *summary.Summary) {
	if s.Phase == Finalized {
		return
	}
	s.Phase = Finalized
	if s.Reply != "" {
		c.active.Add(-1)
	}
	observability.WithTrace(ctx, c.logger).Info("roll session finished",
		"session", s.ID, "outcome", outcome, "elapsed", c.now().Sub(s.StartedAt))
	c.record(func(r Recorder) { r.Finished(ctx, s, outcome, result) })
}

func (c *Controller) acknowledge(ctx context.Context, click Click) {
	if err := click.Acknowledge(ctx); err != nil {
		observability.WithTrace(ctx, c.logger).Debug("click acknowledgement failed", "err", err)
	}
}

func (c *Controller) record(fn func(Recorder)) {
	if c.recorder != nil {
		fn(c.recorder)
	}
}

// InputErrorMessage maps parser and roller errors to the reply shown to the
// user. It reports false for any other error.
func InputErrorMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, dice.ErrTooManyDice):
		return fmt.Sprintf(MsgTooManyDice, dice.MaxDice-1), true
	case errors.Is(err, dice.ErrInvalidNotation):
		return MsgInvalidNotation, true
	default:
		return "", false
	}
}
