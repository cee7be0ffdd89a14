package audit

import (
	"context"
	"log/slog"

	"github.com/bdobrica/Saikoro/common/observability"
	"github.com/bdobrica/Saikoro/common/trace"
	"github.com/bdobrica/Saikoro/internal/saikoro/session"
	"github.com/bdobrica/Saikoro/internal/saikoro/store"
	"github.com/bdobrica/Saikoro/internal/saikoro/summary"
)

// Audit actions.
const (
	ActionRoll       = "roll"
	ActionRollStart  = "roll.start"
	ActionRollFinish = "roll.finish"
)

// Store is the persistence the Recorder needs; *store.Store satisfies it.
type Store interface {
	WriteAudit(ctx context.Context, traceID, actor, action, target, result string, payload store.AuditPayload, errorMsg string) error
	CreateRoll(ctx context.Context, r *store.Roll) error
	FinishRoll(ctx context.Context, sessionID, outcome string, result *store.RollResult) error
}

var _ session.Recorder = (*Recorder)(nil)

// Recorder is a session.Recorder that persists every lifecycle event for
// one transport. Failures are logged and never reach the session.
type Recorder struct {
	store     Store
	notifier  Notifier
	transport string
	logger    *slog.Logger
}

// NewRecorder creates a Recorder. A nil notifier disables room notices.
func NewRecorder(st Store, notifier Notifier, transport string, logger *slog.Logger) *Recorder {
	if notifier == nil {
		notifier = Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: st, notifier: notifier, transport: transport, logger: logger}
}

// Rejected records input that never became a session.
func (r *Recorder) Rejected(ctx context.Context, actor, notation string, err error) {
	r.write(ctx, actor, ActionRoll, notation, store.ResultRejected,
		store.AuditPayload{"transport": r.transport}, err.Error())
}

// Started records the rolled dice of a new session.
func (r *Recorder) Started(ctx context.Context, s *session.Session) {
	rolled := make([]store.RollDie, len(s.Dice))
	hitches := 0
	for i, d := range s.Dice {
		rolled[i] = store.RollDie{ID: d.ID, Sides: d.Sides, Result: d.Result}
		if d.IsHitch() {
			hitches++
		}
	}
	if err := r.store.CreateRoll(ctx, &store.Roll{
		SessionID: s.ID,
		Transport: r.transport,
		Actor:     s.Actor,
		Notation:  s.Notation,
		Dice:      rolled,
		Hitches:   hitches,
		StartedAt: s.StartedAt,
	}); err != nil {
		observability.WithTrace(ctx, r.logger).Warn("failed to record roll", "session", s.ID, "err", err)
	}
	r.write(ctx, s.Actor, ActionRollStart, s.Notation, store.ResultSuccess,
		store.AuditPayload{"transport": r.transport, "dice": len(s.Dice), "hitches": hitches}, "")
}

// Finished records how a session ended and notifies the audit room.
func (r *Recorder) Finished(ctx context.Context, s *session.Session, outcome session.Outcome, result *summary.Summary) {
	var stored *store.RollResult
	payload := store.AuditPayload{"transport": r.transport, "outcome": string(outcome)}
	if result != nil {
		stored = &store.RollResult{Total: result.Total, Values: result.Values, EffectSides: result.EffectSides}
		payload["total"] = result.Total
		payload["effect_sides"] = result.EffectSides
	}
	if err := r.store.FinishRoll(ctx, s.ID, string(outcome), stored); err != nil {
		observability.WithTrace(ctx, r.logger).Warn("failed to finish roll record", "session", s.ID, "err", err)
	}
	r.write(ctx, s.Actor, ActionRollFinish, s.Notation, store.ResultSuccess, payload, "")

	evt := Event{Actor: s.Actor, Target: s.Notation, TraceID: s.ID}
	switch outcome {
	case session.OutcomeConfirmed:
		evt.Kind = KindRollConfirmed
		if result != nil {
			evt.Message = result.String()
		}
	case session.OutcomeExpired:
		evt.Kind, evt.Message = KindRollExpired, "expired without confirmation"
	default:
		evt.Kind, evt.Message = KindRollAborted, "aborted on shutdown"
	}
	r.notifier.Notify(ctx, evt)
}

func (r *Recorder) write(ctx context.Context, actor, action, target, result string, payload store.AuditPayload, errMsg string) {
	if err := r.store.WriteAudit(ctx, trace.FromContext(ctx), actor, action, target, result, payload, errMsg); err != nil {
		observability.WithTrace(ctx, r.logger).Warn("failed to write audit", "action", action, "err", err)
	}
}
