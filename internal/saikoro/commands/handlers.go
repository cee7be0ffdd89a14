package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bdobrica/Saikoro/common/observability"
	"github.com/bdobrica/Saikoro/common/trace"
	"github.com/bdobrica/Saikoro/common/version"
	"github.com/bdobrica/Saikoro/internal/saikoro/dice"
	"github.com/bdobrica/Saikoro/internal/saikoro/session"
	"github.com/bdobrica/Saikoro/internal/saikoro/store"
	"github.com/bdobrica/Saikoro/internal/saikoro/summary"
)

// History limits for the history command.
const (
	DefaultHistory = 5
	MaxHistory     = 20
)

// SessionRunner runs roll sessions; *session.Controller satisfies it.
type SessionRunner interface {
	Execute(ctx context.Context, notation, actor string, surface session.Surface) error
}

// Spawner runs fn on a goroutine owned by the application, so a session
// outlives the event that started it but not the process.
type Spawner interface {
	Spawn(ctx context.Context, fn func(ctx context.Context))
}

// Store is the persistence used by the handlers; *store.Store satisfies it.
type Store interface {
	WriteAudit(ctx context.Context, traceID, actor, action, target, result string, payload store.AuditPayload, errorMsg string) error
	ListRollsByActor(ctx context.Context, actor string, limit int) ([]*store.Roll, error)
}

// HandlersConfig holds the dependencies of Handlers.
type HandlersConfig struct {
	Sessions SessionRunner
	Spawner  Spawner
	// Store is optional; without it ping skips auditing and history is
	// unavailable.
	Store  Store
	Prefix string
	Logger *slog.Logger
}

// Handlers holds all command handlers and dependencies
type Handlers struct {
	sessions SessionRunner
	spawner  Spawner
	store    Store
	prefix   string
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(cfg HandlersConfig) *Handlers {
	h := &Handlers{
		sessions: cfg.Sessions,
		spawner:  cfg.Spawner,
		store:    cfg.Store,
		prefix:   cfg.Prefix,
		logger:   cfg.Logger,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Register installs every handler on r.
func (h *Handlers) Register(r *Router) {
	r.Register("roll", h.HandleRoll)
	r.Register("help", h.HandleHelp)
	r.Register("version", h.HandleVersion)
	r.Register("ping", h.HandlePing)
	r.Register("history", h.HandleHistory)
}

// HandleRoll starts an interactive roll session for the notation following
// the command name. The session answers through the request surface and runs
// on its own goroutine.
func (h *Handlers) HandleRoll(ctx context.Context, cmd *Command, req *Request) (string, error) {
	if h.sessions == nil {
		return "", fmt.Errorf("rolling is not configured")
	}
	if req == nil || req.Surface == nil {
		return "", fmt.Errorf("roll needs a reply surface")
	}
	ctx, _ = trace.Ensure(ctx)
	notation := cmd.Rest()

	run := func(ctx context.Context) {
		if err := h.sessions.Execute(ctx, notation, req.Sender, req.Surface); err != nil {
			observability.WithTrace(ctx, h.logger).Error("roll session failed",
				"actor", req.Sender, "notation", notation, "err", err)
		}
	}
	if h.spawner == nil {
		run(ctx)
	} else {
		h.spawner.Spawn(ctx, run)
	}
	return "", nil
}

// HandleHelp shows available commands
func (h *Handlers) HandleHelp(ctx context.Context, cmd *Command, req *Request) (string, error) {
	p := h.prefix
	var sb strings.Builder
	sb.WriteString("**Saikoro dice roller**\n\n")
	fmt.Fprintf(&sb, "• %s roll <dice> - Roll dice, e.g. `%s roll 2d6 d8 20`\n", p, p)
	fmt.Fprintf(&sb, "• %s history [n] - Show your last n rolls (default %d)\n", p, DefaultHistory)
	fmt.Fprintf(&sb, "• %s version - Show version information\n", p)
	fmt.Fprintf(&sb, "• %s ping - Health check\n", p)
	fmt.Fprintf(&sb, "• %s help - Show this help message\n\n", p)
	sb.WriteString("**Notation:** `S` or `QdS` separated by spaces; ")
	fmt.Fprintf(&sb, "at most %d dice per roll, at most %d per token.\n\n", dice.MaxDice-1, dice.MaxQuantity)
	sb.WriteString("**Selecting:** pick the dice that count toward the total, ")
	sb.WriteString("and at most one effect die. Dice that rolled 1 are hitches and cannot be picked. ")
	sb.WriteString("Confirm with Ok within a minute.")
	return sb.String(), nil
}

// HandleVersion shows version information
func (h *Handlers) HandleVersion(ctx context.Context, cmd *Command, req *Request) (string, error) {
	return fmt.Sprintf("**Saikoro**\nVersion: %s\nCommit: %s\nBuild Time: %s",
		version.Version, version.GitCommit, version.BuildTime), nil
}

// HandlePing responds with a health check
func (h *Handlers) HandlePing(ctx context.Context, cmd *Command, req *Request) (string, error) {
	ctx, traceID := trace.Ensure(ctx)
	if h.store != nil {
		if err := h.store.WriteAudit(ctx, traceID, sender(req), "ping", "", store.ResultSuccess, nil, ""); err != nil {
			return "", fmt.Errorf("failed to write audit: %w", err)
		}
	}
	return fmt.Sprintf("🏓 Pong! (trace: %s)", traceID), nil
}

// HandleHistory lists the sender's most recent rolls.
func (h *Handlers) HandleHistory(ctx context.Context, cmd *Command, req *Request) (string, error) {
	if h.store == nil {
		return "", fmt.Errorf("history is not available without a database")
	}
	ctx, traceID := trace.Ensure(ctx)

	limit := DefaultHistory
	arg := cmd.Subcommand
	if arg == "" {
		arg, _ = cmd.GetArg(0)
	}
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return "", fmt.Errorf("usage: %s history [n]", h.prefix)
		}
		limit = min(n, MaxHistory)
	}

	rolls, err := h.store.ListRollsByActor(ctx, sender(req), limit)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}
	if len(rolls) == 0 {
		return fmt.Sprintf("No rolls yet. Try `%s roll 2d6`.", h.prefix), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Your last %d rolls**\n\n", len(rolls))
	for _, r := range rolls {
		fmt.Fprintf(&sb, "%s `%s` **%s** → %s\n",
			outcomeIcon(r.Outcome), r.StartedAt.Format("2006-01-02 15:04"), r.Notation, describe(r))
	}
	fmt.Fprintf(&sb, "\n(trace: %s)", traceID)
	return sb.String(), nil
}

func describe(r *store.Roll) string {
	switch {
	case r.Result != nil:
		return summary.Summary{
			Total:       r.Result.Total,
			Values:      r.Result.Values,
			EffectSides: r.Result.EffectSides,
			Hitches:     r.Hitches,
		}.String()
	case r.Outcome == "":
		return "in progress"
	default:
		return r.Outcome
	}
}

func outcomeIcon(outcome string) string {
	switch session.Outcome(outcome) {
	case session.OutcomeConfirmed:
		return "✅"
	case session.OutcomeExpired:
		return "⌛"
	case session.OutcomeAborted:
		return "⏹️"
	default:
		return "🎲"
	}
}

func sender(req *Request) string {
	if req == nil {
		return ""
	}
	return req.Sender
}
