// Package app wires Saikoro together: configuration, storage, the session
// controllers and the chat transports.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bdobrica/Saikoro/common/observability"
	"github.com/bdobrica/Saikoro/common/trace"
	"github.com/bdobrica/Saikoro/internal/saikoro/audit"
	"github.com/bdobrica/Saikoro/internal/saikoro/commands"
	"github.com/bdobrica/Saikoro/internal/saikoro/config"
	"github.com/bdobrica/Saikoro/internal/saikoro/dice"
	"github.com/bdobrica/Saikoro/internal/saikoro/discord"
	"github.com/bdobrica/Saikoro/internal/saikoro/matrix"
	"github.com/bdobrica/Saikoro/internal/saikoro/session"
	"github.com/bdobrica/Saikoro/internal/saikoro/store"
)

// Transport names used in the audit trail and /status.
const (
	TransportMatrix  = "matrix"
	TransportDiscord = "discord"
)

// shutdownGrace bounds how long Stop waits for sessions to record their
// aborted outcome before the database closes.
const shutdownGrace = 5 * time.Second

// App is the Saikoro application.
type App struct {
	config *config.Config
	logger *slog.Logger
	store  *store.Store

	ctx     context.Context
	cancel  context.CancelFunc
	spawner *Spawner

	matrix         *matrix.Client
	matrixRouter   *commands.Router
	matrixSessions *session.Controller

	discord         *discord.Client
	discordRouter   *commands.Router
	discordSessions *session.Controller

	healthServer *HealthServer
}

// New builds the application from cfg. Nothing connects until Run.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	roller, err := dice.NewRoller(nil)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create roller: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		config:  cfg,
		logger:  logger,
		store:   st,
		ctx:     ctx,
		cancel:  cancel,
		spawner: NewSpawner(ctx),
	}

	var notifier audit.Notifier = audit.Noop{}

	if cfg.Matrix.Enabled {
		a.matrix, err = matrix.New(&matrix.Config{
			Homeserver:   cfg.Matrix.Homeserver,
			UserID:       cfg.Matrix.UserID,
			AccessToken:  cfg.Matrix.AccessToken.Reveal(),
			DeviceID:     cfg.Matrix.DeviceID,
			AllowedRooms: cfg.Matrix.AllowedRooms,
			DB:           st.DB(),
			Logger:       logger,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		if cfg.Matrix.AuditRoom != "" {
			notifier = audit.NewRoomNotifier(a.matrix, cfg.Matrix.AuditRoom)
		}
	}

	if cfg.Discord.Enabled {
		a.discord, err = discord.New(&discord.Config{
			Token:       cfg.Discord.Token.Reveal(),
			GuildID:     cfg.Discord.GuildID,
			CommandName: cfg.Discord.CommandName,
			Logger:      logger,
		})
		if err != nil {
			a.close()
			return nil, err
		}
	}

	newSessions := func(transport string) *session.Controller {
		return session.NewController(session.Config{
			Roller:   roller,
			Window:   cfg.SessionWindow,
			Recorder: audit.NewRecorder(st, notifier, transport, logger),
			Logger:   logger.With("transport", transport),
		})
	}
	if a.matrix != nil {
		a.matrixSessions = newSessions(TransportMatrix)
		a.matrixRouter = a.newRouter(cfg.Matrix.Prefix, a.matrixSessions)
	}
	if a.discord != nil {
		a.discordSessions = newSessions(TransportDiscord)
		a.discordRouter = a.newRouter("/"+cfg.Discord.CommandName, a.discordSessions)
	}

	if cfg.HTTPAddr != "" {
		a.healthServer = NewHealthServer(cfg.HTTPAddr, a)
	}
	return a, nil
}

func (a *App) newRouter(prefix string, sessions *session.Controller) *commands.Router {
	r := commands.NewRouter(prefix)
	commands.NewHandlers(commands.HandlersConfig{
		Sessions: sessions,
		Spawner:  a.spawner,
		Store:    a.store,
		Prefix:   prefix,
		Logger:   a.logger,
	}).Register(r)
	return r
}

// Run starts every configured component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}
	a.logger.Info("Saikoro is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-sigCh:
	case <-a.ctx.Done():
	}

	a.logger.Info("shutting down")
	return nil
}

// Start connects the transports and the health server without blocking.
func (a *App) Start() error {
	if a.healthServer != nil {
		if err := a.healthServer.Start(a.ctx); err != nil {
			a.logger.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	if a.matrix != nil {
		a.logger.Info("starting Matrix sync")
		if err := a.matrix.Start(a.ctx, a.handleMatrixMessage); err != nil {
			return fmt.Errorf("failed to start Matrix client: %w", err)
		}
		if room := a.config.Matrix.AuditRoom; room != "" {
			if err := a.matrix.SendNotice(a.ctx, room, "✅ Saikoro started. Type `"+a.config.Matrix.Prefix+" help` for commands."); err != nil {
				a.logger.Warn("failed to send startup notice", "room", room, "err", err)
			}
		}
	}

	if a.discord != nil {
		a.logger.Info("connecting to Discord")
		if err := a.discord.Start(a.ctx, a.handleDiscordInvocation); err != nil {
			return fmt.Errorf("failed to start Discord client: %w", err)
		}
	}
	return nil
}

// Stop disconnects the transports, aborts live sessions and closes the
// database.
func (a *App) Stop() {
	if a.matrix != nil {
		a.logger.Info("stopping Matrix client")
		a.matrix.Stop()
	}
	if a.discord != nil {
		a.logger.Info("stopping Discord client")
		a.discord.Stop()
	}

	a.cancel()
	if !a.spawner.Wait(shutdownGrace) {
		a.logger.Warn("sessions still running at shutdown")
	}

	if a.healthServer != nil {
		a.healthServer.Stop()
	}
	a.close()
}

func (a *App) close() {
	a.cancel()
	a.logger.Info("closing database")
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", "err", err)
	}
}

// Stats implements statsProvider for the health server.
func (a *App) Stats(ctx context.Context) (Stats, error) {
	s := Stats{ActiveSessions: map[string]int{}, Rolls: map[string]int{}}
	if a.matrixSessions != nil {
		s.ActiveSessions[TransportMatrix] = a.matrixSessions.ActiveSessions()
	}
	if a.discordSessions != nil {
		s.ActiveSessions[TransportDiscord] = a.discordSessions.ActiveSessions()
	}

	outcomes := []session.Outcome{"", session.OutcomeConfirmed, session.OutcomeExpired, session.OutcomeAborted}
	var errs []error
	for _, outcome := range outcomes {
		n, err := a.store.CountRolls(ctx, string(outcome))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		name := string(outcome)
		if name == "" {
			name = "open"
		}
		s.Rolls[name] = n
	}
	return s, errors.Join(errs...)
}

// handleMatrixMessage routes a room message to the command handlers.
func (a *App) handleMatrixMessage(ctx context.Context, msg *matrix.Message) {
	ctx, _ = trace.Ensure(ctx)
	req := &commands.Request{Sender: msg.Sender.String(), Surface: msg.Surface}

	response, err := a.matrixRouter.Route(ctx, msg.Body, req)
	if err != nil {
		if errors.Is(err, commands.ErrNotACommand) {
			return
		}
		response = fmt.Sprintf("❌ Error: %s", err)
	}
	a.reply(ctx, msg.Surface, response)
}

// handleDiscordInvocation starts a roll for a slash command.
func (a *App) handleDiscordInvocation(ctx context.Context, inv *discord.Invocation) {
	ctx, _ = trace.Ensure(ctx)
	req := &commands.Request{Sender: inv.Sender, Surface: inv.Surface}
	cmd := &commands.Command{Name: "roll", RawText: "roll " + inv.Notation}

	response, err := a.discordRouter.Dispatch(ctx, "roll", cmd, req)
	if err != nil {
		response = fmt.Sprintf("❌ Error: %s", err)
	}
	a.reply(ctx, inv.Surface, response)
}

func (a *App) reply(ctx context.Context, surface session.Surface, response string) {
	if response == "" {
		return
	}
	if err := surface.ReplyText(ctx, response); err != nil {
		observability.WithTrace(ctx, a.logger).Error("failed to send response", "err", err)
	}
}
