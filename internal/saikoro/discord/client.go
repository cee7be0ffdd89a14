// Package discord is the Discord transport: a slash command starts a roll and
// the buttons of an ephemeral reply are its controls.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord client configuration.
type Config struct {
	Token string
	// GuildID scopes the slash command to one guild; empty registers it
	// globally.
	GuildID     string
	CommandName string
	Logger      *slog.Logger
}

// Invocation is one use of the slash command.
type Invocation struct {
	Notation  string
	Sender    string
	ChannelID string
	GuildID   string
	// Surface answers this invocation.
	Surface *Surface
}

// CommandHandler processes slash command invocations.
type CommandHandler func(ctx context.Context, inv *Invocation)

// Client wraps a discordgo session.
type Client struct {
	session *discordgo.Session
	api     API
	config  *Config
	router  *ClickRouter
	logger  *slog.Logger
	handler CommandHandler
	ctx     context.Context
	remove  []func()
}

// New creates a Discord client; Start connects it.
func New(config *Config) (*Client, error) {
	s, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	// Interactions need no privileged intents.
	s.Identify.Intents = discordgo.IntentsGuilds

	c := newClient(s, config)
	c.session = s
	return c, nil
}

func newClient(api API, config *Config) *Client {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("transport", "discord")
	return &Client{
		api:    api,
		config: config,
		router: NewClickRouter(logger),
		logger: logger,
		ctx:    context.Background(),
	}
}

// Start opens the gateway connection. The slash command is registered once
// the session is ready. ctx is the parent of every invocation.
func (c *Client) Start(ctx context.Context, handler CommandHandler) error {
	c.handler = handler
	c.ctx = ctx
	c.remove = append(c.remove,
		c.session.AddHandler(c.onReady),
		c.session.AddHandler(c.onInteraction),
	)
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord gateway: %w", err)
	}
	return nil
}

// Stop closes the gateway connection.
func (c *Client) Stop() {
	for _, rm := range c.remove {
		rm()
	}
	c.remove = nil
	if err := c.session.Close(); err != nil {
		c.logger.Warn("failed to close Discord session", "err", err)
	}
}

// PendingControls returns the number of control messages being watched.
func (c *Client) PendingControls() int { return c.router.Pending() }

func (c *Client) onReady(s *discordgo.Session, r *discordgo.Ready) {
	if r.Application == nil {
		c.logger.Error("ready event without application; slash command not registered")
		return
	}
	cmds := []*discordgo.ApplicationCommand{ApplicationCommand(c.config.CommandName)}
	if _, err := s.ApplicationCommandBulkOverwrite(r.Application.ID, c.config.GuildID, cmds); err != nil {
		c.logger.Error("failed to register slash command", "command", c.config.CommandName, "err", err)
		return
	}
	c.logger.Info("Discord ready", "application", r.Application.ID, "command", c.config.CommandName, "guild", c.config.GuildID)
}

func (c *Client) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	c.handleInteraction(c.ctx, i.Interaction)
}

// handleInteraction dispatches slash commands to the handler and button
// clicks to the router.
func (c *Client) handleInteraction(ctx context.Context, i *discordgo.Interaction) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		if data.Name != c.config.CommandName || c.handler == nil {
			return
		}
		actor := interactionUser(i)
		c.handler(ctx, &Invocation{
			Notation:  commandNotation(data),
			Sender:    actor,
			ChannelID: i.ChannelID,
			GuildID:   i.GuildID,
			Surface:   NewSurface(c.api, c.router, i, actor),
		})

	case discordgo.InteractionMessageComponent:
		switch c.router.HandleComponent(c.api, i) {
		case Unknown:
			c.ephemeral(i, MsgExpired)
		case Foreign:
			c.ephemeral(i, MsgNotYours)
		case Dropped:
			c.acknowledge(i)
		}
	}
}

// commandNotation extracts the dice option from a slash command.
func commandNotation(data discordgo.ApplicationCommandInteractionData) string {
	for _, opt := range data.Options {
		if opt.Name == DiceOption && opt.Type == discordgo.ApplicationCommandOptionString {
			return strings.TrimSpace(opt.StringValue())
		}
	}
	return ""
}

func (c *Client) ephemeral(i *discordgo.Interaction, content string) {
	err := c.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		c.logger.Debug("failed to answer interaction", "err", err)
	}
}

func (c *Client) acknowledge(i *discordgo.Interaction) {
	err := c.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		c.logger.Debug("failed to acknowledge interaction", "err", err)
	}
}
