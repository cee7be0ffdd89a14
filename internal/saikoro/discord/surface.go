package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/bdobrica/Saikoro/common/retry"
	"github.com/bdobrica/Saikoro/internal/saikoro/session"
	"github.com/bdobrica/Saikoro/internal/saikoro/view"
)

// API is the subset of *discordgo.Session used to answer interactions.
type API interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponse(interaction *discordgo.Interaction, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseDelete(interaction *discordgo.Interaction, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ API = (*discordgo.Session)(nil)

var _ session.Surface = (*Surface)(nil)

// Surface answers one slash command interaction. The control message is an
// ephemeral response, so only the invoking user sees and clicks it.
type Surface struct {
	api         API
	router      *ClickRouter
	interaction *discordgo.Interaction
	actor       string
	retry       retry.Config

	mu        sync.Mutex
	responded bool
}

// NewSurface returns a surface answering interaction, sent by actor.
func NewSurface(api API, router *ClickRouter, interaction *discordgo.Interaction, actor string) *Surface {
	return &Surface{
		api:         api,
		router:      router,
		interaction: interaction,
		actor:       actor,
		retry:       retry.DefaultConfig,
	}
}

// respondOnce reports whether this is the first response to the interaction.
// Later answers go out as follow-ups.
func (s *Surface) respondOnce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := !s.responded
	s.responded = true
	return first
}

// ReplyText answers the command with an ephemeral message.
func (s *Surface) ReplyText(ctx context.Context, content string) error {
	if s.respondOnce() {
		return s.do(ctx, func() error {
			return s.api.InteractionRespond(s.interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: content,
					Flags:   discordgo.MessageFlagsEphemeral,
				},
			}, discordgo.WithContext(ctx))
		})
	}
	return s.do(ctx, func() error {
		_, err := s.api.FollowupMessageCreate(s.interaction, true, &discordgo.WebhookParams{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		}, discordgo.WithContext(ctx))
		return err
	})
}

// ReplyWithControls responds with the ephemeral control message and starts
// routing its button clicks.
func (s *Surface) ReplyWithControls(ctx context.Context, rows []view.Row) (session.Handle, error) {
	if !s.respondOnce() {
		return "", errors.New("discord: interaction already answered")
	}
	err := s.do(ctx, func() error {
		return s.api.InteractionRespond(s.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    Header,
				Components: Components(rows),
				Flags:      discordgo.MessageFlagsEphemeral,
			},
		}, discordgo.WithContext(ctx))
	})
	if err != nil {
		return "", fmt.Errorf("respond with controls: %w", err)
	}

	// Component interactions name the message they came from, so the
	// message ID is the routing key.
	msg, err := retry.Value(ctx, s.retry, func() (*discordgo.Message, error) {
		m, err := s.api.InteractionResponse(s.interaction, discordgo.WithContext(ctx))
		return m, classify(err)
	})
	if err != nil {
		return "", fmt.Errorf("fetch control message: %w", err)
	}
	h := session.Handle(msg.ID)
	if s.router != nil {
		s.router.watch(s, msg.ID)
	}
	return h, nil
}

// UpdateControls edits the control message through the original interaction.
func (s *Surface) UpdateControls(ctx context.Context, _ session.Handle, content string, rows []view.Row) error {
	components := Components(rows)
	edit := &discordgo.WebhookEdit{Components: &components}
	if content != "" {
		edit.Content = &content
	}
	return s.do(ctx, func() error {
		_, err := s.api.InteractionResponseEdit(s.interaction, edit, discordgo.WithContext(ctx))
		return err
	})
}

// SendFollowUp posts a public message in the channel of the command.
func (s *Surface) SendFollowUp(ctx context.Context, content string, inReplyTo session.Handle) (session.Handle, error) {
	data := &discordgo.MessageSend{
		Content: content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: []string{s.actor},
		},
	}
	if inReplyTo != "" {
		data.Reference = &discordgo.MessageReference{
			MessageID: string(inReplyTo),
			ChannelID: s.interaction.ChannelID,
			GuildID:   s.interaction.GuildID,
		}
	}
	msg, err := retry.Value(ctx, s.retry, func() (*discordgo.Message, error) {
		m, err := s.api.ChannelMessageSendComplex(s.interaction.ChannelID, data, discordgo.WithContext(ctx))
		return m, classify(err)
	})
	if err != nil {
		return "", fmt.Errorf("send follow-up: %w", err)
	}
	return session.Handle(msg.ID), nil
}

// DeleteReply deletes the ephemeral control message.
func (s *Surface) DeleteReply(ctx context.Context, h session.Handle) error {
	if s.router != nil {
		s.router.close(string(h))
	}
	return s.do(ctx, func() error {
		return s.api.InteractionResponseDelete(s.interaction, discordgo.WithContext(ctx))
	})
}

// SubscribeToClicks returns the button clicks on h.
func (s *Surface) SubscribeToClicks(_ context.Context, h session.Handle, maxDuration time.Duration) (session.Subscription, error) {
	if s.router == nil {
		return nil, ErrNotWatched
	}
	return s.router.subscribe(string(h), maxDuration)
}

// UserMention returns the Discord mention markup for the invoking user.
func (s *Surface) UserMention() string { return "<@" + s.actor + ">" }

func (s *Surface) do(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, s.retry, func() error { return classify(fn()) })
}

// classify marks client errors as permanent; rate limits and server errors
// are retried.
func classify(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		code := rest.Response.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
	}
	return err
}
