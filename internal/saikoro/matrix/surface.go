package matrix

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Saikoro/common/retry"
	"github.com/bdobrica/Saikoro/internal/saikoro/session"
	"github.com/bdobrica/Saikoro/internal/saikoro/view"
)

// API is the subset of *mautrix.Client used to talk to a room.
type API interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON any, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
	SendReaction(ctx context.Context, roomID id.RoomID, eventID id.EventID, reaction string) (*mautrix.RespSendEvent, error)
	RedactEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID, extra ...mautrix.ReqRedact) (*mautrix.RespSendEvent, error)
}

var _ API = (*mautrix.Client)(nil)

var _ session.Surface = (*Surface)(nil)

// Surface answers one command message in one room. Matrix has no ephemeral
// messages, so the control message is a visible reply that only the invoking
// user can drive.
type Surface struct {
	api     API
	router  *ClickRouter
	roomID  id.RoomID
	command id.EventID
	actor   id.UserID
	retry   retry.Config
	logger  *slog.Logger
	keymaps map[session.Handle]*Keymap
}

// NewSurface returns a surface answering command, sent by actor in roomID.
func NewSurface(api API, router *ClickRouter, roomID id.RoomID, command id.EventID, actor id.UserID, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{
		api:     api,
		router:  router,
		roomID:  roomID,
		command: command,
		actor:   actor,
		retry:   retry.DefaultConfig,
		logger:  logger,
		keymaps: make(map[session.Handle]*Keymap),
	}
}

// ReplyText answers the command with a formatted text message.
func (s *Surface) ReplyText(ctx context.Context, content string) error {
	msg := s.message(event.MsgText, content)
	msg.RelatesTo = &event.RelatesTo{InReplyTo: &event.InReplyTo{EventID: s.command}}
	_, err := s.send(ctx, msg)
	return err
}

// ReplyWithControls posts the control message, starts routing reactions on
// it and seeds one reaction per enabled control.
func (s *Surface) ReplyWithControls(ctx context.Context, rows []view.Row) (session.Handle, error) {
	km := NewKeymap(rows)
	plain, formatted := km.Render("", rows)
	msg := &event.MessageEventContent{
		MsgType:       event.MsgNotice,
		Body:          plain,
		Format:        event.FormatHTML,
		FormattedBody: formatted,
		RelatesTo:     &event.RelatesTo{InReplyTo: &event.InReplyTo{EventID: s.command}},
		Mentions:      &event.Mentions{UserIDs: []id.UserID{s.actor}},
	}
	eventID, err := s.send(ctx, msg)
	if err != nil {
		return "", err
	}
	h := session.Handle(eventID)
	s.keymaps[h] = km
	if s.router != nil {
		s.router.watch(s, eventID, km)
	}

	for _, key := range km.Seed() {
		if _, err := s.api.SendReaction(ctx, s.roomID, eventID, key); err != nil {
			// Users can still add the reaction themselves.
			s.logger.Warn("failed to seed reaction", "room", s.roomID, "key", key, "err", err)
			break
		}
	}
	return h, nil
}

// UpdateControls edits the control message. An empty content keeps the
// default header.
func (s *Surface) UpdateControls(ctx context.Context, h session.Handle, content string, rows []view.Row) error {
	km, ok := s.keymaps[h]
	if !ok {
		km = NewKeymap(rows)
		s.keymaps[h] = km
	}
	plain, formatted := km.Render(content, rows)
	msg := &event.MessageEventContent{
		MsgType:       event.MsgNotice,
		Body:          plain,
		Format:        event.FormatHTML,
		FormattedBody: formatted,
	}
	msg.SetEdit(id.EventID(h))
	_, err := s.send(ctx, msg)
	return err
}

// SendFollowUp posts a public notice, optionally as a reply.
func (s *Surface) SendFollowUp(ctx context.Context, content string, inReplyTo session.Handle) (session.Handle, error) {
	msg := s.message(event.MsgNotice, content)
	if inReplyTo != "" {
		msg.RelatesTo = &event.RelatesTo{InReplyTo: &event.InReplyTo{EventID: id.EventID(inReplyTo)}}
	}
	eventID, err := s.send(ctx, msg)
	if err != nil {
		return "", err
	}
	return session.Handle(eventID), nil
}

// DeleteReply redacts a control message and stops routing its reactions.
func (s *Surface) DeleteReply(ctx context.Context, h session.Handle) error {
	delete(s.keymaps, h)
	if s.router != nil {
		s.router.close(id.EventID(h))
	}
	_, err := retry.Value(ctx, s.retry, func() (*mautrix.RespSendEvent, error) {
		resp, err := s.api.RedactEvent(ctx, s.roomID, id.EventID(h), mautrix.ReqRedact{Reason: "roll finished"})
		return resp, classify(err)
	})
	if err != nil {
		return fmt.Errorf("redact %s: %w", h, err)
	}
	return nil
}

// SubscribeToClicks returns the reactions on h as clicks.
func (s *Surface) SubscribeToClicks(_ context.Context, h session.Handle, maxDuration time.Duration) (session.Subscription, error) {
	if s.router == nil {
		return nil, ErrNotWatched
	}
	return s.router.subscribe(id.EventID(h), maxDuration)
}

// UserMention returns the invoking user's ID; outgoing messages turn it into
// a pill.
func (s *Surface) UserMention() string { return s.actor.String() }

// message builds a formatted message, linking and mentioning the invoking
// user when the content names them.
func (s *Surface) message(msgType event.MessageType, content string) *event.MessageEventContent {
	formatted := markdownToHTML(content)
	msg := &event.MessageEventContent{
		MsgType:       msgType,
		Body:          content,
		Format:        event.FormatHTML,
		FormattedBody: formatted,
		Mentions:      &event.Mentions{},
	}
	if name := s.actor.String(); name != "" && strings.Contains(content, name) {
		escaped := html.EscapeString(name)
		pill := fmt.Sprintf(`<a href="https://matrix.to/#/%s">%s</a>`, escaped, escaped)
		msg.FormattedBody = strings.Replace(formatted, escaped, pill, 1)
		msg.Mentions.UserIDs = []id.UserID{s.actor}
	}
	return msg
}

func (s *Surface) send(ctx context.Context, msg *event.MessageEventContent) (id.EventID, error) {
	resp, err := retry.Value(ctx, s.retry, func() (*mautrix.RespSendEvent, error) {
		resp, err := s.api.SendMessageEvent(ctx, s.roomID, event.EventMessage, msg)
		return resp, classify(err)
	})
	if err != nil {
		return "", fmt.Errorf("send to %s: %w", s.roomID, err)
	}
	return resp.EventID, nil
}

// classify marks errors that retrying cannot fix as permanent.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mautrix.MForbidden),
		errors.Is(err, mautrix.MUnknownToken),
		errors.Is(err, mautrix.MNotFound),
		errors.Is(err, mautrix.MBadJSON):
		return retry.Permanent(err)
	default:
		return err
	}
}
