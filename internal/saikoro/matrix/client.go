// Package matrix is the Matrix transport: it turns room messages into
// commands and reactions on control messages into clicks.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Saikoro/common/retry"
)

// Config holds Matrix client configuration
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	DeviceID    string
	// AllowedRooms limits the rooms commands are accepted from; empty means
	// every joined room. Listed rooms are joined on start.
	AllowedRooms []string
	// DB persists the sync position. When nil, history is replayed on
	// restart and only the start-time filter keeps old commands out.
	DB     *sql.DB
	Logger *slog.Logger
}

// Message is a command candidate received in an allowed room.
type Message struct {
	RoomID  id.RoomID
	EventID id.EventID
	Sender  id.UserID
	Body    string
	// Surface answers this message.
	Surface *Surface
}

// MessageHandler processes incoming Matrix messages
type MessageHandler func(ctx context.Context, msg *Message)

// Client wraps the Matrix client
type Client struct {
	client     *mautrix.Client
	config     *Config
	router     *ClickRouter
	logger     *slog.Logger
	startedAt  time.Time
	stopCh     chan struct{}
	stopOnce   sync.Once
	msgHandler MessageHandler
}

// New creates a new Matrix client
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	if config.DeviceID != "" {
		client.DeviceID = id.DeviceID(config.DeviceID)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("transport", "matrix")

	if config.DB != nil {
		client.Store = NewSyncStore(config.DB)
	} else {
		logger.Warn("no database for the Matrix sync store; history will replay on restart")
	}

	return &Client{
		client: client,
		config: config,
		router: NewClickRouter(logger),
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Start joins the allowed rooms and begins syncing in the background.
func (c *Client) Start(ctx context.Context, handler MessageHandler) error {
	c.msgHandler = handler
	c.startedAt = time.Now()

	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unexpected syncer type")
	}
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.EventReaction, c.handleReaction)
	syncer.OnEventType(event.EventRedaction, c.handleRedaction)
	syncer.OnEventType(event.StateMember, c.handleMember)

	for _, roomID := range c.config.AllowedRooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", roomID, err)
		}
	}

	go c.syncLoop(ctx)
	return nil
}

// syncLoop keeps syncing with exponential back-off until Stop or ctx ends.
func (c *Client) syncLoop(ctx context.Context) {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		started := time.Now()
		err := c.client.SyncWithContext(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		select {
		case <-c.stopCh:
			return
		default:
		}
		if time.Since(started) > backoffMax {
			backoff = backoffMin
		}
		c.logger.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}

// Stop stops the Matrix client
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.client.StopSync()
	})
}

// UserID returns the bot's own user ID.
func (c *Client) UserID() string { return c.config.UserID }

// PendingControls returns the number of control messages being watched.
func (c *Client) PendingControls() int { return c.router.Pending() }

// SendNotice posts a formatted notice to a room.
func (c *Client) SendNotice(ctx context.Context, roomID, message string) error {
	content := &event.MessageEventContent{
		MsgType:       event.MsgNotice,
		Body:          message,
		Format:        event.FormatHTML,
		FormattedBody: markdownToHTML(message),
	}
	_, err := retry.Value(ctx, retry.DefaultConfig, func() (*mautrix.RespSendEvent, error) {
		resp, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content)
		return resp, classify(err)
	})
	if err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

// IsAllowedRoom reports whether commands are accepted in roomID.
func (c *Client) IsAllowedRoom(roomID id.RoomID) bool {
	return len(c.config.AllowedRooms) == 0 || slices.Contains(c.config.AllowedRooms, roomID.String())
}

// handleMessage processes incoming messages
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if !c.accept(evt) {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText {
		return
	}
	// Edits carry the command text again; only the original runs.
	if msg.RelatesTo != nil && msg.RelatesTo.Type == event.RelReplace {
		return
	}
	if c.msgHandler == nil {
		return
	}
	c.msgHandler(ctx, &Message{
		RoomID:  evt.RoomID,
		EventID: evt.ID,
		Sender:  evt.Sender,
		Body:    msg.Body,
		Surface: NewSurface(c.client, c.router, evt.RoomID, evt.ID, evt.Sender, c.logger),
	})
}

func (c *Client) handleReaction(_ context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}
	c.router.HandleReaction(evt)
}

func (c *Client) handleRedaction(_ context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}
	c.router.HandleRedaction(evt)
}

// handleMember accepts invites to allowed rooms.
func (c *Client) handleMember(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != c.config.UserID {
		return
	}
	member := evt.Content.AsMember()
	if member.Membership != event.MembershipInvite || !c.IsAllowedRoom(evt.RoomID) {
		return
	}
	if err := c.joinRoom(ctx, evt.RoomID); err != nil {
		c.logger.Warn("failed to accept invite", "room", evt.RoomID, "inviter", evt.Sender, "err", err)
		return
	}
	c.logger.Info("joined room on invite", "room", evt.RoomID, "inviter", evt.Sender)
}

// accept filters out our own events, events from rooms we do not serve and
// events sent before this process started.
func (c *Client) accept(evt *event.Event) bool {
	if evt.Sender == id.UserID(c.config.UserID) {
		return false
	}
	if !c.IsAllowedRoom(evt.RoomID) {
		return false
	}
	return !time.UnixMilli(evt.Timestamp).Before(c.startedAt)
}

// joinRoom attempts to join a room
func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		// Homeservers answer M_FORBIDDEN when the bot is already a member.
		if errors.Is(err, mautrix.MForbidden) {
			c.logger.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
