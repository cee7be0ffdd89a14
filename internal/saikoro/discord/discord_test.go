package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/bdobrica/Saikoro/common/retry"
	"github.com/bdobrica/Saikoro/internal/saikoro/dice"
	"github.com/bdobrica/Saikoro/internal/saikoro/selection"
	"github.com/bdobrica/Saikoro/internal/saikoro/session"
	"github.com/bdobrica/Saikoro/internal/saikoro/view"
)

// fakeAPI records every call made to Discord.
type fakeAPI struct {
	mu         sync.Mutex
	responses  []*discordgo.InteractionResponse
	edits      []*discordgo.WebhookEdit
	followups  []*discordgo.WebhookParams
	sent       []*discordgo.MessageSend
	deleted    int
	respondErr error
	attempts   int
}

func (f *fakeAPI) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.respondErr != nil {
		return f.respondErr
	}
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeAPI) InteractionResponse(_ *discordgo.Interaction, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{ID: "msg-controls"}, nil
}

func (f *fakeAPI) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit)
	return &discordgo.Message{ID: "msg-controls"}, nil
}

func (f *fakeAPI) InteractionResponseDelete(_ *discordgo.Interaction, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return nil
}

func (f *fakeAPI) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups = append(f.followups, data)
	return &discordgo.Message{ID: "msg-followup"}, nil
}

func (f *fakeAPI) ChannelMessageSendComplex(_ string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", len(f.sent))}, nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func commandInteraction(user, notation string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        "int-1",
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "chan-1",
		GuildID:   "guild-1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: user}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "roll",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{
				Name:  DiceOption,
				Type:  discordgo.ApplicationCommandOptionString,
				Value: notation,
			}},
		},
	}
}

func componentInteraction(user, message, customID string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:      "int-click",
		Type:    discordgo.InteractionMessageComponent,
		User:    &discordgo.User{ID: user},
		Message: &discordgo.Message{ID: message},
		Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
	}
}

func sampleRows() []view.Row {
	rolled := []dice.Die{
		{ID: "a", Sides: 6, Result: 4},
		{ID: "b", Sides: 6, Result: 1},
		{ID: "c", Sides: 8, Result: 5},
	}
	st := selection.New(rolled)
	st.Toggle(selection.NormalEntry("a"))
	st.Toggle(selection.EffectEntry("c"))
	return view.Layout(rolled, st)
}

func testSurface(api *fakeAPI, router *ClickRouter) *Surface {
	s := NewSurface(api, router, commandInteraction("42", "2d6"), "42")
	s.retry = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return s
}

func TestComponents(t *testing.T) {
	comps := Components(sampleRows())
	if len(comps) != 3 {
		t.Fatalf("rows: got %d, want 3", len(comps))
	}
	normal := comps[0].(discordgo.ActionsRow).Components
	if len(normal) != 3 {
		t.Fatalf("normal buttons: %d", len(normal))
	}
	a := normal[0].(discordgo.Button)
	if a.CustomID != "n:a" || a.Label != "4" || a.Style != discordgo.PrimaryButton || a.Disabled {
		t.Errorf("selected normal button: %+v", a)
	}
	b := normal[1].(discordgo.Button)
	if b.Style != discordgo.SecondaryButton || !b.Disabled {
		t.Errorf("hitch button: %+v", b)
	}
	effect := comps[1].(discordgo.ActionsRow).Components[2].(discordgo.Button)
	if effect.Label != "D8" || effect.Style != discordgo.SuccessButton {
		t.Errorf("effect button: %+v", effect)
	}
	ok := comps[2].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	if ok.CustomID != view.ConfirmID || ok.Label != view.ConfirmLabel {
		t.Errorf("confirm button: %+v", ok)
	}
}

func TestApplicationCommand(t *testing.T) {
	cmd := ApplicationCommand("dice")
	if cmd.Name != "dice" || len(cmd.Options) != 1 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if opt := cmd.Options[0]; opt.Name != DiceOption || !opt.Required || opt.Type != discordgo.ApplicationCommandOptionString {
		t.Errorf("unexpected option: %+v", opt)
	}
}

func TestSurface_ReplyWithControlsIsEphemeral(t *testing.T) {
	api := &fakeAPI{}
	router := NewClickRouter(quietLogger())
	s := testSurface(api, router)

	h, err := s.ReplyWithControls(context.Background(), sampleRows())
	if err != nil {
		t.Fatalf("ReplyWithControls: %v", err)
	}
	if h != "msg-controls" {
		t.Errorf("handle: %q", h)
	}
	resp := api.responses[0]
	if resp.Type != discordgo.InteractionResponseChannelMessageWithSource || resp.Data.Flags != discordgo.MessageFlagsEphemeral {
		t.Errorf("response: %+v", resp)
	}
	if len(resp.Data.Components) != 3 {
		t.Errorf("components: %d", len(resp.Data.Components))
	}
	if router.Pending() != 1 {
		t.Errorf("pending: %d", router.Pending())
	}

	// A second direct response is impossible; text goes out as a follow-up.
	if err := s.ReplyText(context.Background(), "later"); err != nil {
		t.Fatalf("ReplyText: %v", err)
	}
	if len(api.followups) != 1 || api.followups[0].Content != "later" {
		t.Errorf("follow-ups: %+v", api.followups)
	}
	if _, err := s.ReplyWithControls(context.Background(), sampleRows()); err == nil {
		t.Error("second ReplyWithControls succeeded")
	}
}

func TestSurface_SendFollowUp(t *testing.T) {
	api := &fakeAPI{}
	s := testSurface(api, nil)

	h, err := s.SendFollowUp(context.Background(), s.UserMention()+" rolled", "msg-notice")
	if err != nil {
		t.Fatalf("SendFollowUp: %v", err)
	}
	if h != "msg-1" {
		t.Errorf("handle: %q", h)
	}
	sent := api.sent[0]
	if sent.Content != "<@42> rolled" {
		t.Errorf("content: %q", sent.Content)
	}
	if sent.Reference == nil || sent.Reference.MessageID != "msg-notice" || sent.Reference.ChannelID != "chan-1" {
		t.Errorf("reference: %+v", sent.Reference)
	}
	if len(sent.AllowedMentions.Users) != 1 || sent.AllowedMentions.Users[0] != "42" {
		t.Errorf("allowed mentions: %+v", sent.AllowedMentions)
	}
}

func TestSurface_UpdateAndDelete(t *testing.T) {
	api := &fakeAPI{}
	router := NewClickRouter(quietLogger())
	s := testSurface(api, router)
	ctx := context.Background()

	h, _ := s.ReplyWithControls(ctx, sampleRows())
	if err := s.UpdateControls(ctx, h, "", sampleRows()); err != nil {
		t.Fatalf("UpdateControls: %v", err)
	}
	if edit := api.edits[0]; edit.Content != nil || edit.Components == nil || len(*edit.Components) != 3 {
		t.Errorf("edit: %+v", edit)
	}
	if err := s.DeleteReply(ctx, h); err != nil {
		t.Fatalf("DeleteReply: %v", err)
	}
	if api.deleted != 1 || router.Pending() != 0 {
		t.Errorf("deleted=%d pending=%d", api.deleted, router.Pending())
	}
}

func TestClickRouter_HandleComponent(t *testing.T) {
	api := &fakeAPI{}
	router := NewClickRouter(quietLogger())
	s := testSurface(api, router)
	ctx := context.Background()

	h, _ := s.ReplyWithControls(ctx, sampleRows())

	if got := router.HandleComponent(api, componentInteraction("42", "msg-other", "n:a")); got != Unknown {
		t.Errorf("unknown message: got %v", got)
	}
	if got := router.HandleComponent(api, componentInteraction("7", string(h), "n:a")); got != Foreign {
		t.Errorf("foreign user: got %v", got)
	}
	// Clicks before the subscription are queued.
	if got := router.HandleComponent(api, componentInteraction("42", string(h), "n:a")); got != Delivered {
		t.Fatalf("own click: got %v", got)
	}

	sub, err := s.SubscribeToClicks(ctx, h, time.Minute)
	if err != nil {
		t.Fatalf("SubscribeToClicks: %v", err)
	}
	defer sub.Stop()

	var c session.Click
	select {
	case c = <-sub.Clicks():
	case <-time.After(time.Second):
		t.Fatal("no click")
	}
	if c.ControlID() != "n:a" {
		t.Errorf("control: %q", c.ControlID())
	}

	before := len(api.responses)
	if err := c.Respond(ctx, "", sampleRows()); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if err := c.Acknowledge(ctx); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if got := api.responses[before].Type; got != discordgo.InteractionResponseUpdateMessage {
		t.Errorf("respond type: %v", got)
	}
	if got := api.responses[before+1].Type; got != discordgo.InteractionResponseDeferredMessageUpdate {
		t.Errorf("acknowledge type: %v", got)
	}
}

func TestClickRouter_WindowCloses(t *testing.T) {
	router := NewClickRouter(quietLogger())
	s := testSurface(&fakeAPI{}, router)
	h, _ := s.ReplyWithControls(context.Background(), sampleRows())

	sub, err := s.SubscribeToClicks(context.Background(), h, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("SubscribeToClicks: %v", err)
	}
	select {
	case _, ok := <-sub.Clicks():
		if ok {
			t.Fatal("unexpected click")
		}
	case <-time.After(time.Second):
		t.Fatal("window did not close")
	}
	if _, err := s.SubscribeToClicks(context.Background(), h, time.Minute); !errors.Is(err, ErrNotWatched) {
		t.Errorf("resubscribe: got %v", err)
	}
}

func TestClient_HandleInteraction(t *testing.T) {
	api := &fakeAPI{}
	c := newClient(api, &Config{CommandName: "roll", Logger: quietLogger()})
	var got []*Invocation
	c.handler = func(_ context.Context, inv *Invocation) { got = append(got, inv) }

	c.handleInteraction(context.Background(), commandInteraction("42", " 2d6 d8 "))
	if len(got) != 1 {
		t.Fatalf("invocations: %d", len(got))
	}
	if got[0].Notation != "2d6 d8" || got[0].Sender != "42" || got[0].ChannelID != "chan-1" || got[0].Surface == nil {
		t.Errorf("invocation: %+v", got[0])
	}

	// Clicks on unknown messages get an ephemeral notice.
	c.handleInteraction(context.Background(), componentInteraction("42", "gone", "ok"))
	if len(api.responses) != 1 || api.responses[0].Data.Content != MsgExpired {
		t.Errorf("responses: %+v", api.responses)
	}
}

func TestClassify(t *testing.T) {
	rest := func(code int) error {
		return &discordgo.RESTError{Response: &http.Response{StatusCode: code}}
	}
	tests := []struct {
		err       error
		permanent bool
	}{
		{rest(http.StatusForbidden), true},
		{rest(http.StatusNotFound), true},
		{rest(http.StatusTooManyRequests), false},
		{rest(http.StatusBadGateway), false},
		{errors.New("eof"), false},
	}
	for _, tt := range tests {
		if got := retry.IsPermanent(classify(tt.err)); got != tt.permanent {
			t.Errorf("classify(%v) permanent = %v, want %v", tt.err, got, tt.permanent)
		}
	}
}

func TestSurface_PermanentErrorNotRetried(t *testing.T) {
	api := &fakeAPI{respondErr: &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}}
	s := testSurface(api, nil)
	if err := s.ReplyText(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if api.attempts != 1 {
		t.Errorf("attempts: got %d, want 1", api.attempts)
	}
}
