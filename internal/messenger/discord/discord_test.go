package discord

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/models"
)

type recordSink struct {
	sent   []uint
	failed map[uint]string
	errs   map[uint]string
}

func newRecordSink() *recordSink {
	return &recordSink{failed: map[uint]string{}, errs: map[uint]string{}}
}

func (s *recordSink) MarkSent(d *models.Dispatch) { s.sent = append(s.sent, d.ID) }
func (s *recordSink) MarkFailed(d *models.Dispatch, reason string) {
	s.failed[d.ID] = reason
}
func (s *recordSink) MarkError(d *models.Dispatch, reason string) {
	s.errs[d.ID] = reason
}

type mockSession struct {
	openErr error
	sendErr error
	opened  int
	closed  int
	sent    []string // "channel: content"
}

func (s *mockSession) Open() error {
	if s.openErr != nil {
		return s.openErr
	}
	s.opened++
	return nil
}

func (s *mockSession) Close() error {
	s.closed++
	return nil
}

func (s *mockSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.sent = append(s.sent, channelID+": "+content)
	return &discordgo.Message{}, nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{}); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := New(Opts{Session: &mockSession{}}); err != nil {
		t.Errorf("injected session must not require a token: %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	sess := &mockSession{}
	m, _ := New(Opts{Session: sess, Channel: "C_DEFAULT"})

	if err := m.WarmUp(context.Background()); err != nil {
		t.Fatalf("WarmUp: %v", err)
	}

	batch := []*models.Dispatch{
		{ID: 1, Address: "C100", MessageCache: "hi"},
		{ID: 2, Address: "", MessageCache: "hi"},
	}
	sink := newRecordSink()
	if err := m.Send(context.Background(), &delivery.MessageType{Alias: "plain"}, &models.Message{}, batch, sink); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := m.CoolDown(context.Background()); err != nil {
		t.Fatalf("CoolDown: %v", err)
	}

	if sess.opened != 1 || sess.closed != 1 {
		t.Errorf("opened = %d, closed = %d, want 1 each", sess.opened, sess.closed)
	}
	if len(sink.sent) != 2 {
		t.Fatalf("sent = %v", sink.sent)
	}
	if sess.sent[0] != "C100: hi" || sess.sent[1] != "C_DEFAULT: hi" {
		t.Errorf("sent = %v, want explicit then default channel", sess.sent)
	}
}

func TestWarmUp_GatewayFailure(t *testing.T) {
	m, _ := New(Opts{Session: &mockSession{openErr: errors.New("gateway down")}})
	if err := m.WarmUp(context.Background()); err == nil {
		t.Fatal("expected gateway failure to surface")
	}
}

func TestSend_APIErrorIsTransient(t *testing.T) {
	m, _ := New(Opts{Session: &mockSession{sendErr: errors.New("missing access")}})

	batch := []*models.Dispatch{{ID: 1, Address: "C100", MessageCache: "hi"}}
	sink := newRecordSink()
	if err := m.Send(context.Background(), &delivery.MessageType{Alias: "plain"}, &models.Message{}, batch, sink); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reason := sink.errs[1]; !strings.Contains(reason, "missing access") {
		t.Errorf("error reason = %q", reason)
	}
}

func TestSend_NoChannelFails(t *testing.T) {
	m, _ := New(Opts{Session: &mockSession{}})

	batch := []*models.Dispatch{{ID: 1, Address: "", MessageCache: "hi"}}
	sink := newRecordSink()
	if err := m.Send(context.Background(), &delivery.MessageType{Alias: "plain"}, &models.Message{}, batch, sink); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, ok := sink.failed[1]; !ok {
		t.Error("dispatch without channel must fail permanently")
	}
}
