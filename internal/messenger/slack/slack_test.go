package slack

import (
	"context"
	"errors"
	"strings"
	"testing"

	slackapi "github.com/slack-go/slack"

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

type mockClient struct {
	authErr  error
	postErr  error
	channels []string
}

func (c *mockClient) AuthTestContext(ctx context.Context) (*slackapi.AuthTestResponse, error) {
	if c.authErr != nil {
		return nil, c.authErr
	}
	return &slackapi.AuthTestResponse{UserID: "U123"}, nil
}

func (c *mockClient) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	if c.postErr != nil {
		return "", "", c.postErr
	}
	c.channels = append(c.channels, channelID)
	return channelID, "1234.5678", nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{}); err == nil {
		t.Error("expected error for missing bot token")
	}
	if _, err := New(Opts{Client: &mockClient{}}); err != nil {
		t.Errorf("injected client must not require a token: %v", err)
	}
}

func TestWarmUp(t *testing.T) {
	m, _ := New(Opts{Client: &mockClient{}})
	if err := m.WarmUp(context.Background()); err != nil {
		t.Fatalf("WarmUp: %v", err)
	}

	m, _ = New(Opts{Client: &mockClient{authErr: errors.New("invalid_auth")}})
	if err := m.WarmUp(context.Background()); err == nil {
		t.Fatal("expected auth failure to surface")
	}
}

func TestSend_PostsToChannels(t *testing.T) {
	client := &mockClient{}
	m, _ := New(Opts{Client: client, Channel: "C_DEFAULT"})

	batch := []*models.Dispatch{
		{ID: 1, Address: "C100", MessageCache: "hi"},
		{ID: 2, Address: "", MessageCache: "hi"},
	}
	sink := newRecordSink()

	if err := m.Send(context.Background(), &delivery.MessageType{Alias: "plain"}, &models.Message{}, batch, sink); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sink.sent) != 2 {
		t.Fatalf("sent = %v", sink.sent)
	}
	if client.channels[0] != "C100" || client.channels[1] != "C_DEFAULT" {
		t.Errorf("channels = %v, want explicit then default", client.channels)
	}
}

func TestSend_NoChannelFails(t *testing.T) {
	m, _ := New(Opts{Client: &mockClient{}})

	batch := []*models.Dispatch{{ID: 1, Address: "", MessageCache: "hi"}}
	sink := newRecordSink()

	if err := m.Send(context.Background(), &delivery.MessageType{Alias: "plain"}, &models.Message{}, batch, sink); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, ok := sink.failed[1]; !ok {
		t.Error("dispatch without channel must fail permanently")
	}
}

func TestSend_APIErrorIsTransient(t *testing.T) {
	m, _ := New(Opts{Client: &mockClient{postErr: errors.New("rate_limited")}})

	batch := []*models.Dispatch{{ID: 1, Address: "C100", MessageCache: "hi"}}
	sink := newRecordSink()

	if err := m.Send(context.Background(), &delivery.MessageType{Alias: "plain"}, &models.Message{}, batch, sink); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reason := sink.errs[1]; !strings.Contains(reason, "rate_limited") {
		t.Errorf("error reason = %q", reason)
	}
}

func TestResolveAddress(t *testing.T) {
	m, _ := New(Opts{Client: &mockClient{}})
	if got := m.ResolveAddress(" #general "); got != "general" {
		t.Errorf("resolved = %q", got)
	}
}
