// Package slack implements the Slack Web API delivery backend.
package slack

import (
	"context"
	"fmt"
	"strings"

	slackapi "github.com/slack-go/slack"

	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/models"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTestContext(ctx context.Context) (*slackapi.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Messenger delivers messages to Slack channels. Dispatch addresses are
// channel identifiers; an empty address falls back to the default channel.
type Messenger struct {
	botToken string
	channel  string
	client   slackClient
}

// Opts holds parameters for creating a Slack Messenger.
type Opts struct {
	BotToken string // xoxb-... bot token
	Channel  string // default channel to post to

	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// New creates a Slack Messenger.
func New(opts Opts) (*Messenger, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	m := &Messenger{botToken: opts.BotToken, channel: opts.Channel, client: opts.Client}
	if m.client == nil {
		m.client = slackapi.New(opts.BotToken)
	}
	return m, nil
}

func (m *Messenger) Alias() string { return "slack" }

func (m *Messenger) Title() string { return "Slack" }

func (m *Messenger) AllowUserSubscription() bool { return true }

// ResolveAddress normalizes a channel reference, stripping a leading '#'.
func (m *Messenger) ResolveAddress(recipient string) string {
	return strings.TrimPrefix(strings.TrimSpace(recipient), "#")
}

// WarmUp verifies the token against the Web API.
func (m *Messenger) WarmUp(ctx context.Context) error {
	if _, err := m.client.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	return nil
}

// Send posts the compiled body to each dispatch's channel.
func (m *Messenger) Send(ctx context.Context, mt *delivery.MessageType, msg *models.Message, batch []*models.Dispatch, sink delivery.StatusSink) error {
	for _, d := range batch {
		channel := d.Address
		if channel == "" {
			channel = m.channel
		}
		if channel == "" {
			sink.MarkFailed(d, "slack: no channel for dispatch")
			continue
		}
		_, _, err := m.client.PostMessageContext(ctx, channel, slackapi.MsgOptionText(d.MessageCache, false))
		if err != nil {
			sink.MarkError(d, fmt.Sprintf("slack: %v", err))
			continue
		}
		sink.MarkSent(d)
	}
	return nil
}

// CoolDown is a no-op: the Web API client is stateless.
func (m *Messenger) CoolDown(ctx context.Context) error { return nil }
