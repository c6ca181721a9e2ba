// Package discord implements the Discord delivery backend.
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/models"
)

// session abstracts the discordgo.Session methods we use, enabling test
// mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Messenger delivers messages to Discord channels. Dispatch addresses are
// channel identifiers; an empty address falls back to the default channel.
type Messenger struct {
	token    string
	channel  string
	sess     session
	injected bool
}

// Opts holds parameters for creating a Discord Messenger.
type Opts struct {
	Token   string // Discord bot token
	Channel string // default channel to post to

	// For testing: inject a mock session instead of the real gateway.
	Session session
}

// New creates a Discord Messenger.
func New(opts Opts) (*Messenger, error) {
	if opts.Session == nil && opts.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	return &Messenger{
		token:    opts.Token,
		channel:  opts.Channel,
		sess:     opts.Session,
		injected: opts.Session != nil,
	}, nil
}

func (m *Messenger) Alias() string { return "discord" }

func (m *Messenger) Title() string { return "Discord" }

func (m *Messenger) AllowUserSubscription() bool { return true }

// ResolveAddress normalizes a channel identifier.
func (m *Messenger) ResolveAddress(recipient string) string {
	return strings.TrimSpace(recipient)
}

// WarmUp opens the gateway connection.
func (m *Messenger) WarmUp(ctx context.Context) error {
	if m.sess == nil {
		s, err := discordgo.New("Bot " + m.token)
		if err != nil {
			return fmt.Errorf("discord: new session: %w", err)
		}
		m.sess = s
	}
	if err := m.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
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
			sink.MarkFailed(d, "discord: no channel for dispatch")
			continue
		}
		if _, err := m.sess.ChannelMessageSend(channel, d.MessageCache); err != nil {
			sink.MarkError(d, fmt.Sprintf("discord: %v", err))
			continue
		}
		sink.MarkSent(d)
	}
	return nil
}

// CoolDown closes the gateway connection.
func (m *Messenger) CoolDown(ctx context.Context) error {
	if err := m.sess.Close(); err != nil {
		return fmt.Errorf("discord: close gateway: %w", err)
	}
	if !m.injected {
		m.sess = nil
	}
	return nil
}
