// Package telegram implements the Telegram Bot API delivery backend.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/models"
)

// api abstracts the telebot methods we use, enabling test mocks.
type api interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Messenger delivers messages to Telegram chats. Dispatch addresses are
// numeric chat identifiers.
type Messenger struct {
	token    string
	bot      api
	injected bool
}

// Opts holds parameters for creating a Telegram Messenger.
type Opts struct {
	Token string

	// For testing: inject a bot instead of connecting to the Bot API.
	Bot api
}

// New creates a Telegram Messenger.
func New(opts Opts) (*Messenger, error) {
	if opts.Bot == nil && opts.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	return &Messenger{token: opts.Token, bot: opts.Bot, injected: opts.Bot != nil}, nil
}

func (m *Messenger) Alias() string { return "telegram" }

func (m *Messenger) Title() string { return "Telegram" }

func (m *Messenger) AllowUserSubscription() bool { return true }

// ResolveAddress normalizes a chat identifier.
func (m *Messenger) ResolveAddress(recipient string) string {
	return strings.TrimSpace(recipient)
}

// WarmUp connects to the Bot API and verifies the token.
func (m *Messenger) WarmUp(ctx context.Context) error {
	if m.bot != nil {
		return nil
	}
	bot, err := tele.NewBot(tele.Settings{Token: m.token})
	if err != nil {
		return fmt.Errorf("telegram: connect: %w", err)
	}
	m.bot = bot
	return nil
}

// Send delivers the compiled body to each dispatch's chat.
func (m *Messenger) Send(ctx context.Context, mt *delivery.MessageType, msg *models.Message, batch []*models.Dispatch, sink delivery.StatusSink) error {
	for _, d := range batch {
		chatID, err := strconv.ParseInt(d.Address, 10, 64)
		if err != nil {
			sink.MarkFailed(d, fmt.Sprintf("telegram: invalid chat id %q", d.Address))
			continue
		}
		if _, err := m.bot.Send(tele.ChatID(chatID), d.MessageCache); err != nil {
			sink.MarkError(d, fmt.Sprintf("telegram: %v", err))
			continue
		}
		sink.MarkSent(d)
	}
	return nil
}

// CoolDown drops the Bot API connection.
func (m *Messenger) CoolDown(ctx context.Context) error {
	if !m.injected {
		m.bot = nil
	}
	return nil
}
