// Package messenger wires configured delivery backends into the registry.
package messenger

import (
	"fmt"

	"github.com/idlesign/sitemessage/internal/config"
	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/messenger/discord"
	"github.com/idlesign/sitemessage/internal/messenger/slack"
	"github.com/idlesign/sitemessage/internal/messenger/smtp"
	"github.com/idlesign/sitemessage/internal/messenger/telegram"
	"github.com/idlesign/sitemessage/internal/messenger/vkontakte"
)

// RegisterConfigured builds and registers a backend for every messenger
// block present in the configuration.
func RegisterConfigured(cfg *config.Config) error {
	if c := cfg.Messengers.SMTP; c != nil {
		m, err := smtp.New(smtp.Opts{
			Host:     c.Host,
			Port:     c.Port,
			User:     c.User,
			Password: c.Password,
			From:     c.From,
		})
		if err != nil {
			return fmt.Errorf("messenger: %w", err)
		}
		delivery.RegisterMessengers(m)
	}

	if c := cfg.Messengers.Telegram; c != nil {
		m, err := telegram.New(telegram.Opts{Token: c.Token})
		if err != nil {
			return fmt.Errorf("messenger: %w", err)
		}
		delivery.RegisterMessengers(m)
	}

	if c := cfg.Messengers.Slack; c != nil {
		m, err := slack.New(slack.Opts{BotToken: c.BotToken, Channel: c.Channel})
		if err != nil {
			return fmt.Errorf("messenger: %w", err)
		}
		delivery.RegisterMessengers(m)
	}

	if c := cfg.Messengers.Discord; c != nil {
		m, err := discord.New(discord.Opts{Token: c.Token, Channel: c.Channel})
		if err != nil {
			return fmt.Errorf("messenger: %w", err)
		}
		delivery.RegisterMessengers(m)
	}

	if c := cfg.Messengers.VKontakte; c != nil {
		m, err := vkontakte.New(vkontakte.Opts{AccessToken: c.AccessToken, OwnerID: c.OwnerID})
		if err != nil {
			return fmt.Errorf("messenger: %w", err)
		}
		delivery.RegisterMessengers(m)
	}

	return nil
}
