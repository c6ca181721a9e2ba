// Package config provides YAML-based configuration loading for sitemessage.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level sitemessage configuration, loaded from sitemessage.yaml.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Site       SiteConfig       `yaml:"site"`
	Send       SendConfig       `yaml:"send"`
	Admins     []string         `yaml:"admins"`
	Messengers MessengersConfig `yaml:"messengers"`
}

// DatabaseConfig holds dispatch store connection settings.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// SiteConfig holds settings for tracking URL generation and the web server.
type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
	SignKey string `yaml:"sign_key"`
	Port    int    `yaml:"port"`
}

// SendConfig holds send-loop settings.
type SendConfig struct {
	Cron string `yaml:"cron"`
}

// MessengersConfig holds per-backend credentials. A backend is registered
// only when its block is present.
type MessengersConfig struct {
	SMTP      *SMTPConfig      `yaml:"smtp"`
	Telegram  *TelegramConfig  `yaml:"telegram"`
	Slack     *SlackConfig     `yaml:"slack"`
	Discord   *DiscordConfig   `yaml:"discord"`
	VKontakte *VKontakteConfig `yaml:"vkontakte"`
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	UseTLS   bool   `yaml:"use_tls"`
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	Token string `yaml:"token"`
}

// SlackConfig holds Slack Web API settings.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// VKontakteConfig holds VK API settings.
type VKontakteConfig struct {
	AccessToken string `yaml:"access_token"`
	OwnerID     string `yaml:"owner_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "sitemessage.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "sitemessage"
		}
	}
	if c.Site.Port == 0 {
		c.Site.Port = 8080
	}
	if c.Send.Cron == "" {
		c.Send.Cron = "*/5 * * * *"
	}
	if c.Messengers.SMTP != nil && c.Messengers.SMTP.Port == 0 {
		c.Messengers.SMTP.Port = 25
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}

	if smtp := c.Messengers.SMTP; smtp != nil {
		if smtp.Host == "" {
			return fmt.Errorf("config: messengers.smtp.host is required")
		}
		if smtp.From == "" {
			return fmt.Errorf("config: messengers.smtp.from is required")
		}
	}
	if tg := c.Messengers.Telegram; tg != nil && tg.Token == "" {
		return fmt.Errorf("config: messengers.telegram.token is required")
	}
	if sl := c.Messengers.Slack; sl != nil && sl.BotToken == "" {
		return fmt.Errorf("config: messengers.slack.bot_token is required")
	}
	if dc := c.Messengers.Discord; dc != nil && dc.Token == "" {
		return fmt.Errorf("config: messengers.discord.token is required")
	}
	if vk := c.Messengers.VKontakte; vk != nil && vk.AccessToken == "" {
		return fmt.Errorf("config: messengers.vkontakte.access_token is required")
	}
	return nil
}
