package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.Path != "sitemessage.db" {
		t.Errorf("Path = %q", cfg.Database.Path)
	}
	if cfg.Site.Port != 8080 {
		t.Errorf("Site.Port = %d, want 8080", cfg.Site.Port)
	}
	if cfg.Send.Cron != "*/5 * * * *" {
		t.Errorf("Send.Cron = %q", cfg.Send.Cron)
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: mysql\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.Host != "127.0.0.1" {
		t.Errorf("Host = %q", cfg.Database.Host)
	}
	if cfg.Database.Port != 3306 {
		t.Errorf("Port = %d", cfg.Database.Port)
	}
	if cfg.Database.Name != "sitemessage" {
		t.Errorf("Name = %q", cfg.Database.Name)
	}
}

func TestParse_UnknownDriver(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: mongodb\n"))
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if !strings.Contains(err.Error(), "unknown database driver") {
		t.Errorf("error = %v", err)
	}
}

func TestParse_Messengers(t *testing.T) {
	data := []byte(`
messengers:
  smtp:
    host: mail.example.com
    from: robot@example.com
  telegram:
    token: tg-token
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Messengers.SMTP == nil || cfg.Messengers.SMTP.Port != 25 {
		t.Errorf("SMTP = %+v, want default port 25", cfg.Messengers.SMTP)
	}
	if cfg.Messengers.Telegram == nil || cfg.Messengers.Telegram.Token != "tg-token" {
		t.Errorf("Telegram = %+v", cfg.Messengers.Telegram)
	}
	if cfg.Messengers.Slack != nil {
		t.Error("Slack should be nil when block absent")
	}
}

func TestParse_MessengerValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"smtp missing host", "messengers:\n  smtp:\n    from: a@b\n", "smtp.host"},
		{"smtp missing from", "messengers:\n  smtp:\n    host: h\n", "smtp.from"},
		{"telegram missing token", "messengers:\n  telegram: {}\n", "telegram.token"},
		{"slack missing token", "messengers:\n  slack: {}\n", "slack.bot_token"},
		{"discord missing token", "messengers:\n  discord: {}\n", "discord.token"},
		{"vk missing token", "messengers:\n  vkontakte: {}\n", "vkontakte.access_token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(":\nnot yaml"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitemessage.yaml")
	data := "site:\n  base_url: https://example.com\n  sign_key: s3cret\nadmins:\n  - admin@example.com\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Site.BaseURL != "https://example.com" {
		t.Errorf("BaseURL = %q", cfg.Site.BaseURL)
	}
	if len(cfg.Admins) != 1 || cfg.Admins[0] != "admin@example.com" {
		t.Errorf("Admins = %v", cfg.Admins)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
