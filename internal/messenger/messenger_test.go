package messenger

import (
	"testing"

	"github.com/idlesign/sitemessage/internal/config"
	"github.com/idlesign/sitemessage/internal/delivery"
)

func TestRegisterConfigured(t *testing.T) {
	cfg, err := config.Parse([]byte(`
messengers:
  smtp:
    host: mail.example.com
    from: noreply@example.com
  telegram:
    token: tg-token
  slack:
    bot_token: xoxb-token
    channel: C_DEFAULT
  discord:
    token: dc-token
  vkontakte:
    access_token: vk-token
    owner_id: "-100"
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	if err := RegisterConfigured(cfg); err != nil {
		t.Fatalf("RegisterConfigured: %v", err)
	}

	for _, alias := range []string{"smtp", "telegram", "slack", "discord", "vkontakte"} {
		if _, err := delivery.MessengerByAlias(alias); err != nil {
			t.Errorf("%s not registered: %v", alias, err)
		}
	}
}

func TestRegisterConfigured_AbsentBlocksSkipped(t *testing.T) {
	cfg, err := config.Parse([]byte(`
messengers:
  smtp:
    host: mail.example.com
    from: noreply@example.com
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if err := RegisterConfigured(cfg); err != nil {
		t.Fatalf("RegisterConfigured: %v", err)
	}

	before := len(delivery.RegisteredMessengers())
	if err := RegisterConfigured(cfg); err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if got := len(delivery.RegisteredMessengers()); got != before {
		t.Errorf("registered = %d, want re-registration to replace, not add", got)
	}
}
