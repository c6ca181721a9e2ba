package subscription

import (
	"errors"
	"testing"

	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Message{},
		&models.Dispatch{},
		&models.DispatchError{},
		&models.Subscription{},
	); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

// Aliases are unique per test: the registries are process wide.
func register(t *testing.T, typeAlias, messengerAlias string) *delivery.MockMessenger {
	t.Helper()
	delivery.RegisterMessageTypes(&delivery.MessageType{
		Alias:                 typeAlias,
		Title:                 "Notification",
		AllowUserSubscription: true,
	})
	m := &delivery.MockMessenger{AliasName: messengerAlias, Subscribable: true}
	delivery.RegisterMessengers(m)
	return m
}

func TestSubscribe_UnknownAliases(t *testing.T) {
	db := openTestDB(t)

	err := Subscribe(db, "u1", "a", "sub_ghost_type", "sub_ghost_messenger")
	if !errors.Is(err, delivery.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration match", err)
	}
}

func TestUnsubscribe_OptOut(t *testing.T) {
	register(t, "news_a", "mock_a")
	db := openTestDB(t)

	// Absence of any record reads as subscribed.
	out, err := IsUnsubscribed(db, "u1", "news_a", "mock_a")
	if err != nil {
		t.Fatalf("IsUnsubscribed: %v", err)
	}
	if out {
		t.Error("no record must read as subscribed")
	}

	if err := Unsubscribe(db, "u1", "news_a", "mock_a"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	out, err = IsUnsubscribed(db, "u1", "news_a", "mock_a")
	if err != nil {
		t.Fatalf("IsUnsubscribed: %v", err)
	}
	if !out {
		t.Error("opt-out record not honored")
	}

	// Re-subscribing flips the same record back.
	if err := Subscribe(db, "u1", "addr1", "news_a", "mock_a"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	out, _ = IsUnsubscribed(db, "u1", "news_a", "mock_a")
	if out {
		t.Error("re-subscribe not honored")
	}

	var count int64
	db.Model(&models.Subscription{}).Count(&count)
	if count != 1 {
		t.Errorf("subscription rows = %d, want a single upserted record", count)
	}
}

func TestSubscribers(t *testing.T) {
	register(t, "news_b", "mock_b")
	delivery.RegisterMessengers(&delivery.MockMessenger{AliasName: "mock_b_closed", Subscribable: false})
	db := openTestDB(t)

	if err := Subscribe(db, "u1", "addr1", "news_b", "mock_b"); err != nil {
		t.Fatalf("subscribe u1: %v", err)
	}
	// Address left empty: resolved from the user reference.
	if err := Subscribe(db, " u2 ", "", "news_b", "mock_b"); err != nil {
		t.Fatalf("subscribe u2: %v", err)
	}
	if err := Subscribe(db, "u3", "addr3", "news_b", "mock_b_closed"); err != nil {
		t.Fatalf("subscribe u3: %v", err)
	}
	if err := Unsubscribe(db, "u1", "news_b", "mock_b"); err != nil {
		t.Fatalf("unsubscribe u1: %v", err)
	}

	out, err := Subscribers(db, "news_b")
	if err != nil {
		t.Fatalf("Subscribers: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("subscribers = %#v, want only u2", out)
	}
	if out[0].UserRef != " u2 " || out[0].Address != "u2" {
		t.Errorf("recipient = %#v, want address resolved from user ref", out[0])
	}
}

func TestSubscribers_UnknownType(t *testing.T) {
	db := openTestDB(t)

	_, err := Subscribers(db, "sub_ghost_type")
	var unknown *delivery.UnknownMessageTypeError
	if !errors.As(err, &unknown) {
		t.Errorf("err = %v, want UnknownMessageTypeError", err)
	}
}

func TestPrepareDispatches(t *testing.T) {
	register(t, "news_c", "mock_c")
	db := openTestDB(t)

	if err := Subscribe(db, "u1", "addr1", "news_c", "mock_c"); err != nil {
		t.Fatalf("subscribe u1: %v", err)
	}
	if err := Subscribe(db, "u2", "addr2", "news_c", "mock_c"); err != nil {
		t.Fatalf("subscribe u2: %v", err)
	}
	if err := Unsubscribe(db, "u2", "news_c", "mock_c"); err != nil {
		t.Fatalf("unsubscribe u2: %v", err)
	}

	// Scheduled without recipients: expansion deferred to preparation.
	scheduled, err := delivery.Schedule(db, "news_c", models.Context{delivery.SimpleTextKey: "hi"}, delivery.ScheduleOpts{})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	created, err := PrepareDispatches(db)
	if err != nil {
		t.Fatalf("PrepareDispatches: %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want only the remaining subscriber", created)
	}

	var dispatches []models.Dispatch
	db.Where("message_id = ?", scheduled.Message.ID).Find(&dispatches)
	if len(dispatches) != 1 || dispatches[0].Address != "addr1" {
		t.Errorf("dispatches = %#v, want one for addr1", dispatches)
	}

	var msg models.Message
	db.First(&msg, scheduled.Message.ID)
	if !msg.DispatchesReady {
		t.Error("prepared message must be marked ready")
	}

	// A second run finds nothing left to prepare.
	created, err = PrepareDispatches(db)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
}

func TestPrepareDispatches_UnknownTypeLeft(t *testing.T) {
	register(t, "news_d", "mock_d")
	db := openTestDB(t)

	// A message of a type no longer registered stays untouched.
	db.Create(&models.Message{UUID: "u-ghost", Cls: "sub_ghost_type", Context: models.Context{}})

	created, err := PrepareDispatches(db)
	if err != nil {
		t.Fatalf("PrepareDispatches: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	register(t, "news_e", "mock_e")
	db := openTestDB(t)

	only := func(prefs []Preference) []Preference {
		var out []Preference
		for _, p := range prefs {
			if p.MessageType == "news_e" && p.Messenger == "mock_e" {
				out = append(out, p)
			}
		}
		return out
	}

	prefs, err := PreferencesFor(db, "u1")
	if err != nil {
		t.Fatalf("PreferencesFor: %v", err)
	}
	mine := only(prefs)
	if len(mine) != 1 || !mine[0].Subscribed {
		t.Fatalf("prefs = %#v, want the pair defaulting to subscribed", mine)
	}

	mine[0].Subscribed = false
	if err := SetPreferences(db, "u1", mine); err != nil {
		t.Fatalf("SetPreferences: %v", err)
	}

	prefs, err = PreferencesFor(db, "u1")
	if err != nil {
		t.Fatalf("PreferencesFor: %v", err)
	}
	mine = only(prefs)
	if len(mine) != 1 || mine[0].Subscribed {
		t.Errorf("prefs = %#v, want opt-out reflected", mine)
	}

	// Another user still reads as subscribed.
	prefs, err = PreferencesFor(db, "u2")
	if err != nil {
		t.Fatalf("PreferencesFor u2: %v", err)
	}
	mine = only(prefs)
	if len(mine) != 1 || !mine[0].Subscribed {
		t.Errorf("prefs = %#v, opt-out must not leak across users", mine)
	}
}

func TestSetPreferences_IgnoresUnknownPairs(t *testing.T) {
	register(t, "news_f", "mock_f")
	db := openTestDB(t)

	err := SetPreferences(db, "u1", []Preference{
		{MessageType: "sub_ghost_type", Messenger: "mock_f", Subscribed: false},
		{MessageType: "news_f", Messenger: "mock_f", Subscribed: false},
	})
	if err != nil {
		t.Fatalf("SetPreferences: %v", err)
	}

	var count int64
	db.Model(&models.Subscription{}).Count(&count)
	if count != 1 {
		t.Errorf("rows = %d, want the unknown pair ignored", count)
	}
}
