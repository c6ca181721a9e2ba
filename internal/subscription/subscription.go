// Package subscription implements the opt-out subscription store and the
// subscriber-derived recipient resolution used by deferred dispatch
// preparation.
package subscription

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/models"
	"gorm.io/gorm"
)

// Subscribe records a recipient's interest in a (message type, messenger)
// pair, registering the address for subscriber-derived delivery.
func Subscribe(db *gorm.DB, userRef, address, messageType, messenger string) error {
	if err := checkPair(messageType, messenger); err != nil {
		return err
	}
	return upsert(db, userRef, address, messageType, messenger, true)
}

// Unsubscribe records an explicit opt-out for a (message type, messenger)
// pair. Called by the web unsubscribe endpoint.
func Unsubscribe(db *gorm.DB, userRefOrAddress, messageType, messenger string) error {
	return upsert(db, userRefOrAddress, userRefOrAddress, messageType, messenger, false)
}

// IsUnsubscribed reports whether an explicit opt-out record exists.
// Absence of any record means "subscribed".
func IsUnsubscribed(db *gorm.DB, userRefOrAddress, messageType, messenger string) (bool, error) {
	var count int64
	err := db.Model(&models.Subscription{}).
		Where("message_type = ? AND messenger = ? AND subscribed = ?", messageType, messenger, false).
		Where("user_ref = ? OR address = ?", userRefOrAddress, userRefOrAddress).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("subscription: check opt-out: %w", err)
	}
	return count > 0, nil
}

// Subscribers returns recipients subscribed to the given message type,
// excluding opt-outs, messengers that disallow subscription and
// messengers the type does not support.
func Subscribers(db *gorm.DB, messageType string) ([]delivery.Recipient, error) {
	mt, err := delivery.MessageTypeByAlias(messageType)
	if err != nil {
		return nil, err
	}

	var rows []models.Subscription
	err = db.Where("message_type = ? AND subscribed = ?", messageType, true).
		Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("subscription: subscribers for %s: %w", messageType, err)
	}

	var out []delivery.Recipient
	for _, row := range rows {
		m, err := delivery.MessengerByAlias(row.Messenger)
		if err != nil {
			// Stale rows for unregistered messengers are skipped.
			continue
		}
		if !m.AllowUserSubscription() {
			continue
		}
		if !mt.Supports(row.Messenger) {
			continue
		}

		address := row.Address
		if address == "" {
			address = m.ResolveAddress(row.UserRef)
		}
		if address == "" {
			continue
		}
		out = append(out, delivery.Recipient{
			Messenger: row.Messenger,
			UserRef:   row.UserRef,
			Address:   address,
		})
	}
	return out, nil
}

// PrepareDispatches expands every message scheduled without recipients
// using the current subscriber lists. Returns the number of dispatches
// created.
func PrepareDispatches(db *gorm.DB) (int, error) {
	messages, err := delivery.PendingWithoutDispatches(db)
	if err != nil {
		return 0, err
	}

	cache := map[string][]delivery.Recipient{}
	created := 0

	for i := range messages {
		msg := &messages[i]

		recipients, cached := cache[msg.Cls]
		if !cached {
			recipients, err = Subscribers(db, msg.Cls)
			if err != nil {
				var unknown *delivery.UnknownMessageTypeError
				if errors.As(err, &unknown) {
					// Leave messages of unregistered types for a later
					// pass with the type restored.
					cache[msg.Cls] = nil
					continue
				}
				return created, err
			}
			cache[msg.Cls] = recipients
		}
		if len(recipients) == 0 {
			continue
		}

		dispatches, err := delivery.Plan(db, msg, recipients)
		if err != nil {
			return created, err
		}
		created += len(dispatches)
	}
	return created, nil
}

// Preference is one row of a user's subscription preferences table.
type Preference struct {
	MessageType string `json:"message_type"`
	Messenger   string `json:"messenger"`
	Title       string `json:"title"`
	Subscribed  bool   `json:"subscribed"`
}

// PreferencesFor builds the preferences table for a user: every
// subscribable (message type, messenger) combination with the user's
// current choice. Absent records read as subscribed.
func PreferencesFor(db *gorm.DB, userRef string) ([]Preference, error) {
	var rows []models.Subscription
	err := db.Where("user_ref = ? OR address = ?", userRef, userRef).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("subscription: preferences for %s: %w", userRef, err)
	}

	optedOut := map[string]bool{}
	for _, row := range rows {
		if !row.Subscribed {
			optedOut[row.MessageType+"|"+row.Messenger] = true
		}
	}

	var out []Preference
	for typeAlias, mt := range delivery.RegisteredMessageTypes() {
		if !mt.AllowUserSubscription {
			continue
		}
		for messengerAlias, m := range delivery.RegisteredMessengers() {
			if !m.AllowUserSubscription() || !mt.Supports(messengerAlias) {
				continue
			}
			out = append(out, Preference{
				MessageType: typeAlias,
				Messenger:   messengerAlias,
				Title:       mt.Title,
				Subscribed:  !optedOut[typeAlias+"|"+messengerAlias],
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MessageType != out[j].MessageType {
			return out[i].MessageType < out[j].MessageType
		}
		return out[i].Messenger < out[j].Messenger
	})
	return out, nil
}

// SetPreferences applies a submitted preferences table for a user,
// ignoring combinations with unregistered aliases.
func SetPreferences(db *gorm.DB, userRef string, prefs []Preference) error {
	for _, pref := range prefs {
		if err := checkPair(pref.MessageType, pref.Messenger); err != nil {
			continue
		}
		if err := upsert(db, userRef, "", pref.MessageType, pref.Messenger, pref.Subscribed); err != nil {
			return err
		}
	}
	return nil
}

func checkPair(messageType, messenger string) error {
	if _, err := delivery.MessageTypeByAlias(messageType); err != nil {
		return err
	}
	if _, err := delivery.MessengerByAlias(messenger); err != nil {
		return err
	}
	return nil
}

func upsert(db *gorm.DB, userRef, address, messageType, messenger string, subscribed bool) error {
	var existing models.Subscription
	err := db.Where("message_type = ? AND messenger = ?", messageType, messenger).
		Where("user_ref = ? OR (address <> '' AND address = ?)", userRef, address).
		First(&existing).Error

	switch {
	case err == nil:
		updates := map[string]interface{}{"subscribed": subscribed}
		if address != "" && existing.Address == "" {
			updates["address"] = address
		}
		if err := db.Model(&existing).Updates(updates).Error; err != nil {
			return fmt.Errorf("subscription: update %s/%s: %w", messageType, messenger, err)
		}
		return nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		row := models.Subscription{
			MessageType: messageType,
			Messenger:   messenger,
			UserRef:     userRef,
			Address:     address,
			Subscribed:  subscribed,
			TimeCreated: time.Now(),
		}
		if err := db.Create(&row).Error; err != nil {
			return fmt.Errorf("subscription: create %s/%s: %w", messageType, messenger, err)
		}
		return nil

	default:
		return fmt.Errorf("subscription: lookup %s/%s: %w", messageType, messenger, err)
	}
}
