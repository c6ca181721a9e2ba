package models

import "time"

// Subscription records a recipient's delivery preference for one
// (message type, messenger) pair. The model is opt-out: absence of a row
// means "subscribed"; a row with Subscribed=false excludes the recipient
// from subscriber-derived lists. Rows with Subscribed=true double as the
// address book consulted when dispatch creation is deferred.
type Subscription struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	MessageType string `gorm:"size:250;not null;index"`
	Messenger   string `gorm:"size:250;not null;index"`
	UserRef     string `gorm:"size:250;index"`
	Address     string `gorm:"size:250"`
	Subscribed  bool   `gorm:"default:true"`
	TimeCreated time.Time
}

// Recipient returns the user reference if set, the raw address otherwise.
func (s *Subscription) Recipient() string {
	if s.UserRef != "" {
		return s.UserRef
	}
	return s.Address
}
