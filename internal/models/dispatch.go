package models

import (
	"fmt"
	"time"
)

// Dispatch delivery statuses.
const (
	DispatchStatusPending    = 1
	DispatchStatusSent       = 2
	DispatchStatusError      = 3
	DispatchStatusFailed     = 4
	DispatchStatusProcessing = 5
)

// Dispatch read statuses.
const (
	ReadStatusUnread = 0
	ReadStatusRead   = 1
)

// Dispatch is one obligation to deliver one Message to one recipient
// address via one messenger.
type Dispatch struct {
	ID             uint `gorm:"primaryKey;autoIncrement"`
	MessageID      uint `gorm:"not null;index"`
	Message        Message
	Messenger      string `gorm:"size:250;not null;index"`
	Address        string `gorm:"size:250;not null"`
	RetryCount     int    `gorm:"default:0"`
	MessageCache   string `gorm:"type:text"`
	DispatchStatus int    `gorm:"default:1;index"`
	ReadStatus     int    `gorm:"default:0;index"`
	LastError      string `gorm:"type:text"`
	TimeCreated    time.Time
	TimeDispatched *time.Time
}

func (d *Dispatch) String() string {
	return fmt.Sprintf("%s [%s]", d.Address, d.Messenger)
}

// IsRead reports whether the dispatch has been marked read.
func (d *Dispatch) IsRead() bool {
	return d.ReadStatus == ReadStatusRead
}

// Terminal reports whether the dispatch has reached a final state
// from which it is never selected again.
func (d *Dispatch) Terminal() bool {
	return d.DispatchStatus == DispatchStatusSent || d.DispatchStatus == DispatchStatusFailed
}

// StatusLabel returns a human readable delivery status name.
func (d *Dispatch) StatusLabel() string {
	switch d.DispatchStatus {
	case DispatchStatusPending:
		return "pending"
	case DispatchStatusSent:
		return "sent"
	case DispatchStatusError:
		return "error"
	case DispatchStatusFailed:
		return "failed"
	case DispatchStatusProcessing:
		return "processing"
	}
	return "unknown"
}

// DispatchError is an append-only delivery error log entry.
type DispatchError struct {
	ID          uint `gorm:"primaryKey;autoIncrement"`
	DispatchID  uint `gorm:"not null;index"`
	Error       string `gorm:"type:text"`
	TimeCreated time.Time
}
