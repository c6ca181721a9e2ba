// Package models defines the GORM entities persisted by sitemessage.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Context holds structured message content used to render a body.
// Stored as a JSON text column.
type Context map[string]interface{}

// Value implements driver.Valuer.
func (c Context) Value() (driver.Value, error) {
	if c == nil {
		c = Context{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("models: marshal context: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (c *Context) Scan(value interface{}) error {
	if value == nil {
		*c = Context{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("models: scan context: unsupported type %T", value)
	}

	if len(data) == 0 {
		*c = Context{}
		return nil
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("models: scan context: %w", err)
	}
	return nil
}

// Message is a scheduled unit of content. Dispatches reference it many-to-one.
type Message struct {
	ID              uint    `gorm:"primaryKey;autoIncrement"`
	UUID            string  `gorm:"size:36;uniqueIndex"`
	Cls             string  `gorm:"size:250;not null;index"`
	GroupMark       string  `gorm:"size:128;index;column:gmark"`
	Context         Context `gorm:"type:text"`
	Sender          string  `gorm:"size:250"`
	Priority        int     `gorm:"default:0;index"`
	DispatchesReady bool    `gorm:"default:false;index"`
	TimeCreated     time.Time
}

func (m *Message) String() string {
	return m.Cls
}
