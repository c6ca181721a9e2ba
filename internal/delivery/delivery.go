// Package delivery implements the dispatch engine: it expands scheduled
// messages into per-recipient dispatch records, merges grouped messages,
// selects pending dispatches by priority, and drives messenger backends
// through a bounded-failure send lifecycle.
package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/idlesign/sitemessage/internal/models"
)

// SimpleTextKey is the context key holding plain message text.
const SimpleTextKey = "stext_"

// DefaultRetryLimit bounds delivery attempts for message types that do not
// set their own limit.
const DefaultRetryLimit = 3

// StatusSink receives per-dispatch delivery outcomes from a messenger
// during a send. A backend must resolve every dispatch it was handed
// through exactly one of these calls.
type StatusSink interface {
	// MarkSent records a successful delivery.
	MarkSent(d *models.Dispatch)

	// MarkFailed records a delivery failure attributed to the message
	// itself. The dispatch is re-queued until the retry limit is reached,
	// after which it fails permanently.
	MarkFailed(d *models.Dispatch, reason string)

	// MarkError records a transient delivery error. The dispatch becomes
	// eligible for a later pass until the retry limit is reached.
	MarkError(d *models.Dispatch, reason string)
}

// Messenger is the delivery backend contract for one protocol. The engine
// never inspects transport details; it drives backends through warm-up,
// send and cool-down, and reads outcomes back through the StatusSink.
type Messenger interface {
	// Alias returns the registry key for this backend.
	Alias() string

	// Title returns a human readable backend name.
	Title() string

	// AllowUserSubscription reports whether users may subscribe to
	// messages delivered through this backend.
	AllowUserSubscription() bool

	// ResolveAddress normalizes a recipient reference into a deliverable
	// address for this backend.
	ResolveAddress(recipient string) string

	// WarmUp establishes the backend connection.
	WarmUp(ctx context.Context) error

	// Send delivers compiled message bodies for a batch of dispatches,
	// resolving each dispatch through the sink.
	Send(ctx context.Context, mt *MessageType, msg *models.Message, batch []*models.Dispatch, sink StatusSink) error

	// CoolDown releases the backend connection.
	CoolDown(ctx context.Context) error
}

// MergeFunc merges the context of a newly scheduled message into the
// context of an existing grouped message.
type MergeFunc func(old, incoming models.Context) models.Context

// CompileFunc resolves message content into a deliverable body.
type CompileFunc func(msg *models.Message, messengerAlias string, d *models.Dispatch) (string, error)

// MessageType is the immutable configuration for one class of message
// content, supplied at registration time.
type MessageType struct {
	Alias                 string
	Title                 string
	Priority              int
	SendRetryLimit        int      // 0 means DefaultRetryLimit
	GroupMark             string   // non-empty enables anti-flood grouping
	SupportedMessengers   []string // empty means any
	AllowUserSubscription bool
	HasDynamicContext     bool // compile per dispatch instead of per message
	Merge                 MergeFunc
	Compile               CompileFunc
}

func (mt *MessageType) retryLimit() int {
	if mt.SendRetryLimit <= 0 {
		return DefaultRetryLimit
	}
	return mt.SendRetryLimit
}

// Supports reports whether the type allows delivery through the messenger.
func (mt *MessageType) Supports(messenger string) bool {
	if len(mt.SupportedMessengers) == 0 {
		return true
	}
	for _, alias := range mt.SupportedMessengers {
		if alias == messenger {
			return true
		}
	}
	return false
}

// mergeContext applies the type's merge rule, defaulting to shallow key
// overwrite.
func (mt *MessageType) mergeContext(old, incoming models.Context) models.Context {
	if mt.Merge != nil {
		return mt.Merge(old, incoming)
	}
	return MergeOverwrite(old, incoming)
}

// compile applies the type's content resolution, defaulting to the simple
// text context field.
func (mt *MessageType) compile(msg *models.Message, messengerAlias string, d *models.Dispatch) (string, error) {
	if mt.Compile != nil {
		return mt.Compile(msg, messengerAlias, d)
	}
	return CompileSimpleText(msg, messengerAlias, d)
}

// MergeOverwrite is the default context merge rule: shallow key overwrite,
// with the simple text field concatenated instead of replaced.
func MergeOverwrite(old, incoming models.Context) models.Context {
	merged := models.Context{}
	for k, v := range old {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}

	prev, ok := old[SimpleTextKey].(string)
	if ok {
		next, _ := incoming[SimpleTextKey].(string)
		merged[SimpleTextKey] = strings.TrimRight(prev+"\n"+next, "\n")
	}
	return merged
}

// CompileSimpleText resolves message content from the simple text context
// field.
func CompileSimpleText(msg *models.Message, _ string, _ *models.Dispatch) (string, error) {
	text, ok := msg.Context[SimpleTextKey].(string)
	if !ok {
		return "", fmt.Errorf("message %d has no %q context field", msg.ID, SimpleTextKey)
	}
	return text, nil
}

// Recipient pairs a messenger alias with a deliverable address. UserRef
// carries an opaque user identity when the recipient was derived from a
// subscription.
type Recipient struct {
	Messenger string
	UserRef   string
	Address   string
}

// Recipients normalizes raw addresses into Recipient values for the given
// messenger, resolving each address through the backend.
func Recipients(messengerAlias string, addresses ...string) ([]Recipient, error) {
	m, err := MessengerByAlias(messengerAlias)
	if err != nil {
		return nil, err
	}

	out := make([]Recipient, 0, len(addresses))
	for _, addr := range addresses {
		out = append(out, Recipient{Messenger: messengerAlias, Address: m.ResolveAddress(addr)})
	}
	return out, nil
}
