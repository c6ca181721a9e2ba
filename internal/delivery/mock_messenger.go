package delivery

import (
	"context"
	"strings"
	"sync"

	"github.com/idlesign/sitemessage/internal/models"
)

// MockMessenger implements Messenger for testing. It records warm-up and
// cool-down calls and sent bodies, and can be configured to fail, panic or
// leave dispatches unresolved.
type MockMessenger struct {
	AliasName    string
	Subscribable bool

	WarmUpErr   error // returned from WarmUp
	SendErr     error // returned from Send before marking anything
	PanicOnSend bool  // panic inside Send
	LeaveUnmarked bool // return from Send without resolving dispatches

	// Resolve overrides the default per-dispatch behavior of marking
	// every dispatch sent.
	Resolve func(d *models.Dispatch, sink StatusSink)

	mu        sync.Mutex
	warmUps   int
	coolDowns int
	sent      []string
}

// Alias returns the configured alias, defaulting to "mock".
func (m *MockMessenger) Alias() string {
	if m.AliasName == "" {
		return "mock"
	}
	return m.AliasName
}

// Title returns a human readable backend name.
func (m *MockMessenger) Title() string { return "Mock" }

// AllowUserSubscription reports the configured subscription capability.
func (m *MockMessenger) AllowUserSubscription() bool { return m.Subscribable }

// ResolveAddress trims surrounding whitespace.
func (m *MockMessenger) ResolveAddress(recipient string) string {
	return strings.TrimSpace(recipient)
}

// WarmUp counts the call and returns the configured error.
func (m *MockMessenger) WarmUp(ctx context.Context) error {
	m.mu.Lock()
	m.warmUps++
	m.mu.Unlock()
	return m.WarmUpErr
}

// Send resolves each dispatch per configuration, recording sent bodies.
func (m *MockMessenger) Send(ctx context.Context, mt *MessageType, msg *models.Message, batch []*models.Dispatch, sink StatusSink) error {
	if m.PanicOnSend {
		panic("mock messenger exploded")
	}
	if m.SendErr != nil {
		return m.SendErr
	}
	if m.LeaveUnmarked {
		return nil
	}
	for _, d := range batch {
		if m.Resolve != nil {
			m.Resolve(d, sink)
			continue
		}
		m.mu.Lock()
		m.sent = append(m.sent, d.MessageCache)
		m.mu.Unlock()
		sink.MarkSent(d)
	}
	return nil
}

// CoolDown counts the call.
func (m *MockMessenger) CoolDown(ctx context.Context) error {
	m.mu.Lock()
	m.coolDowns++
	m.mu.Unlock()
	return nil
}

// WarmUps returns the number of warm-up calls.
func (m *MockMessenger) WarmUps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warmUps
}

// CoolDowns returns the number of cool-down calls.
func (m *MockMessenger) CoolDowns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coolDowns
}

// SentBodies returns the bodies delivered through the default behavior.
func (m *MockMessenger) SentBodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}
