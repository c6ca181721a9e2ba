package models

import (
	"testing"
	"time"
)

func TestContext_ValueScanRoundTrip(t *testing.T) {
	ctx := Context{"stext_": "hello", "count": float64(3)}

	raw, err := ctx.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var got Context
	if err := got.Scan(raw); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got["stext_"] != "hello" {
		t.Errorf(`got["stext_"] = %v, want "hello"`, got["stext_"])
	}
	if got["count"] != float64(3) {
		t.Errorf(`got["count"] = %v, want 3`, got["count"])
	}
}

func TestContext_ScanNil(t *testing.T) {
	var got Context
	if err := got.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if got == nil {
		t.Fatal("expected empty map, got nil")
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestContext_ScanBadType(t *testing.T) {
	var got Context
	if err := got.Scan(42); err == nil {
		t.Fatal("expected error for unsupported scan type")
	}
}

func TestDispatch_StatusLabel(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{DispatchStatusPending, "pending"},
		{DispatchStatusSent, "sent"},
		{DispatchStatusError, "error"},
		{DispatchStatusFailed, "failed"},
		{DispatchStatusProcessing, "processing"},
		{99, "unknown"},
	}
	for _, tc := range cases {
		d := Dispatch{DispatchStatus: tc.status}
		if got := d.StatusLabel(); got != tc.want {
			t.Errorf("StatusLabel(%d) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestDispatch_Terminal(t *testing.T) {
	for _, status := range []int{DispatchStatusSent, DispatchStatusFailed} {
		d := Dispatch{DispatchStatus: status}
		if !d.Terminal() {
			t.Errorf("Terminal() = false for status %d", status)
		}
	}
	for _, status := range []int{DispatchStatusPending, DispatchStatusError, DispatchStatusProcessing} {
		d := Dispatch{DispatchStatus: status}
		if d.Terminal() {
			t.Errorf("Terminal() = true for status %d", status)
		}
	}
}

func TestDispatch_IsRead(t *testing.T) {
	d := Dispatch{ReadStatus: ReadStatusUnread}
	if d.IsRead() {
		t.Error("unread dispatch reported read")
	}
	d.ReadStatus = ReadStatusRead
	if !d.IsRead() {
		t.Error("read dispatch reported unread")
	}
}

func TestSubscription_Recipient(t *testing.T) {
	s := Subscription{UserRef: "u1", Address: "a@b"}
	if got := s.Recipient(); got != "u1" {
		t.Errorf("Recipient() = %q, want %q", got, "u1")
	}
	s.UserRef = ""
	if got := s.Recipient(); got != "a@b" {
		t.Errorf("Recipient() = %q, want %q", got, "a@b")
	}
}

func TestDispatch_String(t *testing.T) {
	d := Dispatch{Address: "user@example.com", Messenger: "smtp", TimeCreated: time.Now()}
	if got := d.String(); got != "user@example.com [smtp]" {
		t.Errorf("String() = %q", got)
	}
}
