package delivery

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks configuration problems: unknown aliases and
// type/messenger mismatches. Match with errors.Is.
var ErrConfiguration = errors.New("configuration error")

// UnknownMessengerError is returned on a lookup for an unregistered
// messenger alias.
type UnknownMessengerError struct {
	Alias string
}

func (e *UnknownMessengerError) Error() string {
	return fmt.Sprintf("delivery: unknown messenger %q", e.Alias)
}

func (e *UnknownMessengerError) Is(target error) bool {
	return target == ErrConfiguration
}

// UnknownMessageTypeError is returned on a lookup for an unregistered
// message type alias.
type UnknownMessageTypeError struct {
	Alias string
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("delivery: unknown message type %q", e.Alias)
}

func (e *UnknownMessageTypeError) Is(target error) bool {
	return target == ErrConfiguration
}

// UnsupportedMessengerError is returned when a message type disallows the
// requested messenger.
type UnsupportedMessengerError struct {
	MessageType string
	Messenger   string
}

func (e *UnsupportedMessengerError) Error() string {
	return fmt.Sprintf("delivery: message type %q does not support messenger %q", e.MessageType, e.Messenger)
}

func (e *UnsupportedMessengerError) Is(target error) bool {
	return target == ErrConfiguration
}
