package delivery

import "sync"

// Process-wide registries, populated at startup and read-only thereafter.
var (
	registryMu   sync.RWMutex
	messageTypes = map[string]*MessageType{}
	messengers   = map[string]Messenger{}
)

// RegisterMessageTypes adds message type configurations to the registry.
// Re-registering an alias replaces the previous entry.
func RegisterMessageTypes(types ...*MessageType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, mt := range types {
		messageTypes[mt.Alias] = mt
	}
}

// RegisterMessengers adds messenger backends to the registry.
// Re-registering an alias replaces the previous entry.
func RegisterMessengers(ms ...Messenger) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, m := range ms {
		messengers[m.Alias()] = m
	}
}

// MessageTypeByAlias looks up a registered message type.
func MessageTypeByAlias(alias string) (*MessageType, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	mt, ok := messageTypes[alias]
	if !ok {
		return nil, &UnknownMessageTypeError{Alias: alias}
	}
	return mt, nil
}

// MessengerByAlias looks up a registered messenger backend.
func MessengerByAlias(alias string) (Messenger, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	m, ok := messengers[alias]
	if !ok {
		return nil, &UnknownMessengerError{Alias: alias}
	}
	return m, nil
}

// RegisteredMessageTypes returns a copy of the message type registry.
func RegisteredMessageTypes() map[string]*MessageType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make(map[string]*MessageType, len(messageTypes))
	for alias, mt := range messageTypes {
		out[alias] = mt
	}
	return out
}

// RegisteredMessengers returns a copy of the messenger registry.
func RegisteredMessengers() map[string]Messenger {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make(map[string]Messenger, len(messengers))
	for alias, m := range messengers {
		out[alias] = m
	}
	return out
}
