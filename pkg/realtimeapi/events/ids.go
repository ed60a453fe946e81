package events

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// hexID returns the first n hex characters of a fresh UUID.
func hexID(n int) string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:n]
}

// NewEventID generates a server event id ("event_" + 20 hex chars).
func NewEventID() string {
	return "event_" + hexID(20)
}

// NewSessionID generates a session id ("sess_" + 16 hex chars).
func NewSessionID() string {
	return "sess_" + hexID(16)
}

// NewItemID generates a conversation item id ("item_" + 20 hex chars).
func NewItemID() string {
	return "item_" + hexID(20)
}
