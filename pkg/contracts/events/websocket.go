// Package events contains the WebSocket message contracts pushed to the
// terminal UI.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeSyncStatus    MessageType = "sync:status"
	MessageTypeLicenseStatus MessageType = "license:status"
	MessageTypeConnect       MessageType = "connect"
)

// Message is the envelope for every WebSocket frame
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
}

// SyncStatus is emitted at every sync cycle boundary
type SyncStatus struct {
	IsOnline        bool      `json:"is_online"`
	PendingCount    int       `json:"pending_count"`
	DeadLetterCount int       `json:"dead_letter_count"`
	Message         string    `json:"message"`
	CycleAt         time.Time `json:"cycle_at"`
}
