package models

import (
	"time"

	"github.com/google/uuid"
)

// EventLog represents an event log entry
type EventLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	Serial string `json:"serial,omitempty" db:"serial"`

	Type        EventType  `json:"type" db:"type"`
	Level       EventLevel `json:"level" db:"level"`
	Code        string     `json:"code" db:"code"`
	Description string     `json:"description" db:"description"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// EventType represents event types
type EventType string

const (
	// Session events
	EventTypeConnected      EventType = "CONNECTED"
	EventTypeDisconnected   EventType = "DISCONNECTED"
	EventTypeStateChanged   EventType = "STATE_CHANGED"
	EventTypeTimeout        EventType = "TIMEOUT"
	EventTypeProtocolError  EventType = "PROTOCOL_ERROR"
	EventTypeTransformError EventType = "TRANSFORM_ERROR"

	// Operator events
	EventTypeReboot       EventType = "REBOOT"
	EventTypeConfigUpdate EventType = "CONFIG_UPDATE"
	EventTypeAPICall      EventType = "API_CALL"
)

// EventLevel represents event severity levels
type EventLevel string

const (
	EventLevelDebug   EventLevel = "DEBUG"
	EventLevelInfo    EventLevel = "INFO"
	EventLevelWarning EventLevel = "WARNING"
	EventLevelError   EventLevel = "ERROR"
)
