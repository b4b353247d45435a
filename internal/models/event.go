package models

import (
	"time"

	"github.com/google/uuid"
)

// EventLog represents an event log entry
type EventLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	SessionID *uuid.UUID `json:"sessionId,omitempty" db:"session_id"`

	Type        EventType  `json:"type" db:"type"`
	Level       EventLevel `json:"level" db:"level"`
	Code        string     `json:"code" db:"code"`
	Description string     `json:"description" db:"description"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// EventType represents event types
type EventType string

const (
	// Client session events
	EventTypeClientConnect    EventType = "CLIENT_CONNECT"
	EventTypeClientDisconnect EventType = "CLIENT_DISCONNECT"
	EventTypeAuthSuccess      EventType = "AUTH_SUCCESS"
	EventTypeAuthFailure      EventType = "AUTH_FAILURE"

	// Vehicle link events
	EventTypeVehicleUp   EventType = "VEHICLE_UP"
	EventTypeVehicleDown EventType = "VEHICLE_DOWN"

	// Command events
	EventTypeCommand EventType = "COMMAND"
	EventTypeError   EventType = "ERROR"
)

// EventLevel represents event severity levels
type EventLevel string

const (
	EventLevelDebug   EventLevel = "DEBUG"
	EventLevelInfo    EventLevel = "INFO"
	EventLevelWarning EventLevel = "WARNING"
	EventLevelError   EventLevel = "ERROR"
)
