package model

import "time"

// EventType names a server-push frame.
type EventType string

const (
	EventConnected               EventType = "connected"
	EventHeartbeat               EventType = "heartbeat"
	EventNewCall                 EventType = "new-call"
	EventCallStatusUpdated       EventType = "call-status-updated"
	EventNextCall                EventType = "next-call"
	EventAstrologerStatusUpdated EventType = "astrologer-status-updated"
)

// Event is the JSON body of one push frame. Timestamp is always set by the hub at send time.
type Event struct {
	Type         EventType          `json:"type"`
	AstrologerID string             `json:"astrologerId,omitempty"`
	Global       bool               `json:"global,omitempty"`
	Status       AvailabilityStatus `json:"status,omitempty"`
	Call         *Call              `json:"call,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}
