package model

import (
	"fmt"
	"time"
)

// CallStatus is the lifecycle state of a call request.
type CallStatus string

const (
	CallStatusQueued    CallStatus = "queued"
	CallStatusPending   CallStatus = "pending"
	CallStatusActive    CallStatus = "active"
	CallStatusCompleted CallStatus = "completed"
	CallStatusRejected  CallStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusQueued, CallStatusPending, CallStatusActive, CallStatusCompleted, CallStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s CallStatus) Terminal() bool {
	return s == CallStatusCompleted || s == CallStatusRejected
}

// Live reports whether the astrologer is engaged by a call in this state.
func (s CallStatus) Live() bool {
	return s == CallStatusPending || s == CallStatusActive
}

// transitions lists the targets reachable by an explicit status update.
// queued -> pending is reserved for queue promotion; a queued call can only be withdrawn.
var transitions = map[CallStatus][]CallStatus{
	CallStatusQueued:  {CallStatusRejected},
	CallStatusPending: {CallStatusActive, CallStatusCompleted, CallStatusRejected},
	CallStatusActive:  {CallStatusCompleted, CallStatusRejected},
}

// CanTransition reports whether a client may move a call from one status to another.
// Re-applying the current status is accepted as a no-op.
func CanTransition(from, to CallStatus) bool {
	if from == to {
		return true
	}
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// CallType is the media kind of a call.
type CallType string

const (
	CallTypeVideo CallType = "video"
	CallTypeVoice CallType = "voice"
)

// Valid reports whether t is a supported call type.
func (t CallType) Valid() bool {
	return t == CallTypeVideo || t == CallTypeVoice
}

// Call is a call request from a user to an astrologer (GORM entity and API view).
type Call struct {
	ID           string     `gorm:"primaryKey;size:100" json:"id"`
	AstrologerID string     `gorm:"size:100;not null;index:idx_calls_astrologer_status" json:"astrologerId"`
	UserID       string     `gorm:"size:100;not null;index" json:"userId"`
	CallType     CallType   `gorm:"size:16;not null;default:video" json:"callType"`
	Status       CallStatus `gorm:"size:20;not null;index:idx_calls_astrologer_status" json:"status"`
	RoomName     string     `gorm:"size:255" json:"roomName,omitempty"`
	Position     *int       `gorm:"column:position" json:"position"`
	CreatedAt    time.Time  `gorm:"not null;index" json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	Version      int64      `gorm:"not null;default:1" json:"version"`
}

func (Call) TableName() string { return "calls" }

// Validate checks the position invariant: position is set iff the call is queued.
func (c *Call) Validate() error {
	queued := c.Status == CallStatusQueued
	if queued && c.Position == nil {
		return fmt.Errorf("call %s: queued without position", c.ID)
	}
	if !queued && c.Position != nil {
		return fmt.Errorf("call %s: status %s with position %d", c.ID, c.Status, *c.Position)
	}
	return nil
}

// Clone returns a copy that does not share the position pointer.
func (c Call) Clone() Call {
	if c.Position != nil {
		p := *c.Position
		c.Position = &p
	}
	return c
}

// IntPtr is a small helper for optional positions.
func IntPtr(v int) *int { return &v }

// CallFilter narrows admin call listings. Zero values mean "no filter".
type CallFilter struct {
	AstrologerID string
	UserID       string
	Status       CallStatus
	From         time.Time
	To           time.Time
	Limit        int
	NewestFirst  bool
}
