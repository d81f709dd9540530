package model

import "time"

// AvailabilityStatus is an astrologer's availability.
type AvailabilityStatus string

const (
	AvailabilityOnline  AvailabilityStatus = "online"
	AvailabilityOffline AvailabilityStatus = "offline"
	AvailabilityBusy    AvailabilityStatus = "busy"
)

// Valid reports whether s is a known availability.
func (s AvailabilityStatus) Valid() bool {
	return s == AvailabilityOnline || s == AvailabilityOffline || s == AvailabilityBusy
}

// AstrologerStatus is the persisted availability record of an astrologer.
// PendingCalls is a legacy field kept in the API shape; it is never stored.
type AstrologerStatus struct {
	AstrologerID string             `gorm:"primaryKey;size:100" json:"astrologerId"`
	Status       AvailabilityStatus `gorm:"size:16;not null;default:offline" json:"status"`
	LastSeen     time.Time          `gorm:"not null" json:"lastSeen"`
	PendingCalls []string           `gorm:"-" json:"pendingCalls"`
}

func (AstrologerStatus) TableName() string { return "astrologer_statuses" }

// DefaultStatus is the record synthesized for astrologers that never wrote a status.
func DefaultStatus(astrologerID string, now time.Time) AstrologerStatus {
	return AstrologerStatus{
		AstrologerID: astrologerID,
		Status:       AvailabilityOffline,
		LastSeen:     now,
		PendingCalls: []string{},
	}
}
