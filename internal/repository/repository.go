// Package repository persists astrologer statuses and call records.
// PostgreSQL (gorm) backs production; the memory store serves local runs and tests.
package repository

import (
	"context"
	"time"

	"github.com/niraliveastro/astro-call-service/internal/model"
)

// CallRepository stores call records keyed by call id.
type CallRepository interface {
	// List returns all calls, or only the astrologer's when astrologerID is set, oldest first.
	List(ctx context.Context, astrologerID string) ([]model.Call, error)
	ListFiltered(ctx context.Context, filter model.CallFilter) ([]model.Call, error)
	Get(ctx context.Context, id string) (*model.Call, error)
	// Create inserts a call. Queued calls get position = queued count + 1,
	// assigned atomically per astrologer.
	Create(ctx context.Context, call *model.Call) error
	// Save merges the mutable fields of call if its version is current, then bumps the version.
	Save(ctx context.Context, call *model.Call) error
}

// StatusRepository stores astrologer availability keyed by astrologer id.
type StatusRepository interface {
	Get(ctx context.Context, astrologerID string) (*model.AstrologerStatus, error)
	// Upsert writes status and lastSeen only, leaving any other columns intact.
	Upsert(ctx context.Context, astrologerID string, status model.AvailabilityStatus, lastSeen time.Time) error
	List(ctx context.Context) ([]model.AstrologerStatus, error)
}
