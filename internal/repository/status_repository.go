package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/niraliveastro/astro-call-service/internal/errs"
	"github.com/niraliveastro/astro-call-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusStore is the PostgreSQL astrologer status repository.
type StatusStore struct {
	db *gorm.DB
}

// NewStatusStore creates a gorm-backed status repository.
func NewStatusStore(db *gorm.DB) *StatusStore {
	return &StatusStore{db: db}
}

func (s *StatusStore) Get(ctx context.Context, astrologerID string) (*model.AstrologerStatus, error) {
	var rec model.AstrologerStatus
	if err := s.db.WithContext(ctx).Where("astrologer_id = ?", astrologerID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrStatusNotFound
		}
		return nil, fmt.Errorf("get status %s: %w", astrologerID, err)
	}
	rec.PendingCalls = []string{}
	return &rec, nil
}

func (s *StatusStore) Upsert(ctx context.Context, astrologerID string, status model.AvailabilityStatus, lastSeen time.Time) error {
	rec := model.AstrologerStatus{AstrologerID: astrologerID, Status: status, LastSeen: lastSeen}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "astrologer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_seen"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert status %s: %w", astrologerID, err)
	}
	return nil
}

func (s *StatusStore) List(ctx context.Context) ([]model.AstrologerStatus, error) {
	var items []model.AstrologerStatus
	if err := s.db.WithContext(ctx).Order("astrologer_id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	for i := range items {
		items[i].PendingCalls = []string{}
	}
	return items, nil
}
