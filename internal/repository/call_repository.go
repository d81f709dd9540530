package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/niraliveastro/astro-call-service/internal/errs"
	"github.com/niraliveastro/astro-call-service/internal/model"
	"gorm.io/gorm"
)

// CallStore is the PostgreSQL call repository.
type CallStore struct {
	db *gorm.DB
}

// NewCallStore creates a gorm-backed call repository.
func NewCallStore(db *gorm.DB) *CallStore {
	return &CallStore{db: db}
}

func (s *CallStore) List(ctx context.Context, astrologerID string) ([]model.Call, error) {
	var items []model.Call
	tx := s.db.WithContext(ctx).Model(&model.Call{})
	if astrologerID != "" {
		tx = tx.Where("astrologer_id = ?", astrologerID)
	}
	if err := tx.Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	return items, nil
}

func (s *CallStore) ListFiltered(ctx context.Context, f model.CallFilter) ([]model.Call, error) {
	var items []model.Call
	tx := s.db.WithContext(ctx).Model(&model.Call{})
	if f.AstrologerID != "" {
		tx = tx.Where("astrologer_id = ?", f.AstrologerID)
	}
	if f.UserID != "" {
		tx = tx.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", string(f.Status))
	}
	if !f.From.IsZero() {
		tx = tx.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		tx = tx.Where("created_at <= ?", f.To)
	}
	if f.NewestFirst {
		tx = tx.Order("created_at DESC")
	} else {
		tx = tx.Order("created_at ASC")
	}
	if f.Limit > 0 {
		tx = tx.Limit(f.Limit)
	}
	if err := tx.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	return items, nil
}

func (s *CallStore) Get(ctx context.Context, id string) (*model.Call, error) {
	var c model.Call
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrCallNotFound
		}
		return nil, fmt.Errorf("get call %s: %w", id, err)
	}
	return &c, nil
}

// Create inserts the call. For queued calls the position is counted and written
// in one transaction holding a per-astrologer advisory lock, so concurrent
// creations for the same astrologer cannot share a position.
func (s *CallStore) Create(ctx context.Context, call *model.Call) error {
	if call.Version == 0 {
		call.Version = 1
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if call.Status != model.CallStatusQueued {
			call.Position = nil
			return tx.Create(call).Error
		}
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", call.AstrologerID).Error; err != nil {
			return fmt.Errorf("lock queue: %w", err)
		}
		var n int64
		if err := tx.Model(&model.Call{}).
			Where("astrologer_id = ? AND status = ?", call.AstrologerID, string(model.CallStatusQueued)).
			Count(&n).Error; err != nil {
			return fmt.Errorf("count queue: %w", err)
		}
		call.Position = model.IntPtr(int(n) + 1)
		return tx.Create(call).Error
	})
	if err != nil {
		return fmt.Errorf("create call %s: %w", call.ID, err)
	}
	return nil
}

// Save updates status, room name, position and call type guarded by the version column.
func (s *CallStore) Save(ctx context.Context, call *model.Call) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&model.Call{}).
		Where("id = ? AND version = ?", call.ID, call.Version).
		Updates(map[string]interface{}{
			"status":     string(call.Status),
			"room_name":  call.RoomName,
			"position":   call.Position,
			"call_type":  string(call.CallType),
			"updated_at": now,
			"version":    gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("save call %s: %w", call.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, call.ID); err != nil {
			return err
		}
		return errs.ErrCallConflict
	}
	call.Version++
	call.UpdatedAt = now
	return nil
}
