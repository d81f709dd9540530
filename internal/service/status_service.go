package service

import (
	"context"
	"errors"
	"time"

	"github.com/niraliveastro/astro-call-service/internal/errs"
	"github.com/niraliveastro/astro-call-service/internal/kafka"
	"github.com/niraliveastro/astro-call-service/internal/model"
	"github.com/niraliveastro/astro-call-service/internal/repository"
	"go.uber.org/zap"
)

// StatusServicer is what handlers need from the astrologer status store.
type StatusServicer interface {
	Get(ctx context.Context, astrologerID string) model.AstrologerStatus
	Set(ctx context.Context, astrologerID string, status model.AvailabilityStatus) error
	ListAll(ctx context.Context) []model.AstrologerStatus
}

// StatusService manages astrologer availability.
type StatusService struct {
	repo     repository.StatusRepository
	notifier Notifier
	producer kafka.CallEventProducer
	log      *zap.Logger
	now      func() time.Time
	onOnline func(ctx context.Context, astrologerID string)
}

// NewStatusService creates a status service. notifier and producer may be nil.
func NewStatusService(repo repository.StatusRepository, notifier Notifier, producer kafka.CallEventProducer, log *zap.Logger) *StatusService {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusService{repo: repo, notifier: notifier, producer: producer, log: log, now: time.Now}
}

// OnOnline registers a hook run after an astrologer successfully goes online.
func (s *StatusService) OnOnline(fn func(ctx context.Context, astrologerID string)) { s.onOnline = fn }

// Get returns the stored status or the offline default. It never fails:
// persistence errors are logged and answered with the default.
func (s *StatusService) Get(ctx context.Context, astrologerID string) model.AstrologerStatus {
	rec, err := s.repo.Get(ctx, astrologerID)
	if err != nil {
		if !errors.Is(err, errs.ErrStatusNotFound) {
			s.log.Error("status lookup failed, using default", zap.String("astrologer_id", astrologerID), zap.Error(err))
		}
		return model.DefaultStatus(astrologerID, s.now().UTC())
	}
	if rec.PendingCalls == nil {
		rec.PendingCalls = []string{}
	}
	return *rec
}

// Set merges {status, lastSeen: now} into the astrologer's record and tells
// global listeners about the change.
func (s *StatusService) Set(ctx context.Context, astrologerID string, status model.AvailabilityStatus) error {
	now := s.now().UTC()
	if err := s.repo.Upsert(ctx, astrologerID, status, now); err != nil {
		s.log.Error("status write failed", zap.String("astrologer_id", astrologerID), zap.Error(err))
		return err
	}

	if s.notifier != nil {
		n := s.notifier.NotifyGlobal(ctx, model.Event{
			Type:         model.EventAstrologerStatusUpdated,
			AstrologerID: astrologerID,
			Status:       status,
		})
		s.log.Debug("status broadcast", zap.String("astrologer_id", astrologerID), zap.Int("delivered", n))
	}
	if s.producer != nil {
		s.producer.ProduceCallEvent(ctx, kafka.EventAstrologerStatus, astrologerID, map[string]interface{}{
			"astrologer_id": astrologerID,
			"status":        string(status),
			"last_seen":     now,
		})
	}
	if status == model.AvailabilityOnline && s.onOnline != nil {
		s.onOnline(ctx, astrologerID)
	}
	return nil
}

// ListAll returns every stored status, or an empty list when the store fails.
func (s *StatusService) ListAll(ctx context.Context) []model.AstrologerStatus {
	items, err := s.repo.List(ctx)
	if err != nil {
		s.log.Error("status list failed", zap.Error(err))
		return []model.AstrologerStatus{}
	}
	return items
}
