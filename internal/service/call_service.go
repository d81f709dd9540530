package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/niraliveastro/astro-call-service/internal/errs"
	"github.com/niraliveastro/astro-call-service/internal/kafka"
	"github.com/niraliveastro/astro-call-service/internal/model"
	"github.com/niraliveastro/astro-call-service/internal/queue"
	"github.com/niraliveastro/astro-call-service/internal/repository"
	"go.uber.org/zap"
)

// CallServicer is the call lifecycle API used by handlers and jobs.
type CallServicer interface {
	CreateCall(ctx context.Context, astrologerID, userID string, callType model.CallType) (*model.Call, error)
	UpdateStatus(ctx context.Context, astrologerID, callID string, status model.CallStatus) (*model.Call, error)
	GetQueue(ctx context.Context, astrologerID string) ([]model.Call, error)
	GetCallsForAstrologer(ctx context.Context, astrologerID string) ([]model.Call, error)
	ListCalls(ctx context.Context, filter model.CallFilter) ([]model.Call, error)
	ExpirePending(ctx context.Context, timeout time.Duration) (int, error)
}

// StatusReader answers availability queries; it never fails.
type StatusReader interface {
	Get(ctx context.Context, astrologerID string) model.AstrologerStatus
}

// CallService drives calls through queued -> pending -> active -> completed|rejected.
type CallService struct {
	calls    repository.CallRepository
	statuses StatusReader
	notifier Notifier
	producer kafka.CallEventProducer
	log      *zap.Logger
	now      func() time.Time
}

// NewCallService creates the call lifecycle service. notifier and producer may be nil.
func NewCallService(calls repository.CallRepository, statuses StatusReader, notifier Notifier, producer kafka.CallEventProducer, log *zap.Logger) *CallService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CallService{
		calls:    calls,
		statuses: statuses,
		notifier: notifier,
		producer: producer,
		log:      log,
		now:      time.Now,
	}
}

func newCallID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
	return fmt.Sprintf("call-%d-%s", now.UnixMilli(), suffix)
}

func newRoomName(astrologerID, userID string, now time.Time) string {
	return fmt.Sprintf("astro-%s-%s-%d", astrologerID, userID, now.UnixMilli())
}

// CreateCall creates a pending call when the astrologer is online, otherwise a
// queued call at the back of the astrologer's queue. The room name is always
// allocated up front.
func (s *CallService) CreateCall(ctx context.Context, astrologerID, userID string, callType model.CallType) (*model.Call, error) {
	if callType == "" {
		callType = model.CallTypeVideo
	}
	if !callType.Valid() {
		return nil, errs.ErrInvalidCallType
	}

	status := model.CallStatusQueued
	if st := s.statuses.Get(ctx, astrologerID); st.Status == model.AvailabilityOnline {
		status = model.CallStatusPending
	}

	now := s.now().UTC()
	call := &model.Call{
		ID:           newCallID(now),
		AstrologerID: astrologerID,
		UserID:       userID,
		CallType:     callType,
		Status:       status,
		RoomName:     newRoomName(astrologerID, userID, now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.calls.Create(ctx, call); err != nil {
		s.log.Error("create call failed", zap.String("astrologer_id", astrologerID), zap.Error(err))
		return nil, err
	}
	s.log.Info("call created",
		zap.String("call_id", call.ID),
		zap.String("astrologer_id", astrologerID),
		zap.String("status", string(call.Status)))

	s.notify(ctx, astrologerID, model.EventNewCall, call)
	s.produce(ctx, kafka.EventCallCreated, call, "")
	return call, nil
}

// UpdateStatus applies an explicit status change. Finishing a pending or
// active call promotes the next queued call of the same astrologer.
func (s *CallService) UpdateStatus(ctx context.Context, astrologerID, callID string, status model.CallStatus) (*model.Call, error) {
	if !status.Valid() {
		return nil, errs.ErrInvalidStatus
	}
	call, err := s.calls.Get(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.AstrologerID != astrologerID {
		return nil, errs.ErrCallNotFound
	}
	prev := call.Status
	if !model.CanTransition(prev, status) {
		return nil, fmt.Errorf("%w: %s -> %s", errs.ErrInvalidTransition, prev, status)
	}

	call.Status = status
	if status != model.CallStatusQueued {
		call.Position = nil
	}
	if status == model.CallStatusActive && call.RoomName == "" {
		call.RoomName = newRoomName(call.AstrologerID, call.UserID, s.now().UTC())
	}
	if err := call.Validate(); err != nil {
		return nil, err
	}
	if err := s.calls.Save(ctx, call); err != nil {
		if !errors.Is(err, errs.ErrCallConflict) {
			s.log.Error("save call failed", zap.String("call_id", callID), zap.Error(err))
		}
		return nil, err
	}
	s.log.Info("call status updated",
		zap.String("call_id", callID),
		zap.String("from", string(prev)),
		zap.String("to", string(status)))

	s.notify(ctx, astrologerID, model.EventCallStatusUpdated, call)
	s.produce(ctx, kafka.EventCallStatusUpdated, call, prev)

	switch {
	case prev.Live() && status.Terminal():
		if _, err := s.promoteNext(ctx, astrologerID); err != nil {
			s.log.Error("promote next call failed", zap.String("astrologer_id", astrologerID), zap.Error(err))
		}
	case prev == model.CallStatusQueued && status != prev:
		s.renumber(ctx, astrologerID)
	}
	return call, nil
}

// GetQueue returns the astrologer's queued calls, oldest first.
func (s *CallService) GetQueue(ctx context.Context, astrologerID string) ([]model.Call, error) {
	calls, err := s.calls.List(ctx, astrologerID)
	if err != nil {
		return nil, err
	}
	return queue.Ordered(calls, astrologerID), nil
}

// GetCallsForAstrologer returns the astrologer's full call history.
func (s *CallService) GetCallsForAstrologer(ctx context.Context, astrologerID string) ([]model.Call, error) {
	calls, err := s.calls.List(ctx, astrologerID)
	if err != nil {
		return nil, err
	}
	if calls == nil {
		calls = []model.Call{}
	}
	return calls, nil
}

// ListCalls returns calls matching an admin filter.
func (s *CallService) ListCalls(ctx context.Context, filter model.CallFilter) ([]model.Call, error) {
	calls, err := s.calls.ListFiltered(ctx, filter)
	if err != nil {
		return nil, err
	}
	if calls == nil {
		calls = []model.Call{}
	}
	return calls, nil
}

// PromoteIfIdle promotes the head of the queue unless the astrologer already
// has a pending or active call. Used when an astrologer comes online and after
// pending calls expire.
func (s *CallService) PromoteIfIdle(ctx context.Context, astrologerID string) (*model.Call, error) {
	calls, err := s.calls.List(ctx, astrologerID)
	if err != nil {
		return nil, err
	}
	for _, c := range calls {
		if c.Status.Live() {
			return nil, nil
		}
	}
	return s.promote(ctx, astrologerID, calls)
}

// ExpirePending rejects calls that have been pending longer than timeout and lets each
// affected astrologer's queue move on. It returns the number of expired calls.
func (s *CallService) ExpirePending(ctx context.Context, timeout time.Duration) (int, error) {
	pending, err := s.calls.ListFiltered(ctx, model.CallFilter{Status: model.CallStatusPending})
	if err != nil {
		return 0, err
	}
	cutoff := s.now().UTC().Add(-timeout)
	expired := 0
	touched := make(map[string]struct{})
	for i := range pending {
		call := &pending[i]
		if !call.UpdatedAt.Before(cutoff) {
			continue
		}
		call.Status = model.CallStatusRejected
		if err := s.calls.Save(ctx, call); err != nil {
			// A concurrent update already moved this call on.
			s.log.Warn("expire pending call skipped", zap.String("call_id", call.ID), zap.Error(err))
			continue
		}
		expired++
		touched[call.AstrologerID] = struct{}{}
		s.notify(ctx, call.AstrologerID, model.EventCallStatusUpdated, call)
		s.produce(ctx, kafka.EventCallExpired, call, model.CallStatusPending)
	}
	for astrologerID := range touched {
		if _, err := s.PromoteIfIdle(ctx, astrologerID); err != nil {
			s.log.Error("promote after expiry failed", zap.String("astrologer_id", astrologerID), zap.Error(err))
		}
	}
	if expired > 0 {
		s.log.Info("pending calls expired", zap.Int("count", expired), zap.Duration("timeout", timeout))
	}
	return expired, nil
}

func (s *CallService) promoteNext(ctx context.Context, astrologerID string) (*model.Call, error) {
	calls, err := s.calls.List(ctx, astrologerID)
	if err != nil {
		return nil, err
	}
	return s.promote(ctx, astrologerID, calls)
}

// promote persists the head of the queue as pending, closes the gap in the
// remaining positions and announces the promoted call as next-call.
func (s *CallService) promote(ctx context.Context, astrologerID string, calls []model.Call) (*model.Call, error) {
	next, updated := queue.PromoteNext(calls, astrologerID)
	if next == nil {
		return nil, nil
	}
	if err := s.calls.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save promoted call %s: %w", next.ID, err)
	}
	s.savePositions(ctx, updated, astrologerID)
	s.log.Info("queued call promoted", zap.String("call_id", next.ID), zap.String("astrologer_id", astrologerID))

	s.notify(ctx, astrologerID, model.EventNextCall, next)
	s.produce(ctx, kafka.EventCallPromoted, next, model.CallStatusQueued)
	return next, nil
}

// renumber closes the gap a withdrawn call leaves in the queue.
func (s *CallService) renumber(ctx context.Context, astrologerID string) {
	calls, err := s.calls.List(ctx, astrologerID)
	if err != nil {
		s.log.Error("renumber queue failed", zap.String("astrologer_id", astrologerID), zap.Error(err))
		return
	}
	s.savePositions(ctx, calls, astrologerID)
}

func (s *CallService) savePositions(ctx context.Context, calls []model.Call, astrologerID string) {
	for _, c := range queue.Renumber(calls, astrologerID) {
		c := c
		if err := s.calls.Save(ctx, &c); err != nil {
			s.log.Warn("renumber queued call failed", zap.String("call_id", c.ID), zap.Error(err))
		}
	}
}

func (s *CallService) notify(ctx context.Context, astrologerID string, typ model.EventType, call *model.Call) {
	if s.notifier == nil {
		return
	}
	snapshot := call.Clone()
	if !s.notifier.NotifyAstrologer(ctx, astrologerID, model.Event{Type: typ, Call: &snapshot}) {
		s.log.Debug("event not delivered",
			zap.String("type", string(typ)),
			zap.String("astrologer_id", astrologerID),
			zap.String("call_id", call.ID))
	}
}

func (s *CallService) produce(ctx context.Context, event string, call *model.Call, prev model.CallStatus) {
	if s.producer == nil {
		return
	}
	s.producer.ProduceCallEvent(ctx, event, call.AstrologerID, callEventPayload(call, prev))
}

func callEventPayload(c *model.Call, prev model.CallStatus) map[string]interface{} {
	payload := map[string]interface{}{
		"call_id":       c.ID,
		"astrologer_id": c.AstrologerID,
		"user_id":       c.UserID,
		"call_type":     string(c.CallType),
		"status":        string(c.Status),
		"room_name":     c.RoomName,
		"created_at":    c.CreatedAt,
	}
	if c.Position != nil {
		payload["position"] = *c.Position
	}
	if prev != "" {
		payload["previous_status"] = string(prev)
	}
	return payload
}
