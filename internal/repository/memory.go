package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/niraliveastro/astro-call-service/internal/errs"
	"github.com/niraliveastro/astro-call-service/internal/model"
)

// MemoryCallStore keeps calls in process memory (STORE_DRIVER=memory).
type MemoryCallStore struct {
	mu    sync.RWMutex
	calls map[string]model.Call
	order []string // insertion order, breaks created_at ties
}

// NewMemoryCallStore creates an empty in-memory call repository.
func NewMemoryCallStore() *MemoryCallStore {
	return &MemoryCallStore{calls: make(map[string]model.Call)}
}

func (s *MemoryCallStore) List(_ context.Context, astrologerID string) ([]model.Call, error) {
	return s.ListFiltered(context.Background(), model.CallFilter{AstrologerID: astrologerID})
}

func (s *MemoryCallStore) ListFiltered(_ context.Context, f model.CallFilter) ([]model.Call, error) {
	s.mu.RLock()
	out := make([]model.Call, 0, len(s.order))
	for _, id := range s.order {
		c := s.calls[id]
		if f.AstrologerID != "" && c.AstrologerID != f.AstrologerID {
			continue
		}
		if f.UserID != "" && c.UserID != f.UserID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && c.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && c.CreatedAt.After(f.To) {
			continue
		}
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b model.Call) int {
		if f.NewestFirst {
			return b.CreatedAt.Compare(a.CreatedAt)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryCallStore) Get(_ context.Context, id string) (*model.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, errs.ErrCallNotFound
	}
	c = c.Clone()
	return &c, nil
}

func (s *MemoryCallStore) Create(_ context.Context, call *model.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if call.Version == 0 {
		call.Version = 1
	}
	if call.UpdatedAt.IsZero() {
		call.UpdatedAt = call.CreatedAt
	}
	call.Position = nil
	if call.Status == model.CallStatusQueued {
		n := 0
		for _, c := range s.calls {
			if c.AstrologerID == call.AstrologerID && c.Status == model.CallStatusQueued {
				n++
			}
		}
		call.Position = model.IntPtr(n + 1)
	}
	if _, exists := s.calls[call.ID]; !exists {
		s.order = append(s.order, call.ID)
	}
	s.calls[call.ID] = call.Clone()
	return nil
}

func (s *MemoryCallStore) Save(_ context.Context, call *model.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.calls[call.ID]
	if !ok {
		return errs.ErrCallNotFound
	}
	if cur.Version != call.Version {
		return errs.ErrCallConflict
	}
	cur.Status = call.Status
	cur.RoomName = call.RoomName
	cur.CallType = call.CallType
	cur.Position = call.Clone().Position
	cur.UpdatedAt = time.Now().UTC()
	cur.Version++
	s.calls[call.ID] = cur

	call.Version = cur.Version
	call.UpdatedAt = cur.UpdatedAt
	return nil
}

// MemoryStatusStore keeps astrologer statuses in process memory.
type MemoryStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]model.AstrologerStatus
}

// NewMemoryStatusStore creates an empty in-memory status repository.
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{statuses: make(map[string]model.AstrologerStatus)}
}

func (s *MemoryStatusStore) Get(_ context.Context, astrologerID string) (*model.AstrologerStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.statuses[astrologerID]
	if !ok {
		return nil, errs.ErrStatusNotFound
	}
	rec.PendingCalls = []string{}
	return &rec, nil
}

func (s *MemoryStatusStore) Upsert(_ context.Context, astrologerID string, status model.AvailabilityStatus, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.statuses[astrologerID]
	rec.AstrologerID = astrologerID
	rec.Status = status
	rec.LastSeen = lastSeen
	s.statuses[astrologerID] = rec
	return nil
}

func (s *MemoryStatusStore) List(_ context.Context) ([]model.AstrologerStatus, error) {
	s.mu.RLock()
	out := make([]model.AstrologerStatus, 0, len(s.statuses))
	for _, rec := range s.statuses {
		rec.PendingCalls = []string{}
		out = append(out, rec)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.AstrologerStatus) int {
		switch {
		case a.AstrologerID < b.AstrologerID:
			return -1
		case a.AstrologerID > b.AstrologerID:
			return 1
		}
		return 0
	})
	return out, nil
}
