package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/niraliveastro/astro-call-service/internal/errs"
	"github.com/niraliveastro/astro-call-service/internal/model"
	"github.com/niraliveastro/astro-call-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	astrologerID string
	event        model.Event
}

type fakeNotifier struct {
	mu     sync.Mutex
	direct []sentEvent
	global []model.Event
}

func (f *fakeNotifier) NotifyAstrologer(_ context.Context, astrologerID string, ev model.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct = append(f.direct, sentEvent{astrologerID: astrologerID, event: ev})
	return true
}

func (f *fakeNotifier) NotifyGlobal(_ context.Context, ev model.Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.global = append(f.global, ev)
	return 1
}

func (f *fakeNotifier) types() []model.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.EventType, len(f.direct))
	for i, s := range f.direct {
		out[i] = s.event.Type
	}
	return out
}

func (f *fakeNotifier) last() sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.direct[len(f.direct)-1]
}

type producedEvent struct {
	event   string
	key     string
	payload map[string]interface{}
}

type recordingProducer struct {
	mu     sync.Mutex
	events []producedEvent
}

func (r *recordingProducer) ProduceCallEvent(_ context.Context, event, key string, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, producedEvent{event: event, key: key, payload: payload})
}

func (r *recordingProducer) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.event
	}
	return out
}

type fixture struct {
	calls    *repository.MemoryCallStore
	statuses *StatusService
	svc      *CallService
	notifier *fakeNotifier
	producer *recordingProducer
	clock    time.Time
}

// newFixture wires the services over memory stores with a clock that advances
// one second per reading, so creation times are strictly increasing.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		calls:    repository.NewMemoryCallStore(),
		notifier: &fakeNotifier{},
		producer: &recordingProducer{},
		clock:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.statuses = NewStatusService(repository.NewMemoryStatusStore(), f.notifier, f.producer, nil)
	f.svc = NewCallService(f.calls, f.statuses, f.notifier, f.producer, nil)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

func (f *fixture) create(t *testing.T, astrologerID, userID string) *model.Call {
	t.Helper()
	c, err := f.svc.CreateCall(context.Background(), astrologerID, userID, "")
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	return c
}

func TestCreateCall_OnlineIsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.statuses.Set(ctx, "A1", model.AvailabilityOnline))

	c := f.create(t, "A1", "U1")
	assert.Equal(t, model.CallStatusPending, c.Status)
	assert.Nil(t, c.Position)
	assert.Equal(t, model.CallTypeVideo, c.CallType)
	assert.Regexp(t, regexp.MustCompile(`^call-\d+-[0-9a-f]{9}$`), c.ID)
	assert.Regexp(t, regexp.MustCompile(`^astro-A1-U1-\d+$`), c.RoomName)

	ev := f.notifier.last()
	assert.Equal(t, "A1", ev.astrologerID)
	assert.Equal(t, model.EventNewCall, ev.event.Type)
	assert.Equal(t, c.ID, ev.event.Call.ID)
	assert.Contains(t, f.producer.names(), "call.created")
}

func TestCreateCall_NotOnlineIsQueued(t *testing.T) {
	for _, status := range []model.AvailabilityStatus{"", model.AvailabilityOffline, model.AvailabilityBusy} {
		t.Run(string(status)+"_status", func(t *testing.T) {
			f := newFixture(t)
			if status != "" {
				require.NoError(t, f.statuses.Set(context.Background(), "A1", status))
			}
			c1 := f.create(t, "A1", "U1")
			c2 := f.create(t, "A1", "U2")
			other := f.create(t, "A2", "U3")

			assert.Equal(t, model.CallStatusQueued, c1.Status)
			require.NotNil(t, c1.Position)
			assert.Equal(t, 1, *c1.Position)
			require.NotNil(t, c2.Position)
			assert.Equal(t, 2, *c2.Position)
			require.NotNil(t, other.Position)
			assert.Equal(t, 1, *other.Position)
			assert.NotEmpty(t, c1.RoomName)
		})
	}
}

func TestCreateCall_InvalidType(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateCall(context.Background(), "A1", "U1", "hologram")
	assert.ErrorIs(t, err, errs.ErrInvalidCallType)
	assert.Empty(t, f.notifier.types())
}

func TestUpdateStatus_UnknownCall(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateStatus(context.Background(), "A1", "call-missing", model.CallStatusActive)
	assert.ErrorIs(t, err, errs.ErrCallNotFound)
}

func TestUpdateStatus_OtherAstrologersCall(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.statuses.Set(context.Background(), "A1", model.AvailabilityOnline))
	c := f.create(t, "A1", "U1")

	_, err := f.svc.UpdateStatus(context.Background(), "A2", c.ID, model.CallStatusActive)
	assert.ErrorIs(t, err, errs.ErrCallNotFound)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, "A1", "U1") // queued

	_, err := f.svc.UpdateStatus(ctx, "A1", c.ID, model.CallStatusActive)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	_, err = f.svc.UpdateStatus(ctx, "A1", c.ID, "ringing")
	assert.ErrorIs(t, err, errs.ErrInvalidStatus)

	require.NoError(t, f.statuses.Set(ctx, "A1", model.AvailabilityOnline))
	p := f.create(t, "A1", "U2")
	done, err := f.svc.UpdateStatus(ctx, "A1", p.ID, model.CallStatusCompleted)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, "A1", done.ID, model.CallStatusActive)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestUpdateStatus_ActiveKeepsRoomName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.statuses.Set(ctx, "A1", model.AvailabilityOnline))
	c := f.create(t, "A1", "U1")

	active, err := f.svc.UpdateStatus(ctx, "A1", c.ID, model.CallStatusActive)
	require.NoError(t, err)
	assert.Equal(t, c.RoomName, active.RoomName)

	ended, err := f.svc.UpdateStatus(ctx, "A1", c.ID, model.CallStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, c.RoomName, ended.RoomName)
	assert.Equal(t, model.CallStatusCompleted, ended.Status)
	assert.Equal(t, model.EventCallStatusUpdated, f.notifier.last().event.Type)
}

func TestUpdateStatus_CompletionPromotesNext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c2 := f.create(t, "A1", "U2")
	c3 := f.create(t, "A1", "U3")
	require.NoError(t, f.statuses.Set(ctx, "A1", model.AvailabilityOnline))
	c1 := f.create(t, "A1", "U1")
	_, err := f.svc.UpdateStatus(ctx, "A1", c1.ID, model.CallStatusActive)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, "A1", c1.ID, model.CallStatusCompleted)
	require.NoError(t, err)

	promoted, err := f.calls.Get(ctx, c2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusPending, promoted.Status)
	assert.Nil(t, promoted.Position)

	ev := f.notifier.last()
	assert.Equal(t, model.EventNextCall, ev.event.Type)
	assert.Equal(t, c2.ID, ev.event.Call.ID)
	assert.Contains(t, f.producer.names(), "call.promoted")

	q, err := f.svc.GetQueue(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, q, 1)
	assert.Equal(t, c3.ID, q[0].ID)
	require.NotNil(t, q[0].Position)
	assert.Equal(t, 1, *q[0].Position)

	all, err := f.svc.GetCallsForAstrologer(ctx, "A1")
	require.NoError(t, err)
	for _, c := range all {
		assert.NoError(t, c.Validate())
	}
}

func TestUpdateStatus_EmptyQueueNoPromotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.statuses.Set(ctx, "A1", model.AvailabilityOnline))
	c := f.create(t, "A1", "U1")

	_, err := f.svc.UpdateStatus(ctx, "A1", c.ID, model.CallStatusRejected)
	require.NoError(t, err)
	assert.NotContains(t, f.notifier.types(), model.EventNextCall)
}

func TestUpdateStatus_WithdrawQueuedRenumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.create(t, "A1", "U1")
	c2 := f.create(t, "A1", "U2")

	gone, err := f.svc.UpdateStatus(ctx, "A1", c1.ID, model.CallStatusRejected)
	require.NoError(t, err)
	assert.Nil(t, gone.Position)

	q, err := f.svc.GetQueue(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, q, 1)
	assert.Equal(t, c2.ID, q[0].ID)
	assert.Equal(t, 1, *q[0].Position)
	assert.NotContains(t, f.notifier.types(), model.EventNextCall)
}

func TestUpdateStatus_StaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.statuses.Set(ctx, "A1", model.AvailabilityOnline))
	c := f.create(t, "A1", "U1")

	stale, err := f.calls.Get(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, "A1", c.ID, model.CallStatusActive)
	require.NoError(t, err)

	stale.Status = model.CallStatusRejected
	assert.ErrorIs(t, f.calls.Save(ctx, stale), errs.ErrCallConflict)
}

func TestGoingOnlineDoesNotDrainQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, "A1", "U1")

	require.NoError(t, f.statuses.Set(ctx, "A1", model.AvailabilityOnline))

	got, err := f.calls.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusQueued, got.Status)
	require.Len(t, f.notifier.global, 1)
	assert.Equal(t, model.EventAstrologerStatusUpdated, f.notifier.global[0].Type)
}

func TestPromoteIfIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t, "A1", "U1")
	f.statuses.OnOnline(func(ctx context.Context, astrologerID string) {
		_, err := f.svc.PromoteIfIdle(ctx, astrologerID)
		require.NoError(t, err)
	})

	require.NoError(t, f.statuses.Set(ctx, "A1", model.AvailabilityOnline))
	got, err := f.calls.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusPending, got.Status)

	// A live call blocks further promotion.
	c2, err := f.svc.CreateCall(ctx, "A1", "U2", model.CallTypeVoice)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusPending, c2.Status)
	require.NoError(t, f.statuses.Set(ctx, "A1", model.AvailabilityBusy))
	c3 := f.create(t, "A1", "U3")
	next, err := f.svc.PromoteIfIdle(ctx, "A1")
	require.NoError(t, err)
	assert.Nil(t, next)
	got, err = f.calls.Get(ctx, c3.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusQueued, got.Status)
}

func TestExpirePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.statuses.Set(ctx, "A1", model.AvailabilityOnline))
	old := f.create(t, "A1", "U1")
	require.NoError(t, f.statuses.Set(ctx, "A1", model.AvailabilityBusy))
	queued := f.create(t, "A1", "U2")

	f.clock = f.clock.Add(10 * time.Minute)
	n, err := f.svc.ExpirePending(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.calls.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusRejected, got.Status)
	got, err = f.calls.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CallStatusPending, got.Status)
	assert.Contains(t, f.producer.names(), "call.expired")

	// The promoted call only just became pending.
	n, err = f.svc.ExpirePending(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "A1", "U1")
	last := f.create(t, "A2", "U2")

	all, err := f.svc.ListCalls(ctx, model.CallFilter{NewestFirst: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, last.ID, all[0].ID)

	none, err := f.svc.ListCalls(ctx, model.CallFilter{AstrologerID: "A9"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
