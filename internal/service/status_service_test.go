package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/niraliveastro/astro-call-service/internal/model"
	"github.com/niraliveastro/astro-call-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

type brokenStatusStore struct{}

func (brokenStatusStore) Get(context.Context, string) (*model.AstrologerStatus, error) {
	return nil, errStoreDown
}

func (brokenStatusStore) Upsert(context.Context, string, model.AvailabilityStatus, time.Time) error {
	return errStoreDown
}

func (brokenStatusStore) List(context.Context) ([]model.AstrologerStatus, error) {
	return nil, errStoreDown
}

func TestStatusService_DefaultsToOffline(t *testing.T) {
	svc := NewStatusService(repository.NewMemoryStatusStore(), nil, nil, nil)
	st := svc.Get(context.Background(), "A1")
	assert.Equal(t, "A1", st.AstrologerID)
	assert.Equal(t, model.AvailabilityOffline, st.Status)
	assert.NotNil(t, st.PendingCalls)
	assert.False(t, st.LastSeen.IsZero())
}

func TestStatusService_SetBroadcastsGlobally(t *testing.T) {
	n := &fakeNotifier{}
	p := &recordingProducer{}
	svc := NewStatusService(repository.NewMemoryStatusStore(), n, p, nil)
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "A1", model.AvailabilityBusy))
	st := svc.Get(ctx, "A1")
	assert.Equal(t, model.AvailabilityBusy, st.Status)
	assert.Equal(t, fixed, st.LastSeen)

	require.Len(t, n.global, 1)
	assert.Equal(t, model.EventAstrologerStatusUpdated, n.global[0].Type)
	assert.Equal(t, "A1", n.global[0].AstrologerID)
	assert.Equal(t, model.AvailabilityBusy, n.global[0].Status)
	assert.Equal(t, []string{"astrologer.status_updated"}, p.names())
	assert.Empty(t, n.direct)
}

func TestStatusService_OnOnlineOnlyForOnline(t *testing.T) {
	svc := NewStatusService(repository.NewMemoryStatusStore(), nil, nil, nil)
	var seen []string
	svc.OnOnline(func(_ context.Context, id string) { seen = append(seen, id) })
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "A1", model.AvailabilityOffline))
	require.NoError(t, svc.Set(ctx, "A2", model.AvailabilityOnline))
	assert.Equal(t, []string{"A2"}, seen)
}

func TestStatusService_ListAll(t *testing.T) {
	svc := NewStatusService(repository.NewMemoryStatusStore(), nil, nil, nil)
	ctx := context.Background()
	require.NoError(t, svc.Set(ctx, "B", model.AvailabilityOnline))
	require.NoError(t, svc.Set(ctx, "A", model.AvailabilityOffline))

	all := svc.ListAll(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].AstrologerID)
	assert.Equal(t, "B", all[1].AstrologerID)
}

func TestStatusService_StoreFailures(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewStatusService(brokenStatusStore{}, n, nil, nil)
	ctx := context.Background()

	assert.Equal(t, model.AvailabilityOffline, svc.Get(ctx, "A1").Status)
	assert.ErrorIs(t, svc.Set(ctx, "A1", model.AvailabilityOnline), errStoreDown)
	assert.Empty(t, n.global, "failed writes are not broadcast")
	all := svc.ListAll(ctx)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}
