package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conformly/fieldsync/internal/domain"
	"github.com/conformly/fieldsync/internal/gateway"
	"github.com/conformly/fieldsync/internal/queue"
)

// fakeGateway counts submissions per local ID and can delay or fail
// specific records.
type fakeGateway struct {
	mu      sync.Mutex
	submits map[string]int
	fail    map[string]error
	delay   time.Duration
	nextID  int

	// started is closed on the first submit, if set.
	started     chan struct{}
	startedOnce sync.Once
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		submits: make(map[string]int),
		fail:    make(map[string]error),
	}
}

func (g *fakeGateway) Submit(ctx context.Context, form *domain.CapturedForm) (*gateway.SubmitResult, error) {
	if g.started != nil {
		g.startedOnce.Do(func() { close(g.started) })
	}

	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, gateway.NewTransientError(ctx.Err())
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.submits[form.LocalID]++
	if err, ok := g.fail[form.LocalID]; ok {
		return nil, err
	}
	g.nextID++
	return &gateway.SubmitResult{ServerID: fmt.Sprintf("srv-%d", g.nextID)}, nil
}

func (g *fakeGateway) submitCount(localID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submits[localID]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedForms queues n pending forms with increasing creation times and
// returns their local IDs in creation order.
func seedForms(t *testing.T, store queue.Store, n int) []string {
	t.Helper()

	ids := make([]string, n)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		form := &domain.CapturedForm{
			LocalID:          fmt.Sprintf("earthworks_subgrade_%d_seed", i+1),
			FormType:         domain.FormTypeEarthworksSubgrade,
			ProjectID:        "proj-42",
			InspectorName:    "R. Okafor",
			InspectionDate:   base,
			InspectionStatus: domain.InspectionStatusPending,
			CreatedAt:        base.Add(time.Duration(i) * time.Minute),
		}
		id, err := store.Save(context.Background(), form)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func TestSyncOneSuccess(t *testing.T) {
	store := queue.NewMemoryStore()
	gw := newFakeGateway()
	engine := New(store, gw, Config{}, testLogger())
	ctx := context.Background()

	ids := seedForms(t, store, 1)
	form, err := store.Get(ctx, ids[0])
	require.NoError(t, err)

	require.NoError(t, engine.SyncOne(ctx, form))

	got, err := store.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSynced, got.SyncStatus)
	assert.NotEmpty(t, got.ServerID)
	assert.Empty(t, got.LastSyncError)
}

func TestSyncOneFailureMarksFailed(t *testing.T) {
	store := queue.NewMemoryStore()
	gw := newFakeGateway()
	engine := New(store, gw, Config{}, testLogger())
	ctx := context.Background()

	ids := seedForms(t, store, 1)
	gw.fail[ids[0]] = gateway.NewTransientError(fmt.Errorf("connection reset"))

	form, err := store.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Error(t, engine.SyncOne(ctx, form))

	got, err := store.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusFailed, got.SyncStatus)
	assert.Contains(t, got.LastSyncError, "connection reset")
	assert.Empty(t, got.ServerID)
}

func TestSyncOneSkipsAlreadySynced(t *testing.T) {
	store := queue.NewMemoryStore()
	gw := newFakeGateway()
	engine := New(store, gw, Config{}, testLogger())
	ctx := context.Background()

	ids := seedForms(t, store, 1)
	require.NoError(t, store.UpdateSyncStatus(ctx, queue.UpdateSyncStatusParams{
		LocalID:  ids[0],
		Status:   domain.SyncStatusSynced,
		ServerID: "srv-existing",
	}))

	form, err := store.Get(ctx, ids[0])
	require.NoError(t, err)
	require.NoError(t, engine.SyncOne(ctx, form))

	// No remote call was made for the already-accepted record.
	assert.Zero(t, gw.submitCount(ids[0]))
}

func TestSyncAllDrainsQueueOldestFirst(t *testing.T) {
	store := queue.NewMemoryStore()
	gw := newFakeGateway()
	engine := New(store, gw, Config{}, testLogger())
	ctx := context.Background()

	ids := seedForms(t, store, 3)

	result, err := engine.SyncAll(ctx)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 3, result.Synced)
	assert.Zero(t, result.Failed)

	// Oldest record got the first server ID.
	first, err := store.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "srv-1", first.ServerID)
}

func TestSyncAllSingleFlight(t *testing.T) {
	store := queue.NewMemoryStore()
	gw := newFakeGateway()
	gw.delay = 50 * time.Millisecond
	engine := New(store, gw, Config{}, testLogger())
	ctx := context.Background()

	ids := seedForms(t, store, 3)
	gw.started = make(chan struct{})

	done := make(chan SweepResult, 1)
	go func() {
		result, err := engine.SyncAll(ctx)
		require.NoError(t, err)
		done <- result
	}()

	// Wait until the first sweep is mid-flight, then ask again.
	<-gw.started
	second, err := engine.SyncAll(ctx)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Zero(t, second.Attempted)

	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 3, first.Synced)

	// Each record was transmitted exactly once.
	for _, id := range ids {
		assert.Equal(t, 1, gw.submitCount(id), "record %s", id)
	}
}

func TestSyncAllPartialFailureIsolation(t *testing.T) {
	store := queue.NewMemoryStore()
	gw := newFakeGateway()
	engine := New(store, gw, Config{}, testLogger())
	ctx := context.Background()

	ids := seedForms(t, store, 3)
	gw.fail[ids[1]] = &gateway.RejectedError{StatusCode: http.StatusUnprocessableEntity, Detail: "bad date"}

	result, err := engine.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 1, result.Failed)

	first, _ := store.Get(ctx, ids[0])
	second, _ := store.Get(ctx, ids[1])
	third, _ := store.Get(ctx, ids[2])

	assert.Equal(t, domain.SyncStatusSynced, first.SyncStatus)
	assert.NotEmpty(t, first.ServerID)
	assert.Equal(t, domain.SyncStatusFailed, second.SyncStatus)
	assert.Equal(t, domain.SyncStatusSynced, third.SyncStatus)
	assert.NotEmpty(t, third.ServerID)
}

func TestSyncAllRetriesPreviouslyFailed(t *testing.T) {
	store := queue.NewMemoryStore()
	gw := newFakeGateway()
	engine := New(store, gw, Config{}, testLogger())
	ctx := context.Background()

	ids := seedForms(t, store, 1)
	gw.fail[ids[0]] = gateway.NewTransientError(fmt.Errorf("timeout"))

	_, err := engine.SyncAll(ctx)
	require.NoError(t, err)
	got, _ := store.Get(ctx, ids[0])
	assert.Equal(t, domain.SyncStatusFailed, got.SyncStatus)

	// The backend recovers; the next sweep picks the failed record up
	// again and succeeds.
	gw.mu.Lock()
	delete(gw.fail, ids[0])
	gw.mu.Unlock()

	result, err := engine.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)

	got, _ = store.Get(ctx, ids[0])
	assert.Equal(t, domain.SyncStatusSynced, got.SyncStatus)
	assert.Equal(t, 2, gw.submitCount(ids[0]))
}

func TestSyncAllEmptyQueue(t *testing.T) {
	store := queue.NewMemoryStore()
	engine := New(store, newFakeGateway(), Config{}, testLogger())

	result, err := engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)
}

func TestNotifyPublishesTransitions(t *testing.T) {
	store := queue.NewMemoryStore()
	gw := newFakeGateway()

	var mu sync.Mutex
	var events []Event
	engine := New(store, gw, Config{
		Notify: func(ev Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	}, testLogger())
	ctx := context.Background()

	seedForms(t, store, 1)
	_, err := engine.SyncAll(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, domain.SyncStatusSynced, events[0].Status)
	assert.NotEmpty(t, events[0].ServerID)
}

func TestStopAutoSyncIsIdempotent(t *testing.T) {
	store := queue.NewMemoryStore()
	engine := New(store, newFakeGateway(), Config{}, testLogger())

	// Stopping before starting is safe.
	engine.StopAutoSync()

	engine.StartAutoSync(context.Background(), 50*time.Millisecond)
	engine.StopAutoSync()
	engine.StopAutoSync()
}

func TestAutoSyncRunsImmediateSweep(t *testing.T) {
	store := queue.NewMemoryStore()
	gw := newFakeGateway()
	engine := New(store, gw, Config{}, testLogger())

	ids := seedForms(t, store, 1)

	engine.StartAutoSync(context.Background(), time.Hour)
	defer engine.StopAutoSync()

	require.Eventually(t, func() bool {
		return gw.submitCount(ids[0]) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOfflineToOnlineTriggersSweep(t *testing.T) {
	store := queue.NewMemoryStore()
	gw := newFakeGateway()
	engine := New(store, gw, Config{}, testLogger())

	engine.SetOnline(false)
	ids := seedForms(t, store, 1)

	engine.StartAutoSync(context.Background(), time.Hour)
	defer engine.StopAutoSync()

	// Offline: nothing is transmitted.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, gw.submitCount(ids[0]))

	engine.SetOnline(true)

	require.Eventually(t, func() bool {
		return gw.submitCount(ids[0]) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
