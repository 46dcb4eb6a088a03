package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "poscore/internal/errors"
	"poscore/internal/outbox"
	"poscore/internal/shared/testutil"
	"poscore/internal/store"
	"poscore/pkg/contracts/domain"
	"poscore/pkg/contracts/events"
)

// fakeRemote records pushes; push decides the outcome per record.
type fakeRemote struct {
	mu      sync.Mutex
	pingErr error
	push    func(ctx context.Context, rec domain.SyncRecord) error
	pushed  []string
}

func (r *fakeRemote) Ping(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pingErr
}

func (r *fakeRemote) Push(ctx context.Context, rec domain.SyncRecord) error {
	r.mu.Lock()
	r.pushed = append(r.pushed, rec.EntityID)
	push := r.push
	r.mu.Unlock()
	if push == nil {
		return nil
	}
	return push(ctx, rec)
}

func (r *fakeRemote) pushedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pushed...)
}

type gate bool

func (g gate) IsFeatureEnabled(string) bool { return bool(g) }

type fixture struct {
	path   string
	store  *store.Store
	outbox *outbox.Outbox
	remote *fakeRemote
	status *StatusBroadcaster
	worker *Worker
	clock  *testutil.FakeClock
}

func testConfig() Config {
	return Config{
		Interval:        time.Second,
		MaxBackoff:      8 * time.Second,
		DeliveryTimeout: 200 * time.Millisecond,
		PingTimeout:     200 * time.Millisecond,
		BatchSize:       2,
		Retention:       time.Hour,
	}
}

func newFixture(t *testing.T, enabled bool, cfg Config) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pos.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger, _ := testutil.NewTestLogger(t)
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	ob := outbox.New(s.Outbox(), logger, outbox.WithClock(clock.Now))
	remote := &fakeRemote{}
	status := NewStatusBroadcaster()

	return &fixture{
		path:   path,
		store:  s,
		outbox: ob,
		remote: remote,
		status: status,
		worker: New(ob, remote, gate(enabled), status, cfg, logger, WithClock(clock.Now)),
		clock:  clock,
	}
}

// enqueue adds records one millisecond apart so delivery order is defined.
func (f *fixture) enqueue(t *testing.T, ids ...string) map[string]uuid.UUID {
	t.Helper()
	business, branch := uuid.New(), uuid.New()
	out := make(map[string]uuid.UUID, len(ids))
	for _, id := range ids {
		rec, err := f.outbox.Enqueue(context.Background(), outbox.Entry{
			EntityType: domain.EntityProduct,
			EntityID:   id,
			Operation:  domain.OperationCreate,
			Payload:    map[string]string{"id": id},
			Scope:      domain.TenantScope{BusinessID: &business, BranchID: &branch},
		})
		require.NoError(t, err)
		out[id] = rec.ID
		f.clock.Advance(time.Millisecond)
	}
	return out
}

func (f *fixture) record(t *testing.T, id uuid.UUID) domain.SyncRecord {
	t.Helper()
	rec, err := f.store.Outbox().Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func TestCycleDeliversInOrder(t *testing.T) {
	f := newFixture(t, true, testConfig())
	ids := f.enqueue(t, "a", "b", "c", "d", "e")

	status, err := f.worker.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, f.remote.pushedIDs())
	assert.True(t, status.IsOnline)
	assert.Equal(t, 0, status.PendingCount)
	assert.Equal(t, 0, status.DeadLetterCount)
	assert.Equal(t, f.clock.Now(), status.CycleAt)
	for _, id := range ids {
		assert.Equal(t, domain.SyncCompleted, f.record(t, id).Status)
	}
	assert.Equal(t, status, f.worker.Status())
}

func TestCycleFailuresDoNotBlockLaterRecords(t *testing.T) {
	f := newFixture(t, true, testConfig())
	ids := f.enqueue(t, "bad1", "bad2", "good")
	f.remote.push = func(_ context.Context, rec domain.SyncRecord) error {
		if rec.EntityID != "good" {
			return fmt.Errorf("%w: schema mismatch", apperrors.ErrRemoteRejected)
		}
		return nil
	}

	status, err := f.worker.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"bad1", "bad2", "good"}, f.remote.pushedIDs(), "each record attempted once per cycle")
	assert.Equal(t, 2, status.PendingCount)

	bad := f.record(t, ids["bad1"])
	assert.Equal(t, domain.SyncFailed, bad.Status)
	assert.Equal(t, 1, bad.RetryCount)
	require.NotNil(t, bad.ErrorMessage)
	assert.Contains(t, *bad.ErrorMessage, "schema mismatch")
	assert.Equal(t, domain.SyncCompleted, f.record(t, ids["good"]).Status)
}

func TestFifthFailureDeadLetters(t *testing.T) {
	f := newFixture(t, true, testConfig())
	ids := f.enqueue(t, "poison")
	f.remote.push = func(context.Context, domain.SyncRecord) error {
		return apperrors.ErrRemoteRejected
	}

	var status events.SyncStatus
	for i := 0; i < domain.MaxSyncRetries+2; i++ {
		var err error
		status, err = f.worker.RunCycle(context.Background())
		require.NoError(t, err)
	}

	assert.Len(t, f.remote.pushedIDs(), domain.MaxSyncRetries, "dead-lettered records are never retried")
	rec := f.record(t, ids["poison"])
	assert.Equal(t, domain.MaxSyncRetries, rec.RetryCount)
	assert.Equal(t, 0, status.PendingCount)
	assert.Equal(t, 1, status.DeadLetterCount)
}

func TestOfflineSkipsQueueAndBacksOff(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, true, cfg)
	ids := f.enqueue(t, "a")
	f.remote.pingErr = fmt.Errorf("%w: dial tcp: connection refused", apperrors.ErrUnreachable)

	for i, want := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second} {
		status, err := f.worker.RunCycle(context.Background())
		require.NoError(t, err)
		assert.False(t, status.IsOnline)
		assert.Equal(t, 1, status.PendingCount)
		assert.Contains(t, status.Message, "offline")
		assert.Equal(t, want, f.worker.nextDelay(), "cycle %d", i)
	}

	assert.Empty(t, f.remote.pushedIDs())
	rec := f.record(t, ids["a"])
	assert.Equal(t, domain.SyncPending, rec.Status)
	assert.Equal(t, 0, rec.RetryCount)

	f.remote.pingErr = nil
	status, err := f.worker.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, status.IsOnline)
	assert.Equal(t, cfg.Interval, f.worker.nextDelay())
}

func TestUnreachablePushEndsCycleOffline(t *testing.T) {
	f := newFixture(t, true, testConfig())
	ids := f.enqueue(t, "a", "b")
	f.remote.push = func(context.Context, domain.SyncRecord) error {
		return fmt.Errorf("%w: connection reset", apperrors.ErrUnreachable)
	}

	status, err := f.worker.RunCycle(context.Background())
	require.NoError(t, err)

	assert.False(t, status.IsOnline)
	assert.Equal(t, []string{"a"}, f.remote.pushedIDs())
	assert.Equal(t, domain.SyncFailed, f.record(t, ids["a"]).Status)
	assert.Equal(t, domain.SyncPending, f.record(t, ids["b"]).Status)
}

func TestDeliveryTimeoutCountsAsFailure(t *testing.T) {
	cfg := testConfig()
	cfg.DeliveryTimeout = 20 * time.Millisecond
	f := newFixture(t, true, cfg)
	ids := f.enqueue(t, "slow")
	f.remote.push = func(ctx context.Context, _ domain.SyncRecord) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := f.worker.RunCycle(context.Background())
	require.NoError(t, err)

	rec := f.record(t, ids["slow"])
	assert.Equal(t, domain.SyncFailed, rec.Status)
	assert.Equal(t, 1, rec.RetryCount)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "timed out")
}

func TestCancellationLeavesRecordInProgress(t *testing.T) {
	f := newFixture(t, true, testConfig())
	ids := f.enqueue(t, "a")

	ctx, cancel := context.WithCancel(context.Background())
	f.remote.push = func(pushCtx context.Context, _ domain.SyncRecord) error {
		cancel()
		<-pushCtx.Done()
		return pushCtx.Err()
	}

	_, err := f.worker.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	rec := f.record(t, ids["a"])
	assert.Equal(t, domain.SyncInProgress, rec.Status)
	assert.Equal(t, 0, rec.RetryCount)

	// later cycles of the same run leave it alone
	f.remote.push = nil
	_, err = f.worker.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SyncInProgress, f.record(t, ids["a"]).Status)
	assert.Len(t, f.remote.pushedIDs(), 1)
}

func TestCycleSkipsRecordClaimedElsewhere(t *testing.T) {
	f := newFixture(t, true, testConfig())
	ids := f.enqueue(t, "a", "b")

	// a second handle on the same file, as a one-shot command would open
	other, err := store.Open(f.path)
	require.NoError(t, err)
	defer other.Close()
	logger, _ := testutil.NewTestLogger(t)
	require.NoError(t, outbox.New(other.Outbox(), logger).Claim(context.Background(), ids["a"]))

	status, err := f.worker.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, f.remote.pushedIDs())
	assert.Equal(t, domain.SyncInProgress, f.record(t, ids["a"]).Status, "claim of the other handle survives")
	assert.Equal(t, domain.SyncCompleted, f.record(t, ids["b"]).Status)
	assert.Equal(t, 0, status.PendingCount, "in-flight records are not pending")
}

func TestRunReclaimsAtStartup(t *testing.T) {
	f := newFixture(t, true, testConfig())
	ids := f.enqueue(t, "a")
	require.NoError(t, f.outbox.Claim(context.Background(), ids["a"]))
	updates, unsubscribe := f.status.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	select {
	case s := <-updates:
		assert.Equal(t, 0, s.PendingCount)
	case <-time.After(2 * time.Second):
		t.Fatal("no status published")
	}
	assert.Equal(t, domain.SyncCompleted, f.record(t, ids["a"]).Status)
	assert.Equal(t, []string{"a"}, f.remote.pushedIDs())

	cancel()
	require.NoError(t, <-done)
}

func TestCloudSyncDisabled(t *testing.T) {
	f := newFixture(t, false, testConfig())
	f.enqueue(t, "a")

	status, err := f.worker.RunCycle(context.Background())
	require.NoError(t, err)

	assert.False(t, status.IsOnline)
	assert.Equal(t, 1, status.PendingCount)
	assert.Contains(t, status.Message, "not enabled")
	assert.Empty(t, f.remote.pushedIDs())
}

func TestCyclePurgesOldCompleted(t *testing.T) {
	f := newFixture(t, true, testConfig())
	ids := f.enqueue(t, "a")

	_, err := f.worker.RunCycle(context.Background())
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.worker.RunCycle(context.Background())
	require.NoError(t, err)

	_, err = f.store.Outbox().Get(context.Background(), ids["a"])
	assert.ErrorIs(t, err, apperrors.ErrRecordNotFound)
}

func TestRunPublishesAndStops(t *testing.T) {
	f := newFixture(t, true, testConfig())
	f.enqueue(t, "a")
	updates, unsubscribe := f.status.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	select {
	case s := <-updates:
		assert.True(t, s.IsOnline)
		assert.Equal(t, 0, s.PendingCount)
	case <-time.After(2 * time.Second):
		t.Fatal("no status published")
	}

	f.enqueue(t, "b")
	f.worker.TriggerNow()
	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not run a cycle")
	}
	assert.Eventually(t, func() bool { return len(f.remote.pushedIDs()) == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute},
		{60, 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("failures=%d", tt.failures), func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(30*time.Second, 10*time.Minute, tt.failures))
		})
	}
}

func TestStatusBroadcasterKeepsNewest(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsubscribe := b.Subscribe()

	b.Publish(eventsStatus(1))
	b.Publish(eventsStatus(2))

	got := <-ch
	assert.Equal(t, 2, got.PendingCount)
	assert.Equal(t, 2, b.Latest().PendingCount)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	b.Publish(eventsStatus(3))
	assert.Equal(t, 3, b.Latest().PendingCount)
}

func TestStoreErrorsFailCycle(t *testing.T) {
	f := newFixture(t, true, testConfig())
	f.enqueue(t, "a")
	require.NoError(t, f.store.Close())

	_, err := f.worker.RunCycle(context.Background())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}

func eventsStatus(pending int) events.SyncStatus {
	return events.SyncStatus{PendingCount: pending}
}
