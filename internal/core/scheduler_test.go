package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// blockingPurgeStore holds every PurgeHistory call until release is closed.
type blockingPurgeStore struct {
	Store
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (b *blockingPurgeStore) PurgeHistory(ctx context.Context, before time.Time) (int64, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	<-b.release
	return 0, nil
}

func TestRetentionJob_SkipsOverlappingRuns(t *testing.T) {
	store := &blockingPurgeStore{started: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(store)
	job := svc.retentionJob(context.Background(), 30)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		job.Run()
	}()
	<-store.started

	// A second tick while the first purge is blocked returns at once.
	job.Run()
	if got := store.calls.Load(); got != 1 {
		t.Errorf("purge calls during overlap = %d, want 1", got)
	}

	close(store.release)
	wg.Wait()

	job.Run()
	if got := store.calls.Load(); got != 2 {
		t.Errorf("purge calls after first run finished = %d, want 2", got)
	}
}

func TestRetentionJob_SkipsAfterCancel(t *testing.T) {
	store := &blockingPurgeStore{started: make(chan struct{}), release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewService(store).retentionJob(ctx, 30).Run()
	if got := store.calls.Load(); got != 0 {
		t.Errorf("purge calls = %d, want 0", got)
	}
}

func TestStartRetentionScheduler_InvalidSpec(t *testing.T) {
	svc := NewService(&blockingPurgeStore{})
	if _, err := svc.StartRetentionScheduler(context.Background(), RetentionConfig{RetentionDays: 7, CronSpec: "not a spec"}); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}
