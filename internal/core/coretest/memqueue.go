package coretest

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/inventory/internal/core"
)

// MemQueue is an in-memory core.JobQueue.
type MemQueue struct {
	mu       sync.Mutex
	jobs     map[string]*core.BackgroundJob
	order    []string
	Progress []int
}

// NewMemQueue returns an empty queue.
func NewMemQueue() *MemQueue {
	return &MemQueue{jobs: map[string]*core.BackgroundJob{}}
}

func (q *MemQueue) Enqueue(ctx context.Context, job *core.BackgroundJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.CreatedAt = time.Now()
	job.Status = core.JobQueued
	cp := *job
	q.jobs[job.ID] = &cp
	q.order = append(q.order, job.ID)
	return nil
}

// Claim moves the oldest queued job to running and returns it, or nil.
func (q *MemQueue) Claim(ctx context.Context) (*core.BackgroundJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		j := q.jobs[id]
		if j.Status == core.JobQueued {
			now := time.Now()
			j.Status = core.JobRunning
			j.StartedAt = &now
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (q *MemQueue) Get(ctx context.Context, id string) (*core.BackgroundJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (q *MemQueue) ReportProgress(ctx context.Context, id string, processed int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return core.ErrNotFound
	}
	j.ProcessedRows = processed
	q.Progress = append(q.Progress, processed)
	return nil
}

func (q *MemQueue) Finish(ctx context.Context, id string, status core.JobStatus, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return core.ErrNotFound
	}
	now := time.Now()
	j.Status = status
	j.Error = errMsg
	j.FinishedAt = &now
	return nil
}

func (q *MemQueue) Cancel(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return core.ErrNotFound
	}
	if j.Status != core.JobQueued {
		return core.ErrJobNotCancellable
	}
	now := time.Now()
	j.Status = core.JobCancelled
	j.FinishedAt = &now
	return nil
}

// RecordingNotifier collects audit events.
type RecordingNotifier struct {
	mu     sync.Mutex
	Events []core.AuditEvent
}

func (n *RecordingNotifier) Notify(ctx context.Context, e core.AuditEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, e)
}

// Last returns the most recent event.
func (n *RecordingNotifier) Last() (core.AuditEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Events) == 0 {
		return core.AuditEvent{}, false
	}
	return n.Events[len(n.Events)-1], true
}
