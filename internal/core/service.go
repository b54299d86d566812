package core

import (
	"context"
	"time"
)

// DefaultImportTimeout bounds a single synchronous import, including the commit.
const DefaultImportTimeout = 5 * time.Minute

// Service provides the import, export and history operations.
type Service struct {
	store   Store
	queue   JobQueue
	audit   AuditNotifier
	limiter *UploadLimiter
	now     func() time.Time

	defaultThreshold int
	progressInterval int
	importTimeout    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithJobQueue sets the queue used for imports above the background threshold.
// Without one, large imports fail with ErrQueueUnavailable.
func WithJobQueue(q JobQueue) Option {
	return func(s *Service) { s.queue = q }
}

// WithAuditNotifier replaces the default log-based audit notifier.
func WithAuditNotifier(n AuditNotifier) Option {
	return func(s *Service) {
		if n != nil {
			s.audit = n
		}
	}
}

// WithUploadLimiter sets the limiter guarding synchronous imports.
func WithUploadLimiter(l *UploadLimiter) Option {
	return func(s *Service) {
		if l != nil {
			s.limiter = l
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultThreshold sets the background threshold used when a request
// does not specify one.
func WithDefaultThreshold(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultThreshold = n
		}
	}
}

// WithProgressInterval sets how many rows a background import processes
// between progress reports.
func WithProgressInterval(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.progressInterval = n
		}
	}
}

// WithImportTimeout bounds each synchronous import, including the commit.
func WithImportTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.importTimeout = d
		}
	}
}

// NewService creates a new Service instance backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:            store,
		audit:            LogAuditNotifier{},
		limiter:          NewUploadLimiter(DefaultMaxConcurrentUploads, DefaultMaxWaitTime),
		now:              time.Now,
		defaultThreshold: DefaultBackgroundThreshold,
		progressInterval: DefaultProgressInterval,
		importTimeout:    DefaultImportTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadLimiterStatus returns the current state of the synchronous import limiter.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until in-flight synchronous imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
