// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/fibertrace/internal/adapters/repository"
	"github.com/okian/fibertrace/internal/domain/dedupe"
	"github.com/okian/fibertrace/internal/domain/estimator"
	"github.com/okian/fibertrace/pkg/logger"
)

const (
	tracerName        = "github.com/okian/fibertrace/internal/app"
	defaultDedupeSize = 10_000
	defaultCacheTTL   = 5 * time.Minute
)

// Service implements the API dependencies for the reference-sample and
// estimation workflow.
type Service struct {
	mu sync.RWMutex

	// Core components. base is the caller's store and is never closed by
	// the service; store is the running, cache-wrapped view rebuilt on Start.
	base      repository.Store
	store     repository.Store
	ownsStore bool
	deduper   dedupe.Deduper
	estimator *estimator.Estimator

	// Configuration
	dedupeSize      int
	cacheTTL        time.Duration
	requireIdentity bool
	estimatorOpts   []estimator.Option
	now             func() time.Time
	newID           func() string

	// State
	started   bool
	startedAt time.Time
	estimates atomic.Int64
	failures  atomic.Int64

	logger logger.Logger
	tracer trace.Tracer
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing sample store. The caller keeps ownership and
// closes it. Defaults to a fresh in-memory store on every Start.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.base = store
		}
	}
}

// WithDedupeSize sets how many submission IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDatasetCacheTTL sets how long a loaded dataset is reused. Zero
// disables the cache.
func WithDatasetCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl >= 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithRequireIdentity rejects sample writes without a submitter.
func WithRequireIdentity(required bool) Option {
	return func(s *Service) {
		s.requireIdentity = required
	}
}

// WithEstimatorOptions configures model building and prediction.
func WithEstimatorOptions(opts ...estimator.Option) Option {
	return func(s *Service) {
		s.estimatorOpts = append(s.estimatorOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracerProvider sets the tracer provider; the global one is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the sample id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New constructs a new Service with default configuration. The range check
// is on unless an estimator option turns it off.
func New(opts ...Option) *Service {
	s := &Service{
		dedupeSize:      defaultDedupeSize,
		cacheTTL:        defaultCacheTTL,
		requireIdentity: true,
		estimatorOpts:   []estimator.Option{estimator.WithRangeCheck(true)},
		now:             time.Now,
		newID:           uuid.NewString,
		tracer:          otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting fibertrace service...")

	backing := s.base
	s.ownsStore = backing == nil
	if s.ownsStore {
		backing = repository.NewMemStore()
		s.logger.Info(ctx, "using in-memory sample store")
	}
	s.store = repository.NewCachedStore(backing, s.cacheTTL)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.estimator = estimator.New(s.estimatorOpts...)

	o := s.estimator.Options()
	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "fibertrace service started",
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("datasetCacheTTL", s.cacheTTL),
		logger.Float64("dominanceThreshold", o.DominanceThreshold),
		logger.String("modelKind", o.Kind.String()),
		logger.Bool("rangeCheck", o.RangeCheck),
	)
	return nil
}

// Stop shuts the service down. Only a store the service created itself is
// closed; Start may be called again afterwards.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping fibertrace service...")
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "failed to close sample store", logger.Error(err))
		}
	}
	s.store = nil
	s.started = false
	s.logger.Info(ctx, "fibertrace service stopped")
}

// components returns the running components or ErrNotStarted.
func (s *Service) components() (repository.Store, *estimator.Estimator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.store, s.estimator, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	started := s.started
	stats := map[string]any{
		"started":          started,
		"dedupeSize":       s.dedupeSize,
		"requireIdentity":  s.requireIdentity,
		"estimatesServed":  s.estimates.Load(),
		"estimateFailures": s.failures.Load(),
	}
	if s.estimator != nil {
		o := s.estimator.Options()
		stats["modelKind"] = o.Kind.String()
		stats["dominanceThreshold"] = o.DominanceThreshold
		stats["rangeCheck"] = o.RangeCheck
	}
	store := s.store
	startedAt := s.startedAt
	s.mu.RUnlock()

	if !started {
		return stats
	}
	stats["uptimeSeconds"] = int64(s.now().Sub(startedAt).Seconds())
	if n, err := store.Count(ctx); err == nil {
		stats["samples"] = n
	} else {
		s.logger.Warn(ctx, "failed to count samples", logger.Error(err))
	}
	if s.deduper != nil {
		stats["submissionsTracked"] = s.deduper.Size()
	}
	return stats
}
