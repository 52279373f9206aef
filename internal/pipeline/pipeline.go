package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/couchcryptid/sonde-etl/internal/domain"
	"github.com/couchcryptid/sonde-etl/internal/observability"
	"github.com/couchcryptid/sonde-etl/internal/registry"
)

// ErrCycleFailed wraps the last fetch error once the retry policy is exhausted.
var ErrCycleFailed = errors.New("ingestion cycle failed")

// geocodeRetryCycles is how many cycles pass before failed launch-site
// lookups are attempted again.
const geocodeRetryCycles = 12

// Fetcher retrieves the delimited text payload for a query.
type Fetcher interface {
	Fetch(ctx context.Context, q domain.Query) (string, error)
}

// Publisher receives the full set of snapshots after every successful cycle.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, snapshots []domain.SondeState) error
}

// Config parameterizes the cycle controller.
type Config struct {
	Query        domain.Query
	PollInterval time.Duration
	FetchTimeout time.Duration
	Retry        RetryPolicy
	Location     *time.Location
	Clock        clockwork.Clock
}

// Pipeline runs sequential fetch-normalize-merge-publish cycles against a registry.
type Pipeline struct {
	fetcher    Fetcher
	registry   *registry.Registry
	geocoder   domain.Geocoder
	publishers []Publisher
	cfg        Config
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer

	ready  atomic.Bool
	cycles int

	mu     sync.RWMutex
	status domain.CycleStatus
}

// New creates a Pipeline. Pass a nil geocoder to disable launch-site geocoding.
func New(fetcher Fetcher, reg *registry.Registry, geocoder domain.Geocoder, publishers []Publisher, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	return &Pipeline{
		fetcher:    fetcher,
		registry:   reg,
		geocoder:   geocoder,
		publishers: publishers,
		cfg:        cfg,
		clock:      cfg.Clock,
		logger:     logger,
		metrics:    metrics,
		tracer:     otel.Tracer(observability.TracerName),
	}
}

// CheckReadiness returns nil once a cycle has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no ingestion cycle has completed yet")
	}
	return nil
}

// Status returns the outcome of the most recent cycle.
func (p *Pipeline) Status() domain.CycleStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Run executes one cycle immediately and then one per poll interval until
// ctx is cancelled. A cycle never starts before the previous one returns.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"poll_interval", p.cfg.PollInterval,
		"query_filter", p.cfg.Query.Filter,
		"publishers", len(p.publishers),
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	ticker := p.clock.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil && ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// RunOnce performs a single ingestion cycle. When every fetch attempt fails
// the registry is left untouched and the error wraps ErrCycleFailed.
func (p *Pipeline) RunOnce(ctx context.Context) (domain.CycleStatus, error) {
	start := p.clock.Now()
	status := domain.CycleStatus{CycleID: uuid.NewString(), StartedAt: start}
	logger := p.logger.With("cycle_id", status.CycleID)

	ctx, span := p.tracer.Start(ctx, "ingest.cycle", trace.WithAttributes(
		attribute.String("cycle_id", status.CycleID),
		attribute.String("query_filter", p.cfg.Query.Filter),
	))
	defer span.End()
	p.cycles++

	text, attempts, err := p.fetch(ctx, logger)
	status.Attempts = attempts
	if err != nil {
		status.FinishedAt = p.clock.Now()
		status.Sondes = p.registry.Len()
		status.Message = fmt.Sprintf("fetch failed after %d attempt(s): %v", attempts, err)
		p.setStatus(status)

		p.metrics.Cycles.WithLabelValues("failure").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		if ctx.Err() == nil {
			logger.Error("ingestion cycle failed", "attempts", attempts, "error", err)
		}
		return status, fmt.Errorf("%w: %w", ErrCycleFailed, err)
	}

	batch := p.merge(ctx, text, logger)
	status.Rows = batch.Rows
	status.Accepted = batch.Accepted()
	status.Rejected = len(batch.Rejected)

	evicted := p.registry.EvictStale(p.clock.Now())
	if len(evicted) > 0 {
		p.metrics.SondesEvicted.Add(float64(len(evicted)))
		logger.Info("evicted finished sondes", "sonde_ids", evicted)
	}
	status.Evicted = len(evicted)

	p.geocodeLaunchSites(ctx, logger)

	snapshots := p.registry.Snapshots("", true)
	status.Sondes = len(snapshots)
	p.metrics.SondesTracked.Set(float64(len(snapshots)))
	p.publish(ctx, snapshots, logger)

	status.OK = true
	status.FinishedAt = p.clock.Now()
	status.Message = fmt.Sprintf("merged %d of %d rows for %d sondes", status.Accepted, status.Rows, status.Sondes)
	p.setStatus(status)
	p.ready.Store(true)

	p.metrics.Cycles.WithLabelValues("success").Inc()
	p.metrics.CycleDuration.Observe(status.FinishedAt.Sub(start).Seconds())
	span.SetAttributes(
		attribute.Int("rows", status.Rows),
		attribute.Int("rejected", status.Rejected),
		attribute.Int("sondes", status.Sondes),
	)
	logger.Info("ingestion cycle complete",
		"attempts", attempts,
		"rows", status.Rows,
		"accepted", status.Accepted,
		"rejected", status.Rejected,
		"sondes", status.Sondes,
		"evicted", status.Evicted,
	)
	return status, nil
}

// fetch runs the retry policy. It returns the payload and the number of
// attempts made.
func (p *Pipeline) fetch(ctx context.Context, logger *slog.Logger) (string, int, error) {
	maxAttempts := p.cfg.Retry.attempts()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := p.fetchAttempt(ctx, attempt)
		if err == nil {
			p.metrics.FetchAttempts.WithLabelValues("success").Inc()
			return text, attempt, nil
		}
		lastErr = err
		p.metrics.FetchAttempts.WithLabelValues(fetchOutcome(err)).Inc()

		if ctx.Err() != nil {
			return "", attempt, ctx.Err()
		}
		if attempt == maxAttempts {
			return "", attempt, lastErr
		}

		delay := p.cfg.Retry.Delay(attempt)
		logger.Warn("fetch attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err,
		)
		if !sleepWithContext(ctx, p.clock, delay) {
			return "", attempt, ctx.Err()
		}
	}
	return "", maxAttempts, lastErr
}

func (p *Pipeline) fetchAttempt(ctx context.Context, attempt int) (string, error) {
	ctx, span := p.tracer.Start(ctx, "ingest.fetch", trace.WithAttributes(attribute.Int("attempt", attempt)))
	defer span.End()

	attemptCtx, cancel := clockwork.WithTimeout(ctx, p.clock, p.cfg.FetchTimeout)
	defer cancel()

	text, err := p.fetcher.Fetch(attemptCtx, p.cfg.Query)
	if err != nil {
		if deadlineExceeded(attemptCtx) && !errors.Is(err, domain.ErrFetchTimeout) {
			err = fmt.Errorf("%w: %w", domain.ErrFetchTimeout, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return "", err
	}
	span.SetAttributes(attribute.Int("bytes", len(text)))
	return text, nil
}

// merge normalizes the payload and folds every accepted sample into the registry.
func (p *Pipeline) merge(ctx context.Context, text string, logger *slog.Logger) domain.Batch {
	_, span := p.tracer.Start(ctx, "ingest.merge")
	defer span.End()

	batch := domain.Normalize(text, domain.NormalizeOptions{
		Filter:   p.cfg.Query.Filter,
		Location: p.cfg.Location,
	})
	p.metrics.RowsParsed.Add(float64(batch.Rows))

	for _, r := range batch.Rejected {
		p.metrics.RowsRejected.WithLabelValues(rejectionReason(r.Reason)).Inc()
		logger.Debug("row rejected", "line", r.Line, "sonde_id", r.ID, "reason", r.Reason)
	}

	for _, sb := range batch.Sondes {
		for _, sample := range sb.Samples {
			res := p.registry.Merge(sb.ID, sample)
			p.metrics.SamplesMerged.Inc()
			if res.Appended {
				p.metrics.HistoryPointsAppended.Inc()
			}
			if res.Created {
				logger.Info("tracking new sonde", "sonde_id", sb.ID)
			}
		}
	}

	span.SetAttributes(
		attribute.Int("sondes", len(batch.Sondes)),
		attribute.Int("accepted", batch.Accepted()),
	)
	return batch
}

// geocodeLaunchSites resolves launch places outside the registry lock and
// writes the result back.
func (p *Pipeline) geocodeLaunchSites(ctx context.Context, logger *slog.Logger) {
	if p.geocoder == nil {
		return
	}
	retryFailed := p.cycles%geocodeRetryCycles == 0

	for _, s := range p.registry.Snapshots("", false) {
		if retryFailed {
			domain.RetryFailedGeocoding(&s)
		}
		if !domain.NeedsLaunchGeocoding(&s) {
			continue
		}
		domain.EnrichLaunchSite(ctx, &s, p.geocoder, logger)
		p.registry.Update(s.ID, func(live *domain.SondeState) {
			live.LaunchPlace = s.LaunchPlace
			live.GeoSource = s.GeoSource
		})
	}
}

// publish hands snapshots to every publisher. Failures are logged and counted only.
func (p *Pipeline) publish(ctx context.Context, snapshots []domain.SondeState, logger *slog.Logger) {
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, snapshots); err != nil {
			p.metrics.PublishErrors.WithLabelValues(pub.Name()).Inc()
			logger.Error("publish failed", "sink", pub.Name(), "sondes", len(snapshots), "error", err)
		}
	}
}

func (p *Pipeline) setStatus(s domain.CycleStatus) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// deadlineExceeded checks ctx without blocking on a context that is still live.
func deadlineExceeded(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return errors.Is(ctx.Err(), context.DeadlineExceeded)
	default:
		return false
	}
}

func fetchOutcome(err error) string {
	var httpErr *domain.FetchHTTPError
	switch {
	case errors.Is(err, domain.ErrFetchTimeout):
		return "timeout"
	case errors.As(err, &httpErr):
		return "http_error"
	default:
		return "error"
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingCoordinates):
		return "missing_coordinates"
	case errors.Is(err, domain.ErrUnparsableTimestamp):
		return "unparsable_timestamp"
	case errors.Is(err, domain.ErrFilteredOut):
		return "filtered_out"
	default:
		return "malformed_row"
	}
}
