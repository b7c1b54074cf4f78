// Package erpsync pulls orders from the ERP and upserts the ones whose
// payload changed since the last run.
package erpsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/reconciler/internal/domain/erporder"
	"github.com/erp/reconciler/internal/domain/shared"
	"github.com/erp/reconciler/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidRange is returned when the requested period is empty or inverted
	ErrInvalidRange = errors.New("erpsync: invalid date range")
	// ErrRunInProgress is returned when another exclusive run holds the lock
	ErrRunInProgress = errors.New("erpsync: another sync run is in progress")
	// ErrRetriesExhausted wraps the last transient error of a page that kept failing
	ErrRetriesExhausted = errors.New("erpsync: retries exhausted")
)

const (
	lockKey         = "erpsync:run"
	maxFailureItems = 100
)

// Config tunes pacing, retries and chunking
type Config struct {
	PageSize   int
	WindowDays int
	// RequestInterval is the minimum delay between two ERP requests
	RequestInterval time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	// MaxRequests caps the ERP requests of one run; zero means unlimited
	MaxRequests int
	LockTTL     time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		PageSize:        100,
		WindowDays:      3,
		RequestInterval: 600 * time.Millisecond,
		MaxRetries:      5,
		InitialBackoff:  2 * time.Second,
		MaxBackoff:      30 * time.Second,
		LockTTL:         30 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.WindowDays <= 0 {
		c.WindowDays = d.WindowDays
	}
	if c.RequestInterval <= 0 {
		c.RequestInterval = d.RequestInterval
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.LockTTL <= 0 {
		c.LockTTL = d.LockTTL
	}
	return c
}

// ServiceConfig holds the collaborators of the sync service
type ServiceConfig struct {
	Source  erporder.Source
	Orders  erporder.Repository
	Runs    erporder.SyncRunRepository
	Lock    shared.RunLock
	// Events receives an OrderSynced event for every stored order that is
	// not linked yet; nil disables publishing
	Events  shared.EventPublisher
	Config  Config
	Logger  *zap.Logger
	Metrics *telemetry.ReconMetrics
	// Now is overridable in tests
	Now func() time.Time
}

// Service runs differential syncs
type Service struct {
	source  erporder.Source
	orders  erporder.Repository
	runs    erporder.SyncRunRepository
	lock    shared.RunLock
	events  shared.EventPublisher
	cfg     Config
	pacer   *rate.Limiter
	logger  *zap.Logger
	metrics *telemetry.ReconMetrics
	now     func() time.Time
}

// NewService creates a sync service
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	c := cfg.Config.withDefaults()
	return &Service{
		source:  cfg.Source,
		orders:  cfg.Orders,
		runs:    cfg.Runs,
		lock:    cfg.Lock,
		events:  cfg.Events,
		cfg:     c,
		pacer:   rate.NewLimiter(rate.Every(c.RequestInterval), 1),
		logger:  logger,
		metrics: cfg.Metrics,
		now:     now,
	}
}

// Request selects the period to sync. Dates are calendar days, both inclusive.
type Request struct {
	From       time.Time
	To         time.Time
	PageSize   int
	WindowDays int
	Trigger    string
	// Exclusive runs take the run lock so their counts are not skewed by a
	// concurrent run over the same rows
	Exclusive bool
}

// Failure describes a record or page that could not be synced
type Failure struct {
	Stage   string `json:"stage"`
	ERPID   int64  `json:"erp_id,omitempty"`
	Offset  int    `json:"offset"`
	Message string `json:"message"`
}

// Report summarizes one run
type Report struct {
	RunID      string                 `json:"run_id"`
	From       time.Time              `json:"from"`
	To         time.Time              `json:"to"`
	Status     erporder.SyncRunStatus `json:"status"`
	Processed  int                    `json:"processed"`
	Changed    int                    `json:"changed"`
	Unchanged  int                    `json:"unchanged"`
	Errored    int                    `json:"errored"`
	Pages      int                    `json:"pages"`
	Requests   int                    `json:"requests"`
	Windows    int                    `json:"windows"`
	Truncated  bool                   `json:"truncated"`
	Failures   []Failure              `json:"failures,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

func (r *Report) fail(f Failure) {
	r.Errored++
	if len(r.Failures) < maxFailureItems {
		r.Failures = append(r.Failures, f)
	}
}

type window struct {
	from time.Time
	to   time.Time
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// splitWindows cuts [from, to] into chunks of at most days calendar days
func splitWindows(from, to time.Time, days int) []window {
	var out []window
	for start := day(from); !start.After(day(to)); start = start.AddDate(0, 0, days) {
		end := start.AddDate(0, 0, days-1)
		if end.After(day(to)) {
			end = day(to)
		}
		out = append(out, window{from: start, to: end})
	}
	return out
}

// Run syncs every ERP order created in the requested period. Pages already
// committed stay committed when the run aborts, so a rerun resumes cheaply.
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	if req.From.IsZero() || req.To.IsZero() || day(req.To).Before(day(req.From)) {
		return nil, fmt.Errorf("%w: %s..%s", ErrInvalidRange, req.From.Format(time.DateOnly), req.To.Format(time.DateOnly))
	}
	if req.Trigger == "" {
		req.Trigger = "manual"
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "erp_sync", "run",
		telemetry.WithAttribute("trigger", req.Trigger),
		telemetry.WithAttribute("from", req.From.Format(time.DateOnly)),
		telemetry.WithAttribute("to", req.To.Format(time.DateOnly)),
	)
	defer span.End()

	if req.Exclusive && s.lock != nil {
		token, ok, err := s.lock.TryAcquire(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("erpsync: acquire run lock: %w", err)
		}
		if !ok {
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
				s.logger.Warn("Failed to release sync lock", zap.Error(err))
			}
		}()
	}

	run := erporder.NewSyncRun(req.Trigger, day(req.From), day(req.To))
	run.StartedAt = s.now()
	if s.runs != nil {
		if err := s.runs.Create(ctx, run); err != nil {
			s.logger.Warn("Failed to record sync run start", zap.Error(err))
		}
	}

	report := &Report{
		RunID:     run.ID.String(),
		From:      run.From,
		To:        run.To,
		StartedAt: run.StartedAt,
	}
	log := s.logger.With(zap.String("run_id", report.RunID), zap.String("trigger", req.Trigger))
	log.Info("Sync run started",
		zap.Time("from", report.From),
		zap.Time("to", report.To))

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = s.cfg.PageSize
	}
	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = s.cfg.WindowDays
	}

	runErr := s.sweep(ctx, log, report, splitWindows(req.From, req.To, windowDays), pageSize)

	report.FinishedAt = s.now()
	switch {
	case runErr != nil:
		report.Status = erporder.SyncRunFailed
		report.Error = runErr.Error()
		telemetry.RecordError(span, runErr)
	case report.Errored > 0 || report.Truncated:
		report.Status = erporder.SyncRunPartial
	default:
		report.Status = erporder.SyncRunSuccess
	}
	telemetry.SetAttributes(span,
		"processed", report.Processed,
		"changed", report.Changed,
		"unchanged", report.Unchanged,
		"errored", report.Errored,
	)

	s.finishRun(ctx, run, report)
	s.metrics.RecordSyncRun(ctx, string(report.Status), report.Processed, report.Changed, report.Unchanged, report.Errored,
		report.FinishedAt.Sub(report.StartedAt))

	fields := []zap.Field{
		zap.String("status", string(report.Status)),
		zap.Int("processed", report.Processed),
		zap.Int("changed", report.Changed),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("errored", report.Errored),
		zap.Int("requests", report.Requests),
	}
	if runErr != nil {
		log.Error("Sync run aborted", append(fields, zap.Error(runErr))...)
		return report, runErr
	}
	log.Info("Sync run finished", fields...)
	return report, nil
}

func (s *Service) finishRun(ctx context.Context, run *erporder.SyncRun, report *Report) {
	if s.runs == nil {
		return
	}
	finished := report.FinishedAt
	run.Status = report.Status
	run.Processed = report.Processed
	run.Changed = report.Changed
	run.Unchanged = report.Unchanged
	run.Errored = report.Errored
	run.Pages = report.Pages
	run.Requests = report.Requests
	run.Windows = report.Windows
	run.Error = report.Error
	run.FinishedAt = &finished
	if err := s.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("Failed to record sync run result", zap.String("run_id", report.RunID), zap.Error(err))
	}
}

func (s *Service) sweep(ctx context.Context, log *zap.Logger, report *Report, windows []window, pageSize int) error {
	for _, w := range windows {
		report.Windows++
		offset := 0
		for {
			if s.cfg.MaxRequests > 0 && report.Requests >= s.cfg.MaxRequests {
				report.Truncated = true
				log.Warn("Sync request budget exhausted",
					zap.Int("max_requests", s.cfg.MaxRequests),
					zap.Time("window_from", w.from),
					zap.Int("offset", offset))
				return nil
			}

			listReq := erporder.ListRequest{
				From:   w.from,
				To:     w.to,
				Limit:  pageSize,
				Offset: offset,
				Sort:   erporder.SortAsc,
			}
			page, err := s.fetchPage(ctx, log, report, listReq)
			if err != nil {
				return fmt.Errorf("erpsync: fetch window %s..%s offset %d: %w",
					w.from.Format(time.DateOnly), w.to.Format(time.DateOnly), offset, err)
			}
			if len(page.Items) == 0 {
				break
			}
			report.Pages++
			s.processPage(ctx, log, report, page.Items, offset)

			if !page.HasMore(listReq) {
				break
			}
			offset += len(page.Items)
		}
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, erporder.ErrRateLimited) ||
		errors.Is(err, erporder.ErrSourceUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// fetchPage requests one page, retrying the same page on transient failures
// with a capped exponential backoff
func (s *Service) fetchPage(ctx context.Context, log *zap.Logger, report *Report, req erporder.ListRequest) (*erporder.ListPage, error) {
	backoff := s.cfg.InitialBackoff
	for attempt := 0; ; attempt++ {
		if err := s.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		report.Requests++
		page, err := s.source.ListOrdersByPeriod(ctx, req)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		if attempt >= s.cfg.MaxRetries {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err)
		}
		log.Warn("ERP request failed, retrying",
			zap.Int("offset", req.Offset),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if err := sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) processPage(ctx context.Context, log *zap.Logger, report *Report, items []erporder.RemoteOrder, offset int) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if it.Native.ERPID > 0 {
			ids = append(ids, it.Native.ERPID)
		}
	}
	existing, err := s.orders.FindByERPIDs(ctx, ids)
	if err != nil {
		// without the stored hashes every record would count as changed
		log.Error("Failed to load stored orders for page", zap.Int("offset", offset), zap.Error(err))
		for _, it := range items {
			report.Processed++
			report.fail(Failure{Stage: "load", ERPID: it.Native.ERPID, Offset: offset, Message: err.Error()})
		}
		return
	}

	var synced []shared.DomainEvent
	for _, it := range items {
		report.Processed++
		if err := it.Validate(); err != nil {
			log.Warn("Skipping invalid ERP order",
				zap.Int64("erp_order_id", it.Native.ERPID),
				zap.Int("offset", offset),
				zap.Error(err))
			report.fail(Failure{Stage: "validate", ERPID: it.Native.ERPID, Offset: offset, Message: err.Error()})
			continue
		}

		hash, err := erporder.ContentHash(it.Raw)
		if err != nil {
			report.fail(Failure{Stage: "hash", ERPID: it.Native.ERPID, Offset: offset, Message: err.Error()})
			continue
		}

		stored := existing[it.Native.ERPID]
		if stored != nil && stored.ContentHash == hash {
			report.Unchanged++
			continue
		}

		merged := erporder.Merge(stored, it, hash, s.now())
		if err := s.orders.Upsert(ctx, merged); err != nil {
			log.Error("Failed to upsert ERP order",
				zap.Int64("erp_order_id", it.Native.ERPID),
				zap.Int("offset", offset),
				zap.Error(err))
			report.fail(Failure{Stage: "upsert", ERPID: it.Native.ERPID, Offset: offset, Message: err.Error()})
			continue
		}
		report.Changed++
		if merged.LinkStatus.State != erporder.LinkStateLinked {
			synced = append(synced, erporder.NewOrderSynced(merged, stored == nil, report.RunID, s.now()))
		}
	}

	if s.events != nil && len(synced) > 0 {
		if err := s.events.Publish(ctx, synced...); err != nil {
			log.Warn("Failed to publish synced orders",
				zap.Int("offset", offset),
				zap.Int("events", len(synced)),
				zap.Error(err))
		}
	}
}

// Runs lists the sync history, newest first
func (s *Service) Runs(ctx context.Context, filter shared.Filter) (shared.Paginated[erporder.SyncRun], error) {
	filter = filter.Normalize()
	if s.runs == nil {
		return shared.NewPaginated([]erporder.SyncRun{}, 0, filter.Page, filter.PageSize), nil
	}
	runs, total, err := s.runs.List(ctx, filter)
	if err != nil {
		return shared.Paginated[erporder.SyncRun]{}, fmt.Errorf("erpsync: list runs: %w", err)
	}
	return shared.NewPaginated(runs, total, filter.Page, filter.PageSize), nil
}
