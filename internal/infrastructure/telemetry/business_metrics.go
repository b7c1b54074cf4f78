package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ReconMetrics tracks sync runs, link outcomes, fee computations and
// settlement ingestion. All Record methods are safe on a nil receiver so
// services can run without metrics.
type ReconMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	syncRunsTotal          *Counter
	syncOrdersTotal        *Counter
	linkOutcomesTotal      *Counter
	feeComputationsTotal   *Counter
	paymentsIngestedTotal  *Counter
	discrepanciesTotal     *Counter
	syncRunDurationSeconds *Histogram

	// Gauge metrics (point-in-time values)
	pendingLinks       *Gauge
	unresolvedPayments *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	backlogProvider BacklogProvider
}

// BacklogProvider reports the work still waiting for the resolvers.
// It keeps the telemetry layer independent of the persistence layer.
type BacklogProvider interface {
	// PendingLinksByState counts ERP orders per link state, excluding linked ones
	PendingLinksByState(ctx context.Context) (map[string]int64, error)
	// UnresolvedPaymentsByMarketplace counts settlement lines without an ERP order
	UnresolvedPaymentsByMarketplace(ctx context.Context) (map[string]int64, error)
}

// ReconMetricsConfig holds configuration for reconciliation metrics.
type ReconMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	BacklogProvider BacklogProvider
}

// NewReconMetrics creates a new ReconMetrics instance.
func NewReconMetrics(cfg ReconMetricsConfig) (*ReconMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rm := &ReconMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		backlogProvider: cfg.BacklogProvider,
	}

	counters := []struct {
		dst               **Counter
		name, desc, units string
	}{
		{&rm.syncRunsTotal, "recon_sync_runs_total", "Total number of ERP sync runs", "{runs}"},
		{&rm.syncOrdersTotal, "recon_sync_orders_total", "ERP orders processed by sync runs", "{orders}"},
		{&rm.linkOutcomesTotal, "recon_link_outcomes_total", "Order linking attempts by outcome", "{attempts}"},
		{&rm.feeComputationsTotal, "recon_fee_computations_total", "Fee computations by outcome", "{computations}"},
		{&rm.paymentsIngestedTotal, "recon_payments_ingested_total", "Settlement lines ingested", "{payments}"},
		{&rm.discrepanciesTotal, "recon_discrepancies_total", "Reconciliation discrepancies found", "{discrepancies}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.desc, c.units)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	var err error
	rm.syncRunDurationSeconds, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "recon_sync_run_duration_seconds",
		Description: "Duration of ERP sync runs",
		Unit:        "s",
		Boundaries:  SyncRunDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	rm.pendingLinks, err = NewGauge(cfg.Meter, "recon_pending_links", "ERP orders waiting for a marketplace link", "{orders}")
	if err != nil {
		return nil, err
	}
	rm.unresolvedPayments, err = NewGauge(cfg.Meter, "recon_unresolved_payments", "Settlement lines without an ERP order", "{payments}")
	if err != nil {
		return nil, err
	}

	return rm, nil
}

// =============================================================================
// Sync Metrics
// =============================================================================

// RecordSyncRun records the result of one ERP sync run.
func (rm *ReconMetrics) RecordSyncRun(ctx context.Context, status string, processed, changed, unchanged, errored int, d time.Duration) {
	if rm == nil {
		return
	}
	rm.syncRunsTotal.Inc(ctx, AttrRunStatus.String(status))
	for outcome, n := range map[string]int{"changed": changed, "unchanged": unchanged, "errored": errored} {
		if n > 0 {
			rm.syncOrdersTotal.Add(ctx, int64(n), AttrOutcome.String(outcome))
		}
	}
	rm.syncRunDurationSeconds.RecordDuration(ctx, d, AttrRunStatus.String(status))
	rm.logger.Debug("Sync run recorded",
		zap.String("status", status),
		zap.Int("processed", processed),
		zap.Duration("duration", d))
}

// =============================================================================
// Linking Metrics
// =============================================================================

// RecordLinkOutcome records one resolution attempt.
func (rm *ReconMetrics) RecordLinkOutcome(ctx context.Context, marketplace, state, reason string) {
	if rm == nil {
		return
	}
	rm.linkOutcomesTotal.Inc(ctx,
		AttrMarketplace.String(marketplace),
		AttrLinkState.String(state),
		AttrLinkReason.String(reason),
	)
}

// =============================================================================
// Fee and Settlement Metrics
// =============================================================================

// RecordFeeComputation records a fee computation; outcome is "computed" or the failure kind.
func (rm *ReconMetrics) RecordFeeComputation(ctx context.Context, marketplace, outcome string) {
	if rm == nil {
		return
	}
	rm.feeComputationsTotal.Inc(ctx,
		AttrMarketplace.String(marketplace),
		AttrOutcome.String(outcome),
	)
}

// RecordPaymentsIngested records settlement lines stored and skipped as duplicates.
func (rm *ReconMetrics) RecordPaymentsIngested(ctx context.Context, marketplace string, created, duplicates int) {
	if rm == nil {
		return
	}
	if created > 0 {
		rm.paymentsIngestedTotal.Add(ctx, int64(created),
			AttrMarketplace.String(marketplace), AttrOutcome.String("created"))
	}
	if duplicates > 0 {
		rm.paymentsIngestedTotal.Add(ctx, int64(duplicates),
			AttrMarketplace.String(marketplace), AttrOutcome.String("duplicate"))
	}
}

// RecordDiscrepancies records discrepancy counts keyed by kind.
func (rm *ReconMetrics) RecordDiscrepancies(ctx context.Context, marketplace string, counts map[string]int) {
	if rm == nil {
		return
	}
	for kind, n := range counts {
		if n == 0 {
			continue
		}
		rm.discrepanciesTotal.Add(ctx, int64(n),
			AttrMarketplace.String(marketplace), AttrKind.String(kind))
	}
}

// =============================================================================
// Backlog Gauges
// =============================================================================

// RecordPendingLinks records the number of orders in a non-linked state.
func (rm *ReconMetrics) RecordPendingLinks(ctx context.Context, state string, count int64) {
	if rm == nil {
		return
	}
	rm.pendingLinks.Record(ctx, count, AttrLinkState.String(state))
}

// RecordUnresolvedPayments records the number of unresolved settlement lines.
func (rm *ReconMetrics) RecordUnresolvedPayments(ctx context.Context, marketplace string, count int64) {
	if rm == nil {
		return
	}
	rm.unresolvedPayments.Record(ctx, count, AttrMarketplace.String(marketplace))
}

// StartPeriodicCollection starts periodic collection of the backlog gauges.
// This is non-blocking - use Stop() to stop collection.
func (rm *ReconMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if rm == nil {
		return
	}
	rm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go rm.runPeriodicCollection(ctx, interval)
	})
}

func (rm *ReconMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rm.collectBacklog(ctx)

	for {
		select {
		case <-rm.stopChan:
			rm.logger.Info("Stopping periodic backlog metrics collection")
			return
		case <-ctx.Done():
			rm.logger.Info("Context cancelled, stopping periodic backlog metrics collection")
			return
		case <-ticker.C:
			rm.collectBacklog(ctx)
		}
	}
}

func (rm *ReconMetrics) collectBacklog(ctx context.Context) {
	if rm.backlogProvider == nil {
		rm.logger.Debug("No backlog provider configured, skipping backlog metrics collection")
		return
	}

	pending, err := rm.backlogProvider.PendingLinksByState(ctx)
	if err != nil {
		rm.logger.Warn("Failed to count pending links", zap.Error(err))
	} else {
		for state, n := range pending {
			rm.RecordPendingLinks(ctx, state, n)
		}
	}

	unresolved, err := rm.backlogProvider.UnresolvedPaymentsByMarketplace(ctx)
	if err != nil {
		rm.logger.Warn("Failed to count unresolved payments", zap.Error(err))
	} else {
		for m, n := range unresolved {
			rm.RecordUnresolvedPayments(ctx, m, n)
		}
	}
}

// Stop stops the periodic collection.
func (rm *ReconMetrics) Stop() {
	if rm == nil {
		return
	}
	rm.stopOnce.Do(func() {
		close(rm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewReconMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
