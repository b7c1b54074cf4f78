package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/reconciler/internal/application/erpsync"
	"github.com/erp/reconciler/internal/application/linking"
	"github.com/erp/reconciler/internal/application/payments"
	"github.com/erp/reconciler/internal/domain/marketplace"
	"go.uber.org/zap"
)

// Job names, also used as profiling labels
const (
	JobERPSync  = "erp_sync"
	JobLinking  = "link_batch"
	JobPayments = "payment_resolution"
)

// SyncRunner runs a differential ERP sync
type SyncRunner interface {
	Run(ctx context.Context, req erpsync.Request) (*erpsync.Report, error)
}

// LinkBatchRunner retries unlinked orders
type LinkBatchRunner interface {
	ResolveBatch(ctx context.Context, req linking.BatchRequest) (*linking.BatchReport, error)
}

// PaymentRunner pulls and resolves settlement lines
type PaymentRunner interface {
	Pull(ctx context.Context, m marketplace.Marketplace, since time.Time) (*payments.IngestReport, error)
	Resolve(ctx context.Context, m marketplace.Marketplace) (*payments.ResolveReport, error)
}

// SyncJob syncs the orders created in the last lookbackDays days, today included
func SyncJob(runner SyncRunner, lookbackDays int, now func() time.Time, logger *zap.Logger) JobFunc {
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) error {
		to := now()
		from := to.AddDate(0, 0, -(lookbackDays - 1))
		report, err := runner.Run(ctx, erpsync.Request{
			From:      from,
			To:        to,
			Trigger:   "scheduler",
			Exclusive: true,
		})
		if errors.Is(err, erpsync.ErrRunInProgress) {
			logger.Info("Skipping scheduled sync, another run holds the lock")
			return nil
		}
		if err != nil {
			return fmt.Errorf("erp sync: %w", err)
		}
		logger.Info("Scheduled sync finished",
			zap.String("run_id", report.RunID),
			zap.String("status", string(report.Status)),
			zap.Int("processed", report.Processed),
			zap.Int("changed", report.Changed),
			zap.Int("errored", report.Errored),
		)
		return nil
	}
}

// LinkJob resolves a batch of unlinked and pending orders with the service defaults
func LinkJob(runner LinkBatchRunner) JobFunc {
	return func(ctx context.Context) error {
		if _, err := runner.ResolveBatch(ctx, linking.BatchRequest{}); err != nil {
			return fmt.Errorf("link batch: %w", err)
		}
		return nil
	}
}

// PaymentJob pulls new settlement lines when a feed is configured, then
// resolves unresolved payments, for every marketplace. A failure in one
// marketplace does not stop the others.
func PaymentJob(runner PaymentRunner, markets []marketplace.Marketplace, pull bool, logger *zap.Logger) JobFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) error {
		var errs []error
		for _, m := range markets {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			if pull {
				ingested, err := runner.Pull(ctx, m, time.Time{})
				switch {
				case errors.Is(err, payments.ErrFeedNotConfigured):
				case err != nil:
					errs = append(errs, fmt.Errorf("pull %s: %w", m, err))
				default:
					logger.Debug("Settlement lines pulled",
						zap.String("marketplace", string(m)),
						zap.Int("created", ingested.Created))
				}
			}
			resolved, err := runner.Resolve(ctx, m)
			if err != nil {
				errs = append(errs, fmt.Errorf("resolve %s: %w", m, err))
				continue
			}
			logger.Debug("Payments resolved",
				zap.String("marketplace", string(m)),
				zap.Int("resolved", resolved.Resolved),
				zap.Int("unmatched", resolved.Unmatched))
		}
		return errors.Join(errs...)
	}
}
