package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBInstrumentationConfig selects the GORM instrumentation to install.
type DBInstrumentationConfig struct {
	// Tracing registers otelgorm so every statement gets a span
	Tracing    bool
	LogFullSQL bool
	DBSystem   string
	// SlowQueryThreshold marks spans and counts slow statements (default 200ms)
	SlowQueryThreshold time.Duration
	// Meter enables query and pool metrics when set
	Meter             metric.Meter
	PoolStatsInterval time.Duration
}

// DBInstrumentation holds the query and pool instruments of one database.
type DBInstrumentation struct {
	cfg    DBInstrumentationConfig
	logger *zap.Logger
	sqlDB  *sql.DB

	queryTotal      *Counter
	queryDuration   *Histogram
	slowQueryTotal  *Counter
	poolConnections *Gauge

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type dbContextKey struct{}

// InstrumentDB installs tracing and metrics callbacks on db
func InstrumentDB(db *gorm.DB, cfg DBInstrumentationConfig, logger *zap.Logger) (*DBInstrumentation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	d := &DBInstrumentation{cfg: cfg, logger: logger, stopCh: make(chan struct{})}

	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
		if !cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return nil, err
		}
	}

	if cfg.Meter != nil {
		if err := d.createInstruments(cfg.Meter); err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		d.sqlDB = sqlDB
	}

	if err := d.registerCallbacks(db); err != nil {
		return nil, err
	}

	logger.Info("Database instrumentation enabled",
		zap.Bool("tracing", cfg.Tracing),
		zap.Bool("metrics", cfg.Meter != nil),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
	)
	return d, nil
}

func (d *DBInstrumentation) createInstruments(meter metric.Meter) error {
	var err error
	if d.queryTotal, err = NewCounter(meter, "db_query_total", "Database statements by operation", "{query}"); err != nil {
		return err
	}
	if d.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Statements slower than the threshold", "{query}"); err != nil {
		return err
	}
	if d.poolConnections, err = NewGauge(meter, "db_pool_connections", "Pool connections by state", "{connection}"); err != nil {
		return err
	}
	d.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	return err
}

func (d *DBInstrumentation) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	ops := []struct {
		name   string
		before func(name string, fn func(*gorm.DB)) error
		after  func(name string, fn func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, op := range ops {
		if err := op.before("recon:before_"+op.name, d.before); err != nil {
			return err
		}
		if err := op.after("recon:after_"+op.name, d.afterFor(op.name)); err != nil {
			return err
		}
	}
	return nil
}

func (d *DBInstrumentation) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, dbContextKey{}, time.Now())
	}
}

func (d *DBInstrumentation) afterFor(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		start, ok := ctx.Value(dbContextKey{}).(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)
		slow := elapsed > d.cfg.SlowQueryThreshold
		failed := db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound)

		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
			if failed {
				span.SetStatus(codes.Error, db.Error.Error())
				span.RecordError(db.Error)
			}
			if slow {
				span.SetAttributes(
					attribute.Bool("db.slow_query", true),
					attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
				)
			}
		}

		if d.queryTotal == nil {
			return
		}
		attrs := []attribute.KeyValue{AttrDBOperation.String(operation), AttrDBTable.String(db.Statement.Table)}
		d.queryTotal.Add(ctx, 1, attrs...)
		d.queryDuration.RecordDuration(ctx, elapsed, attrs...)
		if slow {
			d.slowQueryTotal.Add(ctx, 1, attrs...)
			d.logger.Warn("Slow query",
				zap.String("operation", operation),
				zap.String("table", db.Statement.Table),
				zap.Duration("elapsed", elapsed),
			)
		}
	}
}

// StartPoolStats samples the connection pool until Stop or ctx is done
func (d *DBInstrumentation) StartPoolStats(ctx context.Context) {
	if d.poolConnections == nil || d.sqlDB == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.cfg.PoolStatsInterval)
		defer ticker.Stop()
		for {
			d.collectPoolStats(ctx)
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (d *DBInstrumentation) collectPoolStats(ctx context.Context) {
	stats := d.sqlDB.Stats()
	d.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	d.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	d.poolConnections.Record(ctx, int64(stats.MaxOpenConnections), AttrDBState.String("max"))
}

// Stop ends pool sampling; safe to call more than once
func (d *DBInstrumentation) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}
