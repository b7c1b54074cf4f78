package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/reconciler/internal/infrastructure/config"
	"github.com/erp/reconciler/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrSchemaNotMigrated is returned by VerifySchema when a table is missing
var ErrSchemaNotMigrated = errors.New("persistence: schema not migrated")

// Database wraps the GORM handle shared by the repositories
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the Postgres connection pool. gormLogger may be nil to
// silence statement logging.
func NewDatabase(cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("persistence: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("persistence: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	d := &Database{DB: db}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Ping(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Close closes the connection pool
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("persistence: underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks that the database answers within ctx
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("persistence: underlying sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("persistence: ping: %w", err)
	}
	return nil
}

// reconciliationTables lists what the migrations create, in migration order
var reconciliationTables = []interface{ TableName() string }{
	models.ERPOrderModel{},
	models.OrderLinkModel{},
	models.OrderLinkAuditModel{},
	models.SettlementPaymentModel{},
	models.FeeRuleSetModel{},
	models.SyncRunModel{},
}

// VerifySchema fails with ErrSchemaNotMigrated when a reconciliation table is
// missing. The server never migrates on its own; cmd/migrate does.
func (d *Database) VerifySchema(ctx context.Context) error {
	migrator := d.DB.WithContext(ctx).Migrator()
	var missing []string
	for _, m := range reconciliationTables {
		if !migrator.HasTable(m.TableName()) {
			missing = append(missing, m.TableName())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing tables %v", ErrSchemaNotMigrated, missing)
	}
	for _, c := range laterColumns {
		if !migrator.HasColumn(c.model, c.column) {
			return fmt.Errorf("%w: missing column %s.%s", ErrSchemaNotMigrated, c.model.TableName(), c.column)
		}
	}
	return nil
}

// laterColumns were added to existing tables by later migrations
var laterColumns = []struct {
	model  interface{ TableName() string }
	column string
}{
	{&models.SettlementPaymentModel{}, "resolve_attempted_at"},
}
