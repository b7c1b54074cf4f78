package persistence

import (
	"testing"

	"github.com/erp/reconciler/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupReconTestDB opens an in-memory SQLite database with every
// reconciliation table. One connection keeps transactions on the same
// in-memory database.
func setupReconTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.ERPOrderModel{},
		&models.OrderLinkModel{},
		&models.OrderLinkAuditModel{},
		&models.SettlementPaymentModel{},
		&models.FeeRuleSetModel{},
		&models.SyncRunModel{},
	))
	return db
}
