package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/reconciler/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}),
		&gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return &Database{DB: gormDB}, mock, mockDB
}

func TestDatabase_Ping(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing()
		assert.NoError(t, db.Ping(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unreachable", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		err := db.Ping(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "persistence: ping")
	})
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newMockDatabase(t)

	mock.ExpectClose()
	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_VerifySchema(t *testing.T) {
	t.Run("migrated", func(t *testing.T) {
		db := &Database{DB: setupReconTestDB(t)}
		assert.NoError(t, db.VerifySchema(context.Background()))
	})

	t.Run("empty database", func(t *testing.T) {
		gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		require.NoError(t, err)
		require.NoError(t, gormDB.Exec("CREATE TABLE erp_orders (erp_id INTEGER PRIMARY KEY)").Error)

		err = (&Database{DB: gormDB}).VerifySchema(context.Background())
		require.ErrorIs(t, err, ErrSchemaNotMigrated)
		assert.NotContains(t, err.Error(), "erp_orders")
		assert.Contains(t, err.Error(), "order_links")
		assert.Contains(t, err.Error(), "sync_runs")
	})

	t.Run("missing later column", func(t *testing.T) {
		gormDB := setupReconTestDB(t)
		require.NoError(t, gormDB.Migrator().DropColumn(&models.SettlementPaymentModel{}, "resolve_attempted_at"))

		err := (&Database{DB: gormDB}).VerifySchema(context.Background())
		require.ErrorIs(t, err, ErrSchemaNotMigrated)
		assert.Contains(t, err.Error(), "settlement_payments.resolve_attempted_at")
	})
}
