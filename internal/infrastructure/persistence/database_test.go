package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

// newPingedMockDatabase wraps a sqlmock connection that records pings. gorm
// pings once while opening, which is expected here.
func newPingedMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	gormDB, err := Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), nil)
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

func TestOpen(t *testing.T) {
	t.Run("applies the settings the stores rely on", func(t *testing.T) {
		db, err := Open(sqlite.Open(":memory:"), nil)
		require.NoError(t, err)

		assert.True(t, db.Config.SkipDefaultTransaction)
		assert.True(t, db.Config.TranslateError)
		assert.Equal(t, time.UTC, db.Config.NowFunc().Location())
		assert.NotNil(t, db.Config.Logger)
	})
}

func TestNewDatabase(t *testing.T) {
	t.Run("fails when the server cannot be reached", func(t *testing.T) {
		cfg := &config.DatabaseConfig{
			Host:         "127.0.0.1",
			Port:         1,
			User:         "hr",
			Password:     "hr",
			DBName:       "hr",
			SSLMode:      "disable",
			MaxOpenConns: 5,
			MaxIdleConns: 1,
		}

		db, err := NewDatabase(cfg, zap.NewNop(), "silent")

		assert.Nil(t, db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to")
	})
}

func TestDatabase_Ping(t *testing.T) {
	t.Run("healthy connection", func(t *testing.T) {
		db, mock, mockDB := newPingedMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing()

		assert.NoError(t, db.Ping(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports the driver error", func(t *testing.T) {
		db, mock, mockDB := newPingedMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		err := db.Ping(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestDatabase_Stats(t *testing.T) {
	db, _, mockDB := newPingedMockDatabase(t)
	defer mockDB.Close()
	mockDB.SetMaxOpenConns(7)

	stats, err := db.Stats()

	require.NoError(t, err)
	assert.Equal(t, 7, stats.MaxOpenConnections)
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newPingedMockDatabase(t)

	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
