package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupMockGormStore wires a GormStore directly onto a sqlmock-backed
// gorm.DB, skipping NewGormStore's AutoMigrate (sqlmock has no schema to
// introspect against). Grounded on internal/database/pool_test.go's
// setupTestDB.
func setupMockGormStore(t *testing.T) (sqlmock.Sqlmock, *GormStore) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	dialector := postgres.New(postgres.Config{Conn: mockDB})
	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	return mock, &GormStore{db: gormDB, logger: zap.NewNop()}
}

func TestGormStore_PingSucceeds(t *testing.T) {
	mock, store := setupMockGormStore(t)

	mock.ExpectPing()

	err := store.Ping(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_PingFailsOnDeadConnection(t *testing.T) {
	mock, store := setupMockGormStore(t)

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)

	err := store.Ping(context.Background())
	assert.Error(t, err)
}

func TestGormStore_Close(t *testing.T) {
	mock, store := setupMockGormStore(t)

	mock.ExpectClose()

	err := store.Close()
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
