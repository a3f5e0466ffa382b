// Package testutil opens throwaway databases for tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/bursar/internal/config"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/database"
)

// NewDB returns a migrated in-memory sqlite database private to t.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}

	db, err := database.NewConnection(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, zap.NewNop()))

	t.Cleanup(func() {
		_ = database.Close(db, zap.NewNop())
	})

	return db
}
