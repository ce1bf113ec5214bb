// Package sqlitetest opens migrated throwaway databases for tests.
package sqlitetest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/coop-approvals/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/coop-approvals/migrations"
	"github.com/garyjia/coop-approvals/pkg/database"
)

// Open returns a migrated database in t's temp dir, closed on cleanup
func Open(t testing.TB) *sqlite.DB {
	t.Helper()

	logger := zap.NewNop()
	raw, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "approvals.db"),
		MaxOpenConns: 4,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	require.NoError(t, database.NewMigrator(raw, logger).Run(migrations.FS))
	return sqlite.NewDB(raw.DB, logger)
}
