package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	localdb "github.com/iho/ledgersync/internal/infrastructure/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := localdb.Open(context.Background(), filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type seqIDs struct{ n int }

func (g *seqIDs) Generate() string {
	g.n++
	return string(rune('a'+g.n-1)) + "-id"
}
