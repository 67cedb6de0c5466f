package monitoring

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/qbank-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitoring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// countsStore serves canned counts and nothing else.
type countsStore struct {
	store.Store
	counts *store.Counts
	err    error
}

func (s *countsStore) Counts(_ context.Context) (*store.Counts, error) {
	return s.counts, s.err
}
