package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/resilience"
)

func TestRetryDLQ_ReplaysAndClears(t *testing.T) {
	useTestConfig(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "UNIFESP_2022.txt")
	writeFile(t, path, fiveQuestions)

	env, err := initPipeline(ctx, "import")
	require.NoError(t, err)
	defer env.Close()

	require.NoError(t, env.Store.EnqueueDLQ(ctx, resilience.DLQEntry{
		ID: "dlq-a", Filename: "UNIFESP_2022.txt", Path: path, Kind: model.ErrStructuring, Retryable: true,
	}))
	require.NoError(t, env.Store.EnqueueDLQ(ctx, resilience.DLQEntry{
		ID: "dlq-b", Filename: "lost.pdf", Kind: model.ErrExtraction, Retryable: true,
	}))

	sum, err := retryDLQ(ctx, env.Store, newSourceLoader(false), 10, env.Runner.Import)
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, 5, sum.Persisted)

	left, err := env.Store.ListDLQ(ctx, resilience.DLQFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "dlq-b", left[0].ID)
}

func TestRetryDLQ_NothingToReplay(t *testing.T) {
	useTestConfig(t)
	ctx := context.Background()
	st, err := openStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	sum, err := retryDLQ(ctx, st, newSourceLoader(false), 10, func(context.Context, []model.Source) (*model.RunSummary, error) {
		t.Fatal("import should not run")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, sum)
}
