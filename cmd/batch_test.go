package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qbank-cli/internal/model"
)

func TestAcquireBatchLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.lock")

	unlock, err := acquireBatchLock(path)
	require.NoError(t, err)

	_, err = acquireBatchLock(path)
	assert.ErrorContains(t, err, "another batch holds")

	unlock()
	unlock2, err := acquireBatchLock(path)
	require.NoError(t, err)
	unlock2()
}

func TestProcessBatch_AppliesLimit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "b.txt"), "b")
	writeFile(t, filepath.Join(dir, "c.pdf"), "%PDF")

	var got []model.Source
	sum, err := processBatch(context.Background(), dir, 2, func(_ context.Context, sources []model.Source) (*model.RunSummary, error) {
		got = sources
		return model.NewRunSummary("run-1"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", sum.RunID)
	require.Len(t, got, 2)
	assert.Equal(t, "a.txt", got[0].Filename)
	assert.Equal(t, "b", got[1].Text)
}

func TestProcessBatch_EmptyDir(t *testing.T) {
	called := false
	sum, err := processBatch(context.Background(), t.TempDir(), 0, func(context.Context, []model.Source) (*model.RunSummary, error) {
		called = true
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, sum)
	assert.False(t, called)
}

func TestProcessBatch_ImportsIntoStore(t *testing.T) {
	useTestConfig(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "UNIFESP_2022.txt"), fiveQuestions)
	writeFile(t, filepath.Join(dir, "empty.txt"), "")

	env, err := initPipeline(ctx, "import")
	require.NoError(t, err)
	defer env.Close()

	sum, err := processBatch(ctx, dir, 0, env.Runner.Import)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.DocumentsProcessed)
	assert.Equal(t, 1, sum.DocumentsFailed)
	assert.Equal(t, 5, sum.Persisted)

	n, err := env.Store.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
