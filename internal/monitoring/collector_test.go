package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/resilience"
)

func TestCollector_Collect(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ok, err := st.CreateRun(ctx, model.RunKindImport)
	require.NoError(t, err)
	sum := model.NewRunSummary(ok.ID)
	sum.Usage.Cost = 1.25
	sum.Rejected = 3
	sum.RepairFailures = 1
	require.NoError(t, st.CompleteRun(ctx, ok.ID, sum))

	bad, err := st.CreateRun(ctx, model.RunKindImport)
	require.NoError(t, err)
	badSum := model.NewRunSummary(bad.ID)
	badSum.DocumentsFailed = 2
	require.NoError(t, st.FailRun(ctx, bad.ID, badSum, errors.New("store unavailable")))

	stopped, err := st.CreateRun(ctx, model.RunKindAudit)
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, stopped.ID, nil, context.Canceled))

	_, err = st.CreateRun(ctx, model.RunKindAudit)
	require.NoError(t, err)

	require.NoError(t, st.EnqueueDLQ(ctx, resilience.DLQEntry{Filename: "scan.pdf", Kind: model.ErrExtraction, Error: "no text"}))

	snap, err := NewCollector(st).Collect(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsCancelled)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.InDelta(t, 0.5, snap.FailRate, 0.0001)
	assert.InDelta(t, 1.25, snap.CostUSD, 0.0001)
	assert.Equal(t, 2, snap.DocumentsFailed)
	assert.Equal(t, 1, snap.RepairFailures)
	assert.Equal(t, 3, snap.RejectedCandidates)
	assert.Equal(t, 1, snap.DLQDepth)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollector_ExcludesRunsOutsideWindow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, err := st.CreateRun(ctx, model.RunKindImport)
	require.NoError(t, err)

	c := NewCollector(st)
	c.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	snap, err := c.Collect(ctx, 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.FailRate)
}
