package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/monitoring"
	"github.com/sells-group/qbank-cli/internal/resilience"
	"github.com/sells-group/qbank-cli/internal/store"
)

func TestSummaryTable(t *testing.T) {
	sum := model.NewRunSummary("run-42")
	sum.Accepted = 5
	sum.Persisted = 4
	sum.Duplicates = 1
	sum.Reject(model.ReasonStemTruncated)
	sum.Reject(model.ReasonStemTruncated)
	sum.Reject(model.ReasonStemTooShort)
	sum.DurationMs = 1500

	out := summaryTable(sum)
	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, "persisted")
	assert.Contains(t, out, string(model.ReasonStemTruncated))
	assert.Contains(t, out, "1.5s")
	assert.Less(t,
		strings.Index(out, string(model.ReasonStemTooShort)),
		strings.Index(out, string(model.ReasonStemTruncated)),
		"reasons are sorted")
}

func TestPrintSummary_JSON(t *testing.T) {
	prev := jsonOutput
	jsonOutput = true
	t.Cleanup(func() { jsonOutput = prev })

	var buf bytes.Buffer
	require.NoError(t, printSummary(&buf, &model.RunSummary{RunID: "run-1", Persisted: 3}))

	var got model.RunSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 3, got.Persisted)
}

func TestRunsTable(t *testing.T) {
	out := runsTable([]model.Run{
		{ID: "run-a", Kind: model.RunKindImport, Status: model.RunStatusComplete, Summary: &model.RunSummary{DocumentsProcessed: 2, Persisted: 9}, CreatedAt: time.Now()},
		{ID: "run-b", Kind: model.RunKindAudit, Status: model.RunStatusRunning, CreatedAt: time.Now()},
	})
	assert.Contains(t, out, "run-a")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "9")
	assert.Contains(t, out, "run-b")
}

func TestDLQTable(t *testing.T) {
	out := dlqTable([]resilience.DLQEntry{{
		ID: "d1", Filename: "scan.pdf", Kind: model.ErrExtraction, Retryable: false,
		Attempts: 1, MaxAttempts: 3, Error: strings.Repeat("x", 100),
	}})
	assert.Contains(t, out, "scan.pdf")
	assert.Contains(t, out, "1/3")
	assert.Contains(t, out, "…")
}

func TestReportTable(t *testing.T) {
	out := reportTable(&monitoring.ConsistencyReport{
		Counts: &store.Counts{Documents: 3, Questions: 40},
		Discrepancies: []monitoring.Discrepancy{
			{Kind: monitoring.DiscrepancyOpenAuditFlags, Count: 2, Message: "2 audit flag(s) still open"},
		},
	})
	assert.Contains(t, out, "questions")
	assert.Contains(t, out, "40")
	assert.Contains(t, out, "open_audit_flags")
}

func TestRejectionsTable(t *testing.T) {
	out := rejectionsTable([]model.RejectionRecord{{
		DocumentTitle: "USP 2023", Number: 7, Reason: model.ReasonAlternativesSimilar, Source: "regex", StemExcerpt: "Paciente de 30 anos",
	}})
	assert.Contains(t, out, "USP 2023")
	assert.Contains(t, out, string(model.ReasonAlternativesSimilar))
}

func TestRenderTable_NoHeaders(t *testing.T) {
	assert.Empty(t, renderTable(nil, [][]string{{"a"}}, nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ção…", truncate("çãoxyz", 3))
}
