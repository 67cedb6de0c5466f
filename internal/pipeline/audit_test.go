package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/quality"
	"github.com/sells-group/qbank-cli/internal/store"
)

func defectiveFields(stem string) model.QuestionFields {
	return model.QuestionFields{
		Stem:          stem,
		OptionA:       "Amoxicilina",
		OptionB:       "Ceftriaxona",
		OptionC:       "Azitromicina",
		OptionD:       "Levofloxacino",
		CorrectOption: "C",
	}
}

// seedDefective stores one clean question and n truncated ones.
func seedDefective(t *testing.T, st store.Store, n int) *model.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := st.UpsertDocument(ctx, "Auditoria 2024", model.DocumentMeta{})
	require.NoError(t, err)

	_, err = st.InsertQuestion(ctx, doc.ID, defectiveFields("Paciente de 30 anos com pneumonia comunitária sem comorbidades."))
	require.NoError(t, err)
	stems := []string{
		"paciente de 41 anos com tosse produtiva e febre há cinco dias.",
		"mulher de 52 anos com dispneia e estertores em base direita.",
		"criança de 8 anos com febre, tosse e taquipneia há dois dias.",
		"idoso de 80 anos com confusão mental e febre há um dia apenas.",
	}
	for i := 0; i < n; i++ {
		_, err := st.InsertQuestion(ctx, doc.ID, defectiveFields(stems[i]))
		require.NoError(t, err)
	}
	return doc
}

func newAuditor(st store.Store) *Auditor {
	return NewAuditor(st, quality.NewGate(testConfig().Quality), 3)
}

func newFixer(st store.Store, r *fakeRepairer) *AutoFixer {
	return NewAutoFixer(st, r, quality.NewGate(testConfig().Quality), testConfig().Audit)
}

func flagsByQuestion(t *testing.T, st store.Store, docID string) map[string]model.AuditFlag {
	t.Helper()
	flags, err := st.ListAuditFlags(context.Background(), store.FlagFilter{DocumentID: docID})
	require.NoError(t, err)
	out := make(map[string]model.AuditFlag, len(flags))
	for _, f := range flags {
		out[f.QuestionID] = f
	}
	return out
}

func TestAuditor_FlagsDefectiveRowsInBatches(t *testing.T) {
	st := newTestStore(t)
	doc := seedDefective(t, st, 4)

	batches, err := newAuditor(st).Audit(context.Background(), "run-a", doc.ID)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 1)
	assert.Equal(t, 4, CountFindings(batches))
	for _, b := range batches {
		for _, fd := range b {
			assert.Equal(t, model.ReasonStemTruncated, fd.Reason)
			assert.Equal(t, model.AuditStatusFlagged, fd.Status)
		}
	}

	flags := flagsByQuestion(t, st, doc.ID)
	assert.Len(t, flags, 4)
}

func TestAutoFixer_PartialFixesLeaveMissingIndexFlagged(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	doc := seedDefective(t, st, 3)
	auditor := newAuditor(st)

	batches, err := auditor.Audit(ctx, "run-a", doc.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 3)

	repairer := &fakeRepairer{responses: []repairResponse{{fixes: map[int]model.QuestionPatch{
		0: {Stem: ptr("Paciente de 41 anos com tosse produtiva, febre e calafrios há cinco dias.")},
		2: {Stem: ptr("Criança de 8 anos com febre alta, tosse seca e taquipneia há dois dias.")},
	}}}}
	sum, err := newFixer(st, repairer).Fix(ctx, "run-a", batches)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.RepairsApplied)
	assert.Zero(t, sum.RepairFailures)
	assert.Equal(t, 10, sum.Usage.InputTokens)

	require.Len(t, repairer.calls, 1)
	items := repairer.calls[0]
	require.Len(t, items, 3)

	untouched, err := st.GetQuestion(ctx, items[1].QuestionID)
	require.NoError(t, err)
	assert.Equal(t, items[1].Fields.Stem, untouched.Stem)

	flags := flagsByQuestion(t, st, doc.ID)
	assert.Equal(t, model.AuditStatusRepaired, flags[items[0].QuestionID].Status)
	assert.Equal(t, model.AuditStatusFlagged, flags[items[1].QuestionID].Status)
	assert.Equal(t, errNoFix, flags[items[1].QuestionID].LastError)
	assert.Equal(t, model.AuditStatusRepaired, flags[items[2].QuestionID].Status)

	repaired, err := st.GetQuestion(ctx, items[0].QuestionID)
	require.NoError(t, err)
	assert.Equal(t, "C", repaired.CorrectOption)
	assert.Equal(t, model.StemHash(repaired.Stem), repaired.StemHash)

	// Repaired rows pass a second audit; only the unrepaired row is found.
	again, err := auditor.Audit(ctx, "run-b", doc.ID)
	require.NoError(t, err)
	require.Equal(t, 1, CountFindings(again))
	assert.Equal(t, items[1].QuestionID, again[0][0].QuestionID)
	assert.Equal(t, 1, again[0][0].Attempts)
}

func TestAutoFixer_FailedBatchStaysFlaggedAndNextBatchRuns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	doc := seedDefective(t, st, 4)

	batches, err := newAuditor(st).Audit(ctx, "run-a", doc.ID)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	repairer := &fakeRepairer{responses: []repairResponse{
		{err: errors.New("structure: parse repair response: no JSON array")},
		{fixes: map[int]model.QuestionPatch{
			0: {Stem: ptr("Idoso de 80 anos com confusão mental aguda e febre baixa há um dia.")},
		}},
	}}
	sum, err := newFixer(st, repairer).Fix(ctx, "run-a", batches)
	require.NoError(t, err)
	assert.Len(t, repairer.calls, 2)
	assert.Equal(t, 3, sum.RepairFailures)
	assert.Equal(t, 1, sum.RepairsApplied)

	flags := flagsByQuestion(t, st, doc.ID)
	for _, fd := range batches[0] {
		f := flags[fd.QuestionID]
		assert.Equal(t, model.AuditStatusFlagged, f.Status)
		assert.Equal(t, 1, f.Attempts)
		assert.Contains(t, f.LastError, "no JSON array")
	}
	assert.Equal(t, model.AuditStatusRepaired, flags[batches[1][0].QuestionID].Status)
}

func TestAutoFixer_StillDefectiveBecomesRepairFailed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	doc := seedDefective(t, st, 1)

	batches, err := newAuditor(st).Audit(ctx, "run-a", doc.ID)
	require.NoError(t, err)

	repairer := &fakeRepairer{responses: []repairResponse{{fixes: map[int]model.QuestionPatch{
		0: {OptionB: ptr("amoxicilina.")},
	}}}}
	sum, err := newFixer(st, repairer).Fix(ctx, "run-a", batches)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.RepairFailures)

	id := batches[0][0].QuestionID
	flag := flagsByQuestion(t, st, doc.ID)[id]
	assert.Equal(t, model.AuditStatusRepairFailed, flag.Status)
	assert.Equal(t, model.ReasonStemTruncated, flag.Reason)

	q, err := st.GetQuestion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ceftriaxona", q.OptionB)

	// A later audit keeps the terminal status visible.
	again, err := newAuditor(st).Audit(ctx, "run-b", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AuditStatusRepairFailed, again[0][0].Status)
	assert.Equal(t, model.AuditStatusRepairFailed, flagsByQuestion(t, st, doc.ID)[id].Status)
}

func TestAutoFixer_RepairPending(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	doc := seedDefective(t, st, 2)

	batches, err := newAuditor(st).Audit(ctx, "run-a", doc.ID)
	require.NoError(t, err)
	require.Len(t, batches[0], 2)

	// One row is corrected out of band; it closes without a repair call.
	manual := batches[0][0].Question
	manual.Stem = "Paciente de 41 anos com tosse produtiva, febre e dor pleurítica."
	require.NoError(t, st.UpdateQuestion(ctx, manual.ID, manual.QuestionFields))

	other := batches[0][1]
	repairer := &fakeRepairer{responses: []repairResponse{{fixes: map[int]model.QuestionPatch{
		0: {Stem: ptr("Mulher de 52 anos com dispneia progressiva e estertores em base direita.")},
	}}}}
	sum, err := newFixer(st, repairer).RepairPending(ctx, "run-p")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.AuditFindings)
	assert.Equal(t, 1, sum.RepairsApplied)
	require.Len(t, repairer.calls, 1)
	require.Len(t, repairer.calls[0], 1)
	assert.Equal(t, other.QuestionID, repairer.calls[0][0].QuestionID)

	flags := flagsByQuestion(t, st, doc.ID)
	assert.Equal(t, model.AuditStatusRepaired, flags[manual.ID].Status)
	assert.Equal(t, "run-p", flags[manual.ID].RunID)
	assert.Equal(t, model.AuditStatusRepaired, flags[other.QuestionID].Status)
}

func TestAutoFixer_SkipsExhaustedAttempts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	doc := seedDefective(t, st, 1)

	batches, err := newAuditor(st).Audit(ctx, "run-a", doc.ID)
	require.NoError(t, err)
	batches[0][0].Attempts = 3

	repairer := &fakeRepairer{}
	sum, err := newFixer(st, repairer).Fix(ctx, "run-a", batches)
	require.NoError(t, err)
	assert.Empty(t, repairer.calls)
	assert.Zero(t, sum.RepairFailures)
}

func TestAutoFixer_CancelledBetweenBatches(t *testing.T) {
	st := newTestStore(t)
	doc := seedDefective(t, st, 1)
	batches, err := newAuditor(st).Audit(context.Background(), "run-a", doc.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newFixer(st, &fakeRepairer{}).Fix(ctx, "run-a", batches)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatch(t *testing.T) {
	findings := make([]Finding, 7)
	batches := Batch(findings, 3)
	require.Len(t, batches, 3)
	assert.Len(t, batches[2], 1)
	assert.Empty(t, Batch(nil, 3))
	assert.Len(t, Batch(findings, 0), 3)
}
