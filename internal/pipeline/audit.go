package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/quality"
	"github.com/sells-group/qbank-cli/internal/store"
)

const defaultAuditBatchSize = 3

// Finding is an audit finding together with the stored row it refers to.
type Finding struct {
	model.AuditFinding
	Question model.StoredQuestion
	Status   model.AuditStatus
	Attempts int
}

// Auditor re-applies the structural gate rules to stored questions.
type Auditor struct {
	store     store.Store
	gate      *quality.Gate
	batchSize int
}

// NewAuditor creates an Auditor. batchSize <= 0 uses 3.
func NewAuditor(st store.Store, gate *quality.Gate, batchSize int) *Auditor {
	if batchSize <= 0 {
		batchSize = defaultAuditBatchSize
	}
	return &Auditor{store: st, gate: gate, batchSize: batchSize}
}

// Audit checks every stored question of a document. Each defective row is
// recorded as a flagged audit flag; rows that pass again close any open
// flag. Findings are returned in repair-sized batches.
func (a *Auditor) Audit(ctx context.Context, runID, documentID string) ([][]Finding, error) {
	questions, err := a.store.ListQuestionsByDocument(ctx, documentID)
	if err != nil {
		return nil, eris.Wrapf(err, "audit: list questions for %s", documentID)
	}
	existing, err := a.store.ListAuditFlags(ctx, store.FlagFilter{DocumentID: documentID})
	if err != nil {
		return nil, eris.Wrapf(err, "audit: list flags for %s", documentID)
	}
	flags := make(map[string]model.AuditFlag, len(existing))
	for _, f := range existing {
		flags[f.QuestionID] = f
	}

	var findings []Finding
	for _, q := range questions {
		prev, hadFlag := flags[q.ID]
		reason, ok := a.gate.CheckFields(q.QuestionFields)
		if ok {
			if hadFlag && prev.Status != model.AuditStatusRepaired {
				prev.Status = model.AuditStatusRepaired
				prev.LastError = ""
				prev.RunID = runID
				if err := a.store.UpsertAuditFlag(ctx, prev); err != nil {
					return nil, eris.Wrapf(err, "audit: close flag %s", q.ID)
				}
			}
			continue
		}

		status := model.AuditStatusFlagged
		if hadFlag && prev.Status == model.AuditStatusRepairFailed {
			status = prev.Status
		}
		flag := model.AuditFlag{
			QuestionID: q.ID,
			DocumentID: documentID,
			Reason:     reason,
			Status:     status,
			Attempts:   prev.Attempts,
			LastError:  prev.LastError,
			RunID:      runID,
		}
		if err := a.store.UpsertAuditFlag(ctx, flag); err != nil {
			return nil, eris.Wrapf(err, "audit: flag %s", q.ID)
		}
		zap.L().Info("audit: question flagged",
			zap.String("run_id", runID),
			zap.String("question_id", q.ID),
			zap.String("reason", string(reason)),
		)
		findings = append(findings, Finding{
			AuditFinding: model.AuditFinding{QuestionID: q.ID, Reason: reason},
			Question:     q,
			Status:       status,
			Attempts:     prev.Attempts,
		})
	}

	return Batch(findings, a.batchSize), nil
}

// Batch splits findings into groups of at most size.
func Batch(findings []Finding, size int) [][]Finding {
	if size <= 0 {
		size = defaultAuditBatchSize
	}
	var out [][]Finding
	for start := 0; start < len(findings); start += size {
		end := min(start+size, len(findings))
		out = append(out, findings[start:end])
	}
	return out
}

// CountFindings totals the findings across batches.
func CountFindings(batches [][]Finding) int {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	return n
}
