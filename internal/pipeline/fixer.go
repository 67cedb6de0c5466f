package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/config"
	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/quality"
	"github.com/sells-group/qbank-cli/internal/store"
	"github.com/sells-group/qbank-cli/internal/structure"
)

const errNoFix = "repair: no fix returned for item"

// AutoFixer applies LLM repairs to flagged questions.
type AutoFixer struct {
	store       store.Store
	repairer    structure.Repairer
	gate        *quality.Gate
	batchSize   int
	maxAttempts int
}

// NewAutoFixer creates an AutoFixer.
func NewAutoFixer(st store.Store, repairer structure.Repairer, gate *quality.Gate, cfg config.AuditConfig) *AutoFixer {
	f := &AutoFixer{
		store:       st,
		repairer:    repairer,
		gate:        gate,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxRepairAttempts,
	}
	if f.batchSize <= 0 {
		f.batchSize = defaultAuditBatchSize
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = 3
	}
	return f
}

// Fix sends each batch for repair. A failed batch leaves its findings
// flagged and the fixer continues with the next one; only cancellation
// stops it early.
func (f *AutoFixer) Fix(ctx context.Context, runID string, batches [][]Finding) (*model.RunSummary, error) {
	sum := model.NewRunSummary(runID)
	log := zap.L().With(zap.String("run_id", runID))

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "fix: cancelled between batches")
		}
		batch = f.eligible(batch)
		if len(batch) == 0 {
			continue
		}

		items := make([]structure.RepairItem, len(batch))
		for j, fd := range batch {
			items[j] = structure.RepairItem{
				Index:      j,
				QuestionID: fd.QuestionID,
				Reason:     fd.Reason,
				Fields:     fd.Question.QuestionFields,
			}
		}

		res, err := f.repairer.Repair(ctx, items)
		if res != nil {
			sum.Usage.Add(res.Usage)
		}
		if err != nil {
			if ctx.Err() != nil {
				return sum, eris.Wrap(err, "fix: cancelled during repair")
			}
			log.Warn("fix: repair batch failed",
				zap.Int("batch", i),
				zap.Int("size", len(batch)),
				zap.Error(err),
			)
			for _, fd := range batch {
				sum.RepairFailures++
				f.record(ctx, runID, fd, fd.Status, fd.Reason, err.Error())
			}
			continue
		}

		for j, fd := range batch {
			patch, ok := res.Fixes[j]
			if !ok || patch.Empty() {
				f.record(ctx, runID, fd, fd.Status, fd.Reason, errNoFix)
				continue
			}
			f.apply(ctx, runID, fd, patch, sum)
		}
	}

	log.Info("fix: complete",
		zap.Int("repairs_applied", sum.RepairsApplied),
		zap.Int("repair_failures", sum.RepairFailures),
	)
	return sum, nil
}

// apply merges a fix into the stored row. The answer key is never taken
// from the fix.
func (f *AutoFixer) apply(ctx context.Context, runID string, fd Finding, patch model.QuestionPatch, sum *model.RunSummary) {
	merged := patch.Apply(fd.Question.QuestionFields)
	merged.CorrectOption = fd.Question.CorrectOption

	if reason, ok := f.gate.CheckFields(merged); !ok {
		sum.RepairFailures++
		f.record(ctx, runID, fd, model.AuditStatusRepairFailed, reason, "repair: still defective: "+string(reason))
		return
	}

	if err := f.store.UpdateQuestion(ctx, fd.QuestionID, merged); err != nil {
		sum.RepairFailures++
		msg := err.Error()
		if errors.Is(err, store.ErrNotFound) {
			msg = "repair: question no longer exists"
		}
		f.record(ctx, runID, fd, model.AuditStatusRepairFailed, fd.Reason, msg)
		return
	}

	sum.RepairsApplied++
	f.record(ctx, runID, fd, model.AuditStatusRepaired, fd.Reason, "")
	zap.L().Info("fix: question repaired",
		zap.String("run_id", runID),
		zap.String("question_id", fd.QuestionID),
		zap.String("reason", string(fd.Reason)),
	)
}

// record stores the outcome of one repair attempt.
func (f *AutoFixer) record(ctx context.Context, runID string, fd Finding, status model.AuditStatus, reason model.ReasonCode, lastErr string) {
	flag := model.AuditFlag{
		QuestionID: fd.QuestionID,
		DocumentID: fd.Question.DocumentID,
		Reason:     reason,
		Status:     status,
		Attempts:   fd.Attempts + 1,
		LastError:  lastErr,
		RunID:      runID,
	}
	if flag.Status == "" {
		flag.Status = model.AuditStatusFlagged
	}
	if err := f.store.UpsertAuditFlag(context.WithoutCancel(ctx), flag); err != nil {
		zap.L().Warn("fix: failed to record audit flag",
			zap.String("question_id", fd.QuestionID),
			zap.Error(err),
		)
	}
}

func (f *AutoFixer) eligible(batch []Finding) []Finding {
	out := batch[:0:0]
	for _, fd := range batch {
		if fd.Attempts >= f.maxAttempts {
			zap.L().Debug("fix: repair attempts exhausted, leaving for review",
				zap.String("question_id", fd.QuestionID),
				zap.Int("attempts", fd.Attempts),
			)
			continue
		}
		out = append(out, fd)
	}
	return out
}

// RepairPending re-drives every open audit flag. Rows that already pass
// the gate are closed without a repair call.
func (f *AutoFixer) RepairPending(ctx context.Context, runID string) (*model.RunSummary, error) {
	sum := model.NewRunSummary(runID)
	flags, err := f.store.ListAuditFlags(ctx, store.FlagFilter{Statuses: store.OpenFlagStatuses})
	if err != nil {
		return sum, eris.Wrap(err, "fix: list open flags")
	}

	var findings []Finding
	for _, flag := range flags {
		if flag.Attempts >= f.maxAttempts {
			continue
		}
		q, err := f.store.GetQuestion(ctx, flag.QuestionID)
		if err != nil {
			zap.L().Warn("fix: flagged question unavailable",
				zap.String("question_id", flag.QuestionID),
				zap.Error(err),
			)
			continue
		}
		reason, ok := f.gate.CheckFields(q.QuestionFields)
		if ok {
			flag.Status = model.AuditStatusRepaired
			flag.LastError = ""
			flag.RunID = runID
			if err := f.store.UpsertAuditFlag(ctx, flag); err != nil {
				return sum, eris.Wrapf(err, "fix: close flag %s", flag.QuestionID)
			}
			continue
		}
		findings = append(findings, Finding{
			AuditFinding: model.AuditFinding{QuestionID: q.ID, Reason: reason},
			Question:     *q,
			Status:       flag.Status,
			Attempts:     flag.Attempts,
		})
	}
	sum.AuditFindings = len(findings)

	fixSum, err := f.Fix(ctx, runID, Batch(findings, f.batchSize))
	sum.Merge(fixSum)
	return sum, err
}
