package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/resilience"
	"github.com/sells-group/qbank-cli/internal/store"
)

// Runner drives runs over many documents and records them in the store.
type Runner struct {
	store       store.Store
	pipeline    *Pipeline
	concurrency int
}

// NewRunner creates a Runner. concurrency <= 0 processes one document at
// a time.
func NewRunner(st store.Store, p *Pipeline, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{store: st, pipeline: p, concurrency: concurrency}
}

// Import runs every source through the pipeline over a bounded worker pool.
// A failing document never aborts the run: it is counted, and extraction,
// structuring and quota failures are sent to the dead-letter queue.
func (r *Runner) Import(ctx context.Context, sources []model.Source) (*model.RunSummary, error) {
	run, err := r.store.CreateRun(ctx, model.RunKindImport)
	if err != nil {
		return nil, eris.Wrap(err, "runner: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("runner: import started",
		zap.Int("documents", len(sources)),
		zap.Int("concurrency", r.concurrency),
	)

	start := time.Now()
	total := model.NewRunSummary(run.ID)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, src := range sources {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			sum, docErr := r.pipeline.ProcessDocument(gctx, run.ID, src)

			mu.Lock()
			total.Merge(sum)
			mu.Unlock()

			if docErr != nil {
				r.handleFailure(gctx, run.ID, src, docErr)
				return nil
			}
			if src.DLQID != "" {
				if err := r.store.RemoveDLQ(gctx, src.DLQID); err != nil {
					log.Warn("runner: failed to clear dlq entry", zap.String("dlq_id", src.DLQID), zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	total.DurationMs = time.Since(start).Milliseconds()
	return total, r.finish(ctx, run.ID, total)
}

// handleFailure logs a document failure and dead-letters it when a replay
// could succeed or an operator should see it.
func (r *Runner) handleFailure(ctx context.Context, runID string, src model.Source, docErr error) {
	log := zap.L().With(zap.String("run_id", runID), zap.String("document", src.Filename))
	if ctx.Err() != nil {
		log.Warn("runner: document interrupted by cancellation", zap.Error(docErr))
		return
	}

	kind, _ := KindOf(docErr)
	log.Error("runner: document failed", zap.String("kind", string(kind)), zap.Error(docErr))
	if !shouldDeadLetter(docErr) {
		return
	}

	entry := resilience.DLQEntry{
		Filename:  src.Filename,
		Path:      src.Path,
		Kind:      kind,
		Error:     docErr.Error(),
		Retryable: IsRetryable(docErr) || resilience.IsTransient(docErr),
		RunID:     runID,
	}
	if err := r.store.EnqueueDLQ(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("runner: failed to enqueue dlq entry", zap.Error(err))
	}
}

// Audit audits the given documents and, when auto-fix is enabled, repairs
// what it finds.
func (r *Runner) Audit(ctx context.Context, documentIDs []string) (*model.RunSummary, error) {
	run, err := r.store.CreateRun(ctx, model.RunKindAudit)
	if err != nil {
		return nil, eris.Wrap(err, "runner: create run")
	}
	start := time.Now()
	total := model.NewRunSummary(run.ID)

	for _, id := range documentIDs {
		if ctx.Err() != nil {
			break
		}
		if err := r.pipeline.audit(ctx, run.ID, id, total); err != nil {
			zap.L().Warn("runner: audit interrupted", zap.String("document_id", id), zap.Error(err))
			break
		}
		total.DocumentsProcessed++
	}

	total.DurationMs = time.Since(start).Milliseconds()
	return total, r.finish(ctx, run.ID, total)
}

// RepairPending re-drives every open audit flag in its own audit run.
func (r *Runner) RepairPending(ctx context.Context) (*model.RunSummary, error) {
	fixer := r.pipeline.Fixer()
	if fixer == nil {
		return nil, eris.New("runner: auto-fix is disabled")
	}
	run, err := r.store.CreateRun(ctx, model.RunKindAudit)
	if err != nil {
		return nil, eris.Wrap(err, "runner: create run")
	}
	start := time.Now()

	total, fixErr := fixer.RepairPending(ctx, run.ID)
	if fixErr != nil && ctx.Err() == nil {
		total.DurationMs = time.Since(start).Milliseconds()
		r.fail(ctx, run.ID, total, fixErr)
		return total, fixErr
	}
	total.DurationMs = time.Since(start).Milliseconds()
	return total, r.finish(ctx, run.ID, total)
}

// finish persists the run outcome. A cancelled context marks the run
// cancelled and is returned as the run error.
func (r *Runner) finish(ctx context.Context, runID string, sum *model.RunSummary) error {
	logSummary(sum)
	if err := ctx.Err(); err != nil {
		r.fail(ctx, runID, sum, err)
		return eris.Wrap(err, "runner: run cancelled")
	}
	if err := r.store.CompleteRun(ctx, runID, sum); err != nil {
		return eris.Wrap(err, "runner: complete run")
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, runID string, sum *model.RunSummary, cause error) {
	if err := r.store.FailRun(context.WithoutCancel(ctx), runID, sum, cause); err != nil {
		zap.L().Warn("runner: failed to record run failure", zap.String("run_id", runID), zap.Error(err))
	}
}

func logSummary(s *model.RunSummary) {
	zap.L().Info("runner: run summary",
		zap.String("run_id", s.RunID),
		zap.Int("documents_processed", s.DocumentsProcessed),
		zap.Int("documents_failed", s.DocumentsFailed),
		zap.Int("documents_retryable", s.DocumentsRetryable),
		zap.Int("candidates_extracted", s.CandidatesExtracted),
		zap.Int("accepted", s.Accepted),
		zap.Int("rejected", s.Rejected),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("persisted", s.Persisted),
		zap.Int("answer_keys_normalized", s.AnswerKeysNormalized),
		zap.Int("answer_keys_applied", s.AnswerKeysApplied),
		zap.Int("structuring_failures", s.StructuringFailures),
		zap.Int("persistence_failures", s.PersistenceFailures),
		zap.Int("audit_findings", s.AuditFindings),
		zap.Int("repairs_applied", s.RepairsApplied),
		zap.Int("repair_failures", s.RepairFailures),
		zap.Float64("cost_usd", s.Usage.Cost),
		zap.Int64("duration_ms", s.DurationMs),
	)
}
