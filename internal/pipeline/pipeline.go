package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/config"
	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/ocr"
	"github.com/sells-group/qbank-cli/internal/quality"
	"github.com/sells-group/qbank-cli/internal/store"
	"github.com/sells-group/qbank-cli/internal/structure"
)

// Pipeline runs one document through extraction, structuring, the quality
// gate, dedup, persistence and the audit pass, strictly in that order.
type Pipeline struct {
	store      store.Store
	extractor  ocr.Extractor
	structurer structure.Strategy
	gate       *quality.Gate
	catalog    *Catalog
	auditor    *Auditor
	fixer      *AutoFixer
}

// New creates a Pipeline. extractor may be nil when only pre-extracted text
// is imported; repairer may be nil to skip the auto-fix pass.
func New(
	cfg *config.Config,
	st store.Store,
	extractor ocr.Extractor,
	structurer structure.Strategy,
	repairer structure.Repairer,
	catalog *Catalog,
) *Pipeline {
	gate := quality.NewGate(cfg.Quality)
	p := &Pipeline{
		store:      st,
		extractor:  extractor,
		structurer: structurer,
		gate:       gate,
		catalog:    catalog,
		auditor:    NewAuditor(st, gate, cfg.Audit.BatchSize),
	}
	if cfg.Audit.AutoFix && repairer != nil {
		p.fixer = NewAutoFixer(st, repairer, gate, cfg.Audit)
	}
	return p
}

// Auditor returns the pipeline's auditor.
func (p *Pipeline) Auditor() *Auditor { return p.auditor }

// Fixer returns the auto-fixer, or nil when auto-fix is disabled.
func (p *Pipeline) Fixer() *AutoFixer { return p.fixer }

// ProcessDocument imports one source. The returned summary is never nil and
// holds whatever was counted before a failure. A document is only marked
// processed when every stage ran to completion.
func (p *Pipeline) ProcessDocument(ctx context.Context, runID string, src model.Source) (*model.RunSummary, error) {
	sum := model.NewRunSummary(runID)
	title, meta := InferMetadata(src.Filename, p.catalog)
	log := zap.L().With(zap.String("run_id", runID), zap.String("document", title))

	if err := ctx.Err(); err != nil {
		return sum, eris.Wrap(err, "pipeline: cancelled before document")
	}

	// Extraction
	in := structure.Input{Title: title, Text: src.Text, PDF: src.PDF}
	if !in.HasText() && len(src.PDF) > 0 && p.extractor != nil {
		text, err := p.extractor.ExtractText(ctx, src.PDF)
		if err != nil {
			log.Warn("pipeline: text extraction failed", zap.Error(err))
		}
		in.Text = text
	}
	if !p.structurer.Available(in) {
		sum.ExtractionFailures++
		sum.DocumentsFailed++
		log.Error("pipeline: no usable text or document for any strategy")
		return sum, stageErr(model.ErrExtraction, eris.Errorf("pipeline: nothing extractable in %s", src.Filename))
	}

	// Structuring
	res, structErr := p.structurer.Structure(ctx, in)
	if res != nil {
		sum.StructuringFailures += res.FailedChunks
		sum.Usage.Add(res.Usage)
	}
	var candidates []model.CandidateQuestion
	if res != nil {
		candidates = res.Candidates
	}
	retryable := IsRetryable(structErr)
	switch {
	case structErr == nil:
	case retryable:
		log.Warn("pipeline: structuring paused on provider quota",
			zap.Int("partial_candidates", len(candidates)), zap.Error(structErr))
	case errors.Is(structErr, context.Canceled), errors.Is(structErr, context.DeadlineExceeded):
		return sum, structErr
	default:
		sum.DocumentsFailed++
		log.Error("pipeline: structuring failed", zap.Error(structErr))
		return sum, stageErr(model.ErrStructuring, structErr)
	}
	sum.CandidatesExtracted = len(candidates)
	if len(src.AnswerKey) > 0 {
		sum.AnswerKeysApplied = ApplyAnswerKey(candidates, src.AnswerKey)
		log.Info("pipeline: official answer key applied",
			zap.Int("key_entries", len(src.AnswerKey)),
			zap.Int("overridden", sum.AnswerKeysApplied),
		)
	}

	// Document link precedes any question insert.
	doc, err := p.store.UpsertDocument(ctx, title, meta)
	if err != nil {
		sum.DocumentsFailed++
		return sum, stageErr(model.ErrPersistence, err)
	}

	// Gate, dedup, persist
	if err := p.persist(ctx, runID, doc, candidates, sum); err != nil {
		return sum, err
	}

	// Audit and repair
	if err := p.audit(ctx, runID, doc.ID, sum); err != nil {
		return sum, err
	}

	if retryable {
		sum.DocumentsRetryable++
		return sum, stageErr(model.ErrStructuring, structErr)
	}

	if err := p.store.MarkDocumentProcessed(ctx, doc.ID); err != nil {
		sum.DocumentsFailed++
		return sum, stageErr(model.ErrPersistence, err)
	}
	sum.DocumentsProcessed++

	if len(candidates) == 0 {
		log.Warn("pipeline: document yielded no candidates")
	}
	log.Info("pipeline: document imported",
		zap.String("strategy", strategyName(res)),
		zap.Int("candidates", sum.CandidatesExtracted),
		zap.Int("accepted", sum.Accepted),
		zap.Int("rejected", sum.Rejected),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("persisted", sum.Persisted),
		zap.Int("audit_findings", sum.AuditFindings),
	)
	return sum, nil
}

func (p *Pipeline) persist(ctx context.Context, runID string, doc *model.Document, candidates []model.CandidateQuestion, sum *model.RunSummary) error {
	log := zap.L().With(zap.String("run_id", runID), zap.String("document", doc.Title))
	var rejections []model.RejectionRecord

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			p.flushRejections(ctx, rejections)
			return eris.Wrap(err, "pipeline: cancelled while persisting")
		}

		v := p.gate.Evaluate(c)
		if !v.Accepted {
			sum.Reject(v.Reason)
			log.Info("pipeline: candidate rejected",
				zap.Int("number", c.Number),
				zap.String("reason", string(v.Reason)),
				zap.String("source", c.Source),
				zap.String("stem_excerpt", store.Excerpt(c.Stem)),
			)
			rejections = append(rejections, model.RejectionRecord{
				RunID:         runID,
				DocumentTitle: doc.Title,
				Number:        c.Number,
				StemExcerpt:   store.Excerpt(c.Stem),
				Reason:        v.Reason,
				Source:        c.Source,
			})
			continue
		}
		sum.Accepted++
		if v.AnswerKeyNormalized {
			sum.AnswerKeysNormalized++
			log.Debug("pipeline: answer key normalized",
				zap.Int("number", c.Number),
				zap.String("original", c.CorrectOption),
				zap.String("normalized", v.Candidate.CorrectOption),
			)
		}

		fields := v.Candidate.Fields()
		existing, err := p.store.FindQuestionByStem(ctx, model.StemHash(fields.Stem))
		if err != nil {
			sum.PersistenceFailures++
			log.Warn("pipeline: dedup lookup failed", zap.Int("number", c.Number), zap.Error(err))
			continue
		}
		if existing != nil {
			sum.Duplicates++
			continue
		}

		if _, err := p.store.InsertQuestion(ctx, doc.ID, fields); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				sum.Duplicates++
				continue
			}
			sum.PersistenceFailures++
			log.Warn("pipeline: insert failed", zap.Int("number", c.Number), zap.Error(err))
			continue
		}
		sum.Persisted++
	}

	p.flushRejections(ctx, rejections)
	return nil
}

func (p *Pipeline) flushRejections(ctx context.Context, recs []model.RejectionRecord) {
	if len(recs) == 0 {
		return
	}
	if err := p.store.RecordRejections(context.WithoutCancel(ctx), recs); err != nil {
		zap.L().Warn("pipeline: failed to record rejections", zap.Int("count", len(recs)), zap.Error(err))
	}
}

func (p *Pipeline) audit(ctx context.Context, runID, documentID string, sum *model.RunSummary) error {
	batches, err := p.auditor.Audit(ctx, runID, documentID)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		zap.L().Warn("pipeline: audit failed", zap.String("document_id", documentID), zap.Error(err))
		return nil
	}
	sum.AuditFindings += CountFindings(batches)

	if p.fixer == nil || len(batches) == 0 {
		return nil
	}
	fixSum, err := p.fixer.Fix(ctx, runID, batches)
	sum.Merge(fixSum)
	return err
}

// ApplyAnswerKey overwrites each candidate's answer with the official letter
// for its number and returns how many answers changed.
func ApplyAnswerKey(candidates []model.CandidateQuestion, key model.AnswerKey) int {
	changed := 0
	for i := range candidates {
		letter, ok := key[candidates[i].Number]
		if !ok {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(candidates[i].CorrectOption), letter) {
			changed++
		}
		candidates[i].CorrectOption = letter
	}
	return changed
}

func strategyName(res *structure.Result) string {
	if res == nil {
		return ""
	}
	return strings.TrimSpace(res.Strategy)
}
