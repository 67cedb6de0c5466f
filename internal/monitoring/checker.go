package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/store"
)

// DiscrepancyKind names one referential-integrity check.
type DiscrepancyKind string

const (
	DiscrepancyEmptyDocuments    DiscrepancyKind = "processed_documents_without_questions"
	DiscrepancyMissingEmbeddings DiscrepancyKind = "questions_without_embeddings"
	DiscrepancyOrphanEmbeddings  DiscrepancyKind = "orphan_embeddings"
	DiscrepancyOrphanQuestions   DiscrepancyKind = "orphan_questions"
	DiscrepancyOpenAuditFlags    DiscrepancyKind = "open_audit_flags"
	DiscrepancyCountsUnavailable DiscrepancyKind = "counts_unavailable"
)

// Discrepancy is one mismatch found by the consistency check.
type Discrepancy struct {
	Kind    DiscrepancyKind `json:"kind"`
	Count   int             `json:"count"`
	Message string          `json:"message"`
}

// ConsistencyReport is the outcome of one read-only consistency pass.
type ConsistencyReport struct {
	Counts        *store.Counts `json:"counts,omitempty"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Error         string        `json:"error,omitempty"`
	CheckedAt     time.Time     `json:"checked_at"`
}

// OK reports whether the pass found nothing to look at.
func (r *ConsistencyReport) OK() bool {
	return r.Error == "" && len(r.Discrepancies) == 0
}

// Checker validates referential integrity across documents, questions and
// the embeddings index. It never writes.
type Checker struct {
	store store.Store
}

// NewChecker creates a consistency Checker.
func NewChecker(st store.Store) *Checker {
	return &Checker{store: st}
}

// Check reads the aggregate counts and reports every mismatch. Mismatches
// and store failures are logged and carried in the report, never returned
// as errors.
func (c *Checker) Check(ctx context.Context) *ConsistencyReport {
	report := &ConsistencyReport{
		Discrepancies: []Discrepancy{},
		CheckedAt:     time.Now().UTC(),
	}
	log := zap.L().With(zap.String("component", "monitoring.consistency"))

	counts, err := c.store.Counts(ctx)
	if err != nil {
		log.Error("monitoring: failed to read counts", zap.Error(err))
		report.Error = err.Error()
		report.Discrepancies = append(report.Discrepancies, Discrepancy{
			Kind:    DiscrepancyCountsUnavailable,
			Message: "store counts could not be read",
		})
		return report
	}
	report.Counts = counts
	report.Discrepancies = Discrepancies(counts)

	for _, d := range report.Discrepancies {
		log.Warn("monitoring: consistency discrepancy",
			zap.String("kind", string(d.Kind)),
			zap.Int("count", d.Count),
			zap.String("message", d.Message),
		)
	}
	log.Info("monitoring: consistency check complete",
		zap.Int("documents", counts.Documents),
		zap.Int("processed_documents", counts.ProcessedDocuments),
		zap.Int("questions", counts.Questions),
		zap.Int("embeddings", counts.Embeddings),
		zap.Int("discrepancies", len(report.Discrepancies)),
	)
	return report
}

// Discrepancies derives the mismatches implied by counts. Questions without
// embeddings only count once the embeddings index holds anything at all.
func Discrepancies(c *store.Counts) []Discrepancy {
	out := []Discrepancy{}
	add := func(kind DiscrepancyKind, n int, format string) {
		if n > 0 {
			out = append(out, Discrepancy{Kind: kind, Count: n, Message: fmt.Sprintf(format, n)})
		}
	}
	add(DiscrepancyEmptyDocuments, c.EmptyProcessedDocuments, "%d processed document(s) have no questions")
	if c.Embeddings > 0 {
		add(DiscrepancyMissingEmbeddings, c.QuestionsWithoutEmbeddings, "%d question(s) missing from the embeddings index")
	}
	add(DiscrepancyOrphanEmbeddings, c.OrphanEmbeddings, "%d embedding(s) reference no question")
	add(DiscrepancyOrphanQuestions, c.OrphanQuestions, "%d question(s) reference no document")
	add(DiscrepancyOpenAuditFlags, c.OpenFlags, "%d audit flag(s) still open")
	return out
}
