// Package store persists documents, questions, audit state, runs and the
// dead-letter queue. SQLite and Postgres implementations share one
// contract.
package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/resilience"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicate is returned by InsertQuestion when the stem hash is
	// already stored.
	ErrDuplicate = eris.New("store: duplicate question")
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Kind   model.RunKind   `json:"kind,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// RejectionFilter specifies criteria for listing rejection records.
type RejectionFilter struct {
	RunID string
	Limit int
}

// FlagFilter specifies criteria for listing audit flags. An empty
// Statuses matches every status.
type FlagFilter struct {
	DocumentID string
	Statuses   []model.AuditStatus
	Limit      int
}

// Counts are the aggregate figures the consistency checker compares.
type Counts struct {
	Documents                  int `json:"documents"`
	ProcessedDocuments         int `json:"processed_documents"`
	Questions                  int `json:"questions"`
	Embeddings                 int `json:"embeddings"`
	EmptyProcessedDocuments    int `json:"empty_processed_documents"`
	QuestionsWithoutEmbeddings int `json:"questions_without_embeddings"`
	OrphanEmbeddings           int `json:"orphan_embeddings"`
	OrphanQuestions            int `json:"orphan_questions"`
	OpenFlags                  int `json:"open_flags"`
}

// Store defines the persistence interface for the question pipeline.
type Store interface {
	// Documents
	UpsertDocument(ctx context.Context, title string, meta model.DocumentMeta) (*model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, limit int) ([]model.Document, error)
	MarkDocumentProcessed(ctx context.Context, id string) error

	// Questions
	FindQuestionByStem(ctx context.Context, stemHash string) (*model.StoredQuestion, error)
	InsertQuestion(ctx context.Context, documentID string, f model.QuestionFields) (*model.StoredQuestion, error)
	UpdateQuestion(ctx context.Context, id string, f model.QuestionFields) error
	GetQuestion(ctx context.Context, id string) (*model.StoredQuestion, error)
	ListQuestionsByDocument(ctx context.Context, documentID string) ([]model.StoredQuestion, error)

	// Rejections
	RecordRejections(ctx context.Context, recs []model.RejectionRecord) error
	ListRejections(ctx context.Context, filter RejectionFilter) ([]model.RejectionRecord, error)

	// Audit flags
	UpsertAuditFlag(ctx context.Context, flag model.AuditFlag) error
	ListAuditFlags(ctx context.Context, filter FlagFilter) ([]model.AuditFlag, error)

	// Runs
	CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, summary *model.RunSummary, cause error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Dead-letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Consistency
	Counts(ctx context.Context) (*Counts, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// failedStatus maps a run failure cause onto a terminal status.
func failedStatus(cause error) model.RunStatus {
	if errors.Is(cause, context.Canceled) {
		return model.RunStatusCancelled
	}
	return model.RunStatusFailed
}

func causeMessage(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

// OpenFlagStatuses are the audit states still awaiting a repair.
var OpenFlagStatuses = []model.AuditStatus{model.AuditStatusFlagged, model.AuditStatusRepairFailed}

const excerptLen = 120

// Excerpt shortens a stem for rejection records.
func Excerpt(stem string) string {
	r := []rune(stem)
	if len(r) <= excerptLen {
		return stem
	}
	return string(r[:excerptLen]) + "…"
}
