package model

import (
	"time"
)

// RunStatus represents the current state of an import or audit run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunKind distinguishes what a run did.
type RunKind string

const (
	RunKindImport RunKind = "import"
	RunKindAudit  RunKind = "audit"
)

// Run is one pipeline invocation over one or more documents.
type Run struct {
	ID        string      `json:"id"`
	Kind      RunKind     `json:"kind"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ReasonCode names why a candidate was rejected or a stored row flagged.
type ReasonCode string

const (
	ReasonStemTooShort        ReasonCode = "STEM_TOO_SHORT"
	ReasonStemTruncated       ReasonCode = "STEM_TRUNCATED"
	ReasonAlternativesMissing ReasonCode = "ALTERNATIVES_MISSING"
	ReasonAlternativesSimilar ReasonCode = "ALTERNATIVES_SIMILAR"
	ReasonAnswerKeyInvalid    ReasonCode = "ANSWER_KEY_INVALID"
)

// ErrorKind is the pipeline failure taxonomy.
type ErrorKind string

const (
	ErrExtraction  ErrorKind = "EXTRACTION_FAILURE"
	ErrStructuring ErrorKind = "STRUCTURING_FAILURE"
	ErrValidation  ErrorKind = "VALIDATION_REJECTION"
	ErrPersistence ErrorKind = "PERSISTENCE_FAILURE"
	ErrRepair      ErrorKind = "REPAIR_FAILURE"
)

// QuestionState is a candidate's position in the extraction lifecycle.
type QuestionState string

const (
	StateExtracted        QuestionState = "EXTRACTED"
	StateRejected         QuestionState = "REJECTED"
	StateAccepted         QuestionState = "ACCEPTED"
	StateDuplicateSkipped QuestionState = "DUPLICATE_SKIPPED"
	StatePersisted        QuestionState = "PERSISTED"
	StateClean            QuestionState = "CLEAN"
	StateFlagged          QuestionState = "FLAGGED"
	StateRepaired         QuestionState = "REPAIRED"
	StateRepairFailed     QuestionState = "REPAIR_FAILED"
)

// RejectionRecord is emitted for every candidate the quality gate rejects.
type RejectionRecord struct {
	RunID         string     `json:"run_id"`
	DocumentTitle string     `json:"document_title"`
	Number        int        `json:"number"`
	StemExcerpt   string     `json:"stem_excerpt"`
	Reason        ReasonCode `json:"reason"`
	Source        string     `json:"source,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// AuditFinding is a defect found in an already-persisted question.
type AuditFinding struct {
	QuestionID string     `json:"question_id"`
	Reason     ReasonCode `json:"reason"`
}

// AuditStatus is the persisted state of an audit flag.
type AuditStatus string

const (
	AuditStatusFlagged      AuditStatus = "flagged"
	AuditStatusRepaired     AuditStatus = "repaired"
	AuditStatusRepairFailed AuditStatus = "repair_failed"
)

// State maps the flag status onto the question lifecycle.
func (s AuditStatus) State() QuestionState {
	switch s {
	case AuditStatusRepaired:
		return StateRepaired
	case AuditStatusRepairFailed:
		return StateRepairFailed
	default:
		return StateFlagged
	}
}

// AuditFlag keeps a finding visible until it is repaired.
type AuditFlag struct {
	QuestionID string      `json:"question_id"`
	DocumentID string      `json:"document_id"`
	Reason     ReasonCode  `json:"reason"`
	Status     AuditStatus `json:"status"`
	Attempts   int         `json:"attempts"`
	LastError  string      `json:"last_error,omitempty"`
	RunID      string      `json:"run_id,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
