package model

// RunSummary aggregates the outcome counts of a run. It is emitted for
// every run, success or not.
type RunSummary struct {
	RunID string `json:"run_id"`

	DocumentsProcessed int `json:"documents_processed"`
	DocumentsFailed    int `json:"documents_failed"`
	DocumentsRetryable int `json:"documents_retryable"`

	CandidatesExtracted  int                `json:"candidates_extracted"`
	Accepted             int                `json:"accepted"`
	Rejected             int                `json:"rejected"`
	RejectedByReason     map[ReasonCode]int `json:"rejected_by_reason,omitempty"`
	AnswerKeysNormalized int                `json:"answer_keys_normalized"`
	AnswerKeysApplied    int                `json:"answer_keys_applied"`
	Duplicates           int                `json:"duplicates"`
	Persisted            int                `json:"persisted"`

	ExtractionFailures  int `json:"extraction_failures"`
	StructuringFailures int `json:"structuring_failures"`
	PersistenceFailures int `json:"persistence_failures"`

	AuditFindings  int `json:"audit_findings"`
	RepairsApplied int `json:"repairs_applied"`
	RepairFailures int `json:"repair_failures"`

	Usage      TokenUsage `json:"usage"`
	DurationMs int64      `json:"duration_ms"`
}

// NewRunSummary returns an empty summary for the given run.
func NewRunSummary(runID string) *RunSummary {
	return &RunSummary{RunID: runID, RejectedByReason: make(map[ReasonCode]int)}
}

// Reject counts one rejection under its reason code.
func (s *RunSummary) Reject(reason ReasonCode) {
	if s.RejectedByReason == nil {
		s.RejectedByReason = make(map[ReasonCode]int)
	}
	s.Rejected++
	s.RejectedByReason[reason]++
}

// Merge adds the counts of other into s. RunID and duration are kept.
func (s *RunSummary) Merge(other *RunSummary) {
	if other == nil {
		return
	}
	s.DocumentsProcessed += other.DocumentsProcessed
	s.DocumentsFailed += other.DocumentsFailed
	s.DocumentsRetryable += other.DocumentsRetryable
	s.CandidatesExtracted += other.CandidatesExtracted
	s.Accepted += other.Accepted
	s.Rejected += other.Rejected
	for reason, n := range other.RejectedByReason {
		if s.RejectedByReason == nil {
			s.RejectedByReason = make(map[ReasonCode]int)
		}
		s.RejectedByReason[reason] += n
	}
	s.AnswerKeysNormalized += other.AnswerKeysNormalized
	s.AnswerKeysApplied += other.AnswerKeysApplied
	s.Duplicates += other.Duplicates
	s.Persisted += other.Persisted
	s.ExtractionFailures += other.ExtractionFailures
	s.StructuringFailures += other.StructuringFailures
	s.PersistenceFailures += other.PersistenceFailures
	s.AuditFindings += other.AuditFindings
	s.RepairsApplied += other.RepairsApplied
	s.RepairFailures += other.RepairFailures
	s.Usage.Add(other.Usage)
}

// Failures is the total of every failure counter.
func (s *RunSummary) Failures() int {
	return s.DocumentsFailed + s.StructuringFailures + s.PersistenceFailures + s.RepairFailures
}
