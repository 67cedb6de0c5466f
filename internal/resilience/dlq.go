package resilience

import (
	"time"

	"github.com/sells-group/qbank-cli/internal/model"
)

// DLQEntry is a document whose import failed and can be replayed later.
type DLQEntry struct {
	ID           string          `json:"id"`
	Filename     string          `json:"filename"`
	Path         string          `json:"path,omitempty"`
	Kind         model.ErrorKind `json:"kind"`
	Error        string          `json:"error"`
	Retryable    bool            `json:"retryable"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	RunID        string          `json:"run_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	LastFailedAt time.Time       `json:"last_failed_at"`
}

// DLQFilter narrows a DLQ listing.
type DLQFilter struct {
	RetryableOnly bool `json:"retryable_only,omitempty"`
	Limit         int  `json:"limit,omitempty"`
}

// Ref is the key an entry is deduplicated on: the source reference it
// was loaded from, or the filename when it has none (uploads).
func (e *DLQEntry) Ref() string {
	if e.Path != "" {
		return e.Path
	}
	return e.Filename
}

// CanRetry reports whether the entry is retryable and has attempts left.
func (e *DLQEntry) CanRetry() bool {
	return e.Retryable && e.Attempts < e.MaxAttempts
}
