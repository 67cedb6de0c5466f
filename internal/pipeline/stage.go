package pipeline

import (
	"errors"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/structure"
)

// StageError tags a document-level failure with its taxonomy kind.
type StageError struct {
	Kind model.ErrorKind
	Err  error
}

func (e *StageError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(kind model.ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Kind: kind, Err: err}
}

// KindOf returns the error kind carried by err, if any.
func KindOf(err error) (model.ErrorKind, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// IsRetryable reports whether a document failure should be replayed later.
func IsRetryable(err error) bool {
	return errors.Is(err, structure.ErrRetryable)
}

// shouldDeadLetter reports whether a document failure belongs in the DLQ.
func shouldDeadLetter(err error) bool {
	if IsRetryable(err) {
		return true
	}
	kind, ok := KindOf(err)
	return ok && (kind == model.ErrExtraction || kind == model.ErrStructuring)
}
