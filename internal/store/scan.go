package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/resilience"
)

type scannable interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

const documentColumns = `id, title, type, institution, year, processed, created_at, updated_at`

func scanDocument(row scannable) (*model.Document, error) {
	var d model.Document
	err := row.Scan(&d.ID, &d.Title, &d.Type, &d.Institution, &d.Year, &d.Processed, &d.CreatedAt, &d.UpdatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan document")
	}
	return &d, nil
}

const questionColumns = `id, document_id, stem, stem_hash, option_a, option_b, option_c, option_d, option_e,
	correct_option, explanation, area, subarea, topic, created_at, updated_at`

func scanQuestion(row scannable) (*model.StoredQuestion, error) {
	var q model.StoredQuestion
	err := row.Scan(&q.ID, &q.DocumentID, &q.Stem, &q.StemHash,
		&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.OptionE,
		&q.CorrectOption, &q.Explanation, &q.Area, &q.Subarea, &q.Topic,
		&q.CreatedAt, &q.UpdatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan question")
	}
	return &q, nil
}

// questionArgs returns the column values for an insert or update, in
// questionColumns order after id and document_id.
func questionArgs(f model.QuestionFields) []any {
	return []any{
		f.Stem, model.StemHash(f.Stem),
		f.OptionA, f.OptionB, f.OptionC, f.OptionD, f.OptionE,
		f.CorrectOption, f.Explanation, f.Area, f.Subarea, f.Topic,
	}
}

const rejectionColumns = `run_id, document_title, number, stem_excerpt, reason, source, created_at`

func scanRejection(row scannable) (model.RejectionRecord, error) {
	var r model.RejectionRecord
	err := row.Scan(&r.RunID, &r.DocumentTitle, &r.Number, &r.StemExcerpt, &r.Reason, &r.Source, &r.CreatedAt)
	return r, eris.Wrap(err, "store: scan rejection")
}

const flagColumns = `question_id, document_id, reason, status, attempts, last_error, run_id, updated_at`

func scanFlag(row scannable) (model.AuditFlag, error) {
	var f model.AuditFlag
	err := row.Scan(&f.QuestionID, &f.DocumentID, &f.Reason, &f.Status, &f.Attempts, &f.LastError, &f.RunID, &f.UpdatedAt)
	return f, eris.Wrap(err, "store: scan audit flag")
}

const dlqColumns = `id, filename, path, kind, error, retryable, attempts, max_attempts, run_id, created_at, last_failed_at`

func scanDLQ(row scannable) (resilience.DLQEntry, error) {
	var e resilience.DLQEntry
	err := row.Scan(&e.ID, &e.Filename, &e.Path, &e.Kind, &e.Error, &e.Retryable,
		&e.Attempts, &e.MaxAttempts, &e.RunID, &e.CreatedAt, &e.LastFailedAt)
	return e, eris.Wrap(err, "store: scan dlq entry")
}

func statusStrings(statuses []model.AuditStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
