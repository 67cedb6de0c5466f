package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL UNIQUE,
	type        TEXT NOT NULL DEFAULT 'exam',
	institution TEXT NOT NULL DEFAULT '',
	year        INTEGER NOT NULL DEFAULT 0,
	processed   INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS questions (
	id             TEXT PRIMARY KEY,
	document_id    TEXT NOT NULL,
	stem           TEXT NOT NULL,
	stem_hash      TEXT NOT NULL UNIQUE,
	option_a       TEXT NOT NULL,
	option_b       TEXT NOT NULL,
	option_c       TEXT NOT NULL,
	option_d       TEXT NOT NULL,
	option_e       TEXT,
	correct_option TEXT NOT NULL CHECK (correct_option IN ('A','B','C','D','E')),
	explanation    TEXT NOT NULL DEFAULT '',
	area           TEXT NOT NULL DEFAULT '',
	subarea        TEXT NOT NULL DEFAULT '',
	topic          TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	CHECK (option_e IS NOT NULL OR correct_option <> 'E')
);

CREATE TABLE IF NOT EXISTS question_embeddings (
	question_id TEXT PRIMARY KEY,
	embedding   BLOB,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS rejections (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	document_title TEXT NOT NULL,
	number         INTEGER NOT NULL,
	stem_excerpt   TEXT NOT NULL,
	reason         TEXT NOT NULL,
	source         TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_flags (
	question_id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	reason      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'flagged',
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT '',
	run_id      TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	source_ref     TEXT NOT NULL UNIQUE,
	filename       TEXT NOT NULL,
	path           TEXT NOT NULL DEFAULT '',
	kind           TEXT NOT NULL,
	error          TEXT NOT NULL,
	retryable      INTEGER NOT NULL DEFAULT 0,
	attempts       INTEGER NOT NULL DEFAULT 1,
	max_attempts   INTEGER NOT NULL DEFAULT 3,
	run_id         TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_questions_document_id ON questions(document_id);
CREATE INDEX IF NOT EXISTS idx_rejections_run_id ON rejections(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_flags_status ON audit_flags(status);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Documents ---

func (s *SQLiteStore) UpsertDocument(ctx context.Context, title string, meta model.DocumentMeta) (*model.Document, error) {
	now := time.Now().UTC()
	if meta.Type == "" {
		meta.Type = model.DocumentTypeExam
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO documents (id, title, type, institution, year, processed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT (title) DO UPDATE SET updated_at = excluded.updated_at
		 RETURNING `+documentColumns,
		uuid.New().String(), title, string(meta.Type), meta.Institution, meta.Year, now, now,
	)
	d, err := scanDocument(row)
	return d, eris.Wrapf(err, "sqlite: upsert document %q", title)
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, limit int) ([]model.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close() //nolint:errcheck

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

func (s *SQLiteStore) MarkDocumentProcessed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET processed = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark document processed %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

// --- Questions ---

func (s *SQLiteStore) FindQuestionByStem(ctx context.Context, stemHash string) (*model.StoredQuestion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE stem_hash = ?`, stemHash)
	q, err := scanQuestion(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return q, err
}

func (s *SQLiteStore) InsertQuestion(ctx context.Context, documentID string, f model.QuestionFields) (*model.StoredQuestion, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	args := append([]any{id, documentID}, questionArgs(f)...)
	args = append(args, now, now)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (`+questionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (stem_hash) DO NOTHING`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert question")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return nil, ErrDuplicate
	}

	return &model.StoredQuestion{
		ID:             id,
		DocumentID:     documentID,
		StemHash:       model.StemHash(f.Stem),
		QuestionFields: f,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *SQLiteStore) UpdateQuestion(ctx context.Context, id string, f model.QuestionFields) error {
	args := append(questionArgs(f), time.Now().UTC(), id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET stem = ?, stem_hash = ?, option_a = ?, option_b = ?, option_c = ?, option_d = ?,
		 option_e = ?, correct_option = ?, explanation = ?, area = ?, subarea = ?, topic = ?, updated_at = ?
		 WHERE id = ?`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update question %s", id)
	}
	return checkRowsAffected(res, "question", id)
}

func (s *SQLiteStore) GetQuestion(ctx context.Context, id string) (*model.StoredQuestion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	return scanQuestion(row)
}

func (s *SQLiteStore) ListQuestionsByDocument(ctx context.Context, documentID string) ([]model.StoredQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE document_id = ? ORDER BY created_at, id`, documentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list questions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StoredQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list questions iterate")
}

// --- Rejections ---

func (s *SQLiteStore) RecordRejections(ctx context.Context, recs []model.RejectionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin rejections")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rejections (`+rejectionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare rejection insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range recs {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, r.RunID, r.DocumentTitle, r.Number, r.StemExcerpt,
			string(r.Reason), r.Source, r.CreatedAt); err != nil {
			return eris.Wrap(err, "sqlite: insert rejection")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit rejections")
}

func (s *SQLiteStore) ListRejections(ctx context.Context, filter RejectionFilter) ([]model.RejectionRecord, error) {
	query := `SELECT ` + rejectionColumns + ` FROM rejections WHERE 1=1`
	var args []any
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limitOr(filter.Limit, 1000))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rejections")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RejectionRecord
	for rows.Next() {
		r, err := scanRejection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rejections iterate")
}

// --- Audit flags ---

func (s *SQLiteStore) UpsertAuditFlag(ctx context.Context, f model.AuditFlag) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_flags (`+flagColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (question_id) DO UPDATE SET
		   document_id = excluded.document_id, reason = excluded.reason, status = excluded.status,
		   attempts = excluded.attempts, last_error = excluded.last_error, run_id = excluded.run_id,
		   updated_at = excluded.updated_at`,
		f.QuestionID, f.DocumentID, string(f.Reason), string(f.Status), f.Attempts, f.LastError, f.RunID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert audit flag %s", f.QuestionID)
}

func (s *SQLiteStore) ListAuditFlags(ctx context.Context, filter FlagFilter) ([]model.AuditFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM audit_flags WHERE 1=1`
	var args []any
	if filter.DocumentID != "" {
		query += ` AND document_id = ?`
		args = append(args, filter.DocumentID)
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(filter.Statuses)-1) + `)`
		for _, st := range statusStrings(filter.Statuses) {
			args = append(args, st)
		}
	}
	query += ` ORDER BY updated_at, question_id LIMIT ?`
	args = append(args, limitOr(filter.Limit, 1000))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit flags")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AuditFlag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list audit flags iterate")
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(kind), string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.Run{ID: id, Kind: kind, Status: model.RunStatusRunning, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, summary, "")
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, summary *model.RunSummary, cause error) error {
	return s.finishRun(ctx, runID, failedStatus(cause), summary, causeMessage(cause))
}

func (s *SQLiteStore) finishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, errMsg string) error {
	var summaryJSON *string
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal summary")
		}
		str := string(b)
		summaryJSON = &str
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), summaryJSON, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, summary, error, created_at, updated_at FROM runs WHERE id = ?`, runID)
	return scanSQLiteRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, kind, status, summary, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limitOr(filter.Limit, 100), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &r.Kind, &r.Status, &summaryJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if summaryJSON.Valid {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}

// --- Dead-letter queue ---

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	e = dlqDefaults(e)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue (`+dlqColumns+`, source_ref) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source_ref) DO UPDATE SET
		   filename = excluded.filename, kind = excluded.kind, error = excluded.error, retryable = excluded.retryable,
		   attempts = dead_letter_queue.attempts + 1, run_id = excluded.run_id,
		   last_failed_at = excluded.last_failed_at`,
		e.ID, e.Filename, e.Path, string(e.Kind), e.Error, e.Retryable,
		e.Attempts, e.MaxAttempts, e.RunID, e.CreatedAt, e.LastFailedAt, e.Ref(),
	)
	return eris.Wrapf(err, "sqlite: enqueue dlq %s", e.Ref())
}

func (s *SQLiteStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT ` + dlqColumns + ` FROM dead_letter_queue WHERE 1=1`
	if filter.RetryableOnly {
		query += ` AND retryable = 1 AND attempts < max_attempts`
	}
	query += ` ORDER BY last_failed_at LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limitOr(filter.Limit, 100))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close() //nolint:errcheck

	var out []resilience.DLQEntry
	for rows.Next() {
		e, err := scanDLQ(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list dlq iterate")
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: remove dlq %s", id)
	}
	return checkRowsAffected(res, "dlq entry", id)
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count dlq")
}

// --- Consistency ---

const sqliteCountsQuery = `SELECT
	(SELECT COUNT(*) FROM documents),
	(SELECT COUNT(*) FROM documents WHERE processed = 1),
	(SELECT COUNT(*) FROM questions),
	(SELECT COUNT(*) FROM question_embeddings),
	(SELECT COUNT(*) FROM documents d WHERE d.processed = 1
		AND NOT EXISTS (SELECT 1 FROM questions q WHERE q.document_id = d.id)),
	(SELECT COUNT(*) FROM questions q
		WHERE NOT EXISTS (SELECT 1 FROM question_embeddings e WHERE e.question_id = q.id)),
	(SELECT COUNT(*) FROM question_embeddings e
		WHERE NOT EXISTS (SELECT 1 FROM questions q WHERE q.id = e.question_id)),
	(SELECT COUNT(*) FROM questions q
		WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.id = q.document_id)),
	(SELECT COUNT(*) FROM audit_flags WHERE status IN ('flagged', 'repair_failed'))`

func (s *SQLiteStore) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, sqliteCountsQuery).Scan(
		&c.Documents, &c.ProcessedDocuments, &c.Questions, &c.Embeddings,
		&c.EmptyProcessedDocuments, &c.QuestionsWithoutEmbeddings,
		&c.OrphanEmbeddings, &c.OrphanQuestions, &c.OpenFlags,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: counts")
	}
	return &c, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

func dlqDefaults(e resilience.DLQEntry) resilience.DLQEntry {
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Attempts <= 0 {
		e.Attempts = 1
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = 3
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.LastFailedAt.IsZero() {
		e.LastFailedAt = now
	}
	return e
}
