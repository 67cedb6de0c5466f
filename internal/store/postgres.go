package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/qbank-cli/internal/db"
	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// preparedStatements lists the hot-path queries prepared on each new
// connection.
var preparedStatements = map[string]string{
	"find_question_by_stem": `SELECT ` + questionColumns + ` FROM questions WHERE stem_hash = $1`,
	"insert_question":       insertQuestionSQL,
	"upsert_audit_flag":     upsertFlagSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	title       TEXT NOT NULL UNIQUE,
	type        TEXT NOT NULL DEFAULT 'exam',
	institution TEXT NOT NULL DEFAULT '',
	year        INTEGER NOT NULL DEFAULT 0,
	processed   BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS questions (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id    TEXT NOT NULL REFERENCES documents(id),
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
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (option_e IS NOT NULL OR correct_option <> 'E')
);

CREATE TABLE IF NOT EXISTS question_embeddings (
	question_id TEXT PRIMARY KEY,
	embedding   BYTEA,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rejections (
	id             BIGSERIAL PRIMARY KEY,
	run_id         TEXT NOT NULL,
	document_title TEXT NOT NULL,
	number         INTEGER NOT NULL,
	stem_excerpt   TEXT NOT NULL,
	reason         TEXT NOT NULL,
	source         TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_flags (
	question_id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	reason      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'flagged',
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT '',
	run_id      TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	summary    JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source_ref     TEXT NOT NULL UNIQUE,
	filename       TEXT NOT NULL,
	path           TEXT NOT NULL DEFAULT '',
	kind           TEXT NOT NULL,
	error          TEXT NOT NULL,
	retryable      BOOLEAN NOT NULL DEFAULT false,
	attempts       INTEGER NOT NULL DEFAULT 1,
	max_attempts   INTEGER NOT NULL DEFAULT 3,
	run_id         TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_questions_document_id ON questions(document_id);
CREATE INDEX IF NOT EXISTS idx_rejections_run_id ON rejections(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_flags_status ON audit_flags(status);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Documents ---

func (s *PostgresStore) UpsertDocument(ctx context.Context, title string, meta model.DocumentMeta) (*model.Document, error) {
	now := time.Now().UTC()
	if meta.Type == "" {
		meta.Type = model.DocumentTypeExam
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO documents (id, title, type, institution, year, processed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, false, $6, $6)
		 ON CONFLICT (title) DO UPDATE SET updated_at = EXCLUDED.updated_at
		 RETURNING `+documentColumns,
		uuid.New().String(), title, string(meta.Type), meta.Institution, meta.Year, now,
	)
	d, err := scanDocument(row)
	return d, eris.Wrapf(err, "postgres: upsert document %q", title)
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	return scanDocument(s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
}

func (s *PostgresStore) ListDocuments(ctx context.Context, limit int) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC LIMIT $1`, limitOr(limit, 100))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

func (s *PostgresStore) MarkDocumentProcessed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET processed = true, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark document processed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "document %s", id)
	}
	return nil
}

// --- Questions ---

const insertQuestionSQL = `INSERT INTO questions (` + questionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (stem_hash) DO NOTHING`

func (s *PostgresStore) FindQuestionByStem(ctx context.Context, stemHash string) (*model.StoredQuestion, error) {
	q, err := scanQuestion(s.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE stem_hash = $1`, stemHash))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return q, err
}

func (s *PostgresStore) InsertQuestion(ctx context.Context, documentID string, f model.QuestionFields) (*model.StoredQuestion, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	args := append([]any{id, documentID}, questionArgs(f)...)
	args = append(args, now, now)
	tag, err := s.pool.Exec(ctx, insertQuestionSQL, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert question")
	}
	if tag.RowsAffected() == 0 {
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

func (s *PostgresStore) UpdateQuestion(ctx context.Context, id string, f model.QuestionFields) error {
	args := append(questionArgs(f), time.Now().UTC(), id)
	tag, err := s.pool.Exec(ctx,
		`UPDATE questions SET stem = $1, stem_hash = $2, option_a = $3, option_b = $4, option_c = $5,
		 option_d = $6, option_e = $7, correct_option = $8, explanation = $9, area = $10, subarea = $11,
		 topic = $12, updated_at = $13 WHERE id = $14`,
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update question %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "question %s", id)
	}
	return nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, id string) (*model.StoredQuestion, error) {
	return scanQuestion(s.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
}

func (s *PostgresStore) ListQuestionsByDocument(ctx context.Context, documentID string) ([]model.StoredQuestion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE document_id = $1 ORDER BY created_at, id`, documentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list questions")
	}
	defer rows.Close()

	var out []model.StoredQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list questions iterate")
}

// --- Rejections ---

var rejectionCopyColumns = []string{"run_id", "document_title", "number", "stem_excerpt", "reason", "source", "created_at"}

func (s *PostgresStore) RecordRejections(ctx context.Context, recs []model.RejectionRecord) error {
	rows := make([][]any, len(recs))
	now := time.Now().UTC()
	for i, r := range recs {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		rows[i] = []any{r.RunID, r.DocumentTitle, r.Number, r.StemExcerpt, string(r.Reason), r.Source, r.CreatedAt}
	}
	_, err := db.CopyRows(ctx, s.pool, "rejections", rejectionCopyColumns, rows)
	return eris.Wrap(err, "postgres: record rejections")
}

func (s *PostgresStore) ListRejections(ctx context.Context, filter RejectionFilter) ([]model.RejectionRecord, error) {
	query := `SELECT ` + rejectionColumns + ` FROM rejections WHERE true`
	args := []any{}
	if filter.RunID != "" {
		args = append(args, filter.RunID)
		query += fmt.Sprintf(` AND run_id = $%d`, len(args))
	}
	args = append(args, limitOr(filter.Limit, 1000))
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rejections")
	}
	defer rows.Close()

	var out []model.RejectionRecord
	for rows.Next() {
		r, err := scanRejection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list rejections iterate")
}

// --- Audit flags ---

const upsertFlagSQL = `INSERT INTO audit_flags (` + flagColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (question_id) DO UPDATE SET
	  document_id = EXCLUDED.document_id, reason = EXCLUDED.reason, status = EXCLUDED.status,
	  attempts = EXCLUDED.attempts, last_error = EXCLUDED.last_error, run_id = EXCLUDED.run_id,
	  updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) UpsertAuditFlag(ctx context.Context, f model.AuditFlag) error {
	_, err := s.pool.Exec(ctx, upsertFlagSQL,
		f.QuestionID, f.DocumentID, string(f.Reason), string(f.Status), f.Attempts, f.LastError, f.RunID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert audit flag %s", f.QuestionID)
}

func (s *PostgresStore) ListAuditFlags(ctx context.Context, filter FlagFilter) ([]model.AuditFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM audit_flags WHERE true`
	args := []any{}
	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		query += fmt.Sprintf(` AND document_id = $%d`, len(args))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		query += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}
	args = append(args, limitOr(filter.Limit, 1000))
	query += fmt.Sprintf(` ORDER BY updated_at, question_id LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit flags")
	}
	defer rows.Close()

	var out []model.AuditFlag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list audit flags iterate")
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, kind, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(kind), string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{ID: id, Kind: kind, Status: model.RunStatusRunning, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	return s.finishRun(ctx, runID, model.RunStatusComplete, summary, "")
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, summary *model.RunSummary, cause error) error {
	return s.finishRun(ctx, runID, failedStatus(cause), summary, causeMessage(cause))
}

func (s *PostgresStore) finishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, errMsg string) error {
	var summaryJSON []byte
	if summary != nil {
		b, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal summary")
		}
		summaryJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), summaryJSON, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx,
		`SELECT id, kind, status, summary, error, created_at, updated_at FROM runs WHERE id = $1`, runID))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, kind, status, summary, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		query += fmt.Sprintf(` AND kind = $%d`, len(args))
	}
	args = append(args, limitOr(filter.Limit, 100))
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summaryJSON []byte

	err := row.Scan(&r.ID, &r.Kind, &r.Status, &summaryJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	if len(summaryJSON) > 0 {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}

// --- Dead-letter queue ---

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	e = dlqDefaults(e)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue (`+dlqColumns+`, source_ref) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (source_ref) DO UPDATE SET
		   filename = EXCLUDED.filename, kind = EXCLUDED.kind, error = EXCLUDED.error, retryable = EXCLUDED.retryable,
		   attempts = dead_letter_queue.attempts + 1, run_id = EXCLUDED.run_id,
		   last_failed_at = EXCLUDED.last_failed_at`,
		e.ID, e.Filename, e.Path, string(e.Kind), e.Error, e.Retryable,
		e.Attempts, e.MaxAttempts, e.RunID, e.CreatedAt, e.LastFailedAt, e.Ref(),
	)
	return eris.Wrapf(err, "postgres: enqueue dlq %s", e.Ref())
}

func (s *PostgresStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT ` + dlqColumns + ` FROM dead_letter_queue WHERE true`
	if filter.RetryableOnly {
		query += ` AND retryable AND attempts < max_attempts`
	}
	query += ` ORDER BY last_failed_at LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limitOr(filter.Limit, 100))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var out []resilience.DLQEntry
	for rows.Next() {
		e, err := scanDLQ(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: remove dlq %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "dlq entry %s", id)
	}
	return nil
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count dlq")
}

// --- Consistency ---

const postgresCountsQuery = `SELECT
	(SELECT COUNT(*) FROM documents),
	(SELECT COUNT(*) FROM documents WHERE processed),
	(SELECT COUNT(*) FROM questions),
	(SELECT COUNT(*) FROM question_embeddings),
	(SELECT COUNT(*) FROM documents d WHERE d.processed
		AND NOT EXISTS (SELECT 1 FROM questions q WHERE q.document_id = d.id)),
	(SELECT COUNT(*) FROM questions q
		WHERE NOT EXISTS (SELECT 1 FROM question_embeddings e WHERE e.question_id = q.id)),
	(SELECT COUNT(*) FROM question_embeddings e
		WHERE NOT EXISTS (SELECT 1 FROM questions q WHERE q.id = e.question_id)),
	(SELECT COUNT(*) FROM questions q
		WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.id = q.document_id)),
	(SELECT COUNT(*) FROM audit_flags WHERE status IN ('flagged', 'repair_failed'))`

func (s *PostgresStore) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx, postgresCountsQuery).Scan(
		&c.Documents, &c.ProcessedDocuments, &c.Questions, &c.Embeddings,
		&c.EmptyProcessedDocuments, &c.QuestionsWithoutEmbeddings,
		&c.OrphanEmbeddings, &c.OrphanQuestions, &c.OpenFlags,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: counts")
	}
	return &c, nil
}
