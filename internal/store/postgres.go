package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/aozora-lab/poster-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used ledger operations.
var preparedStatements = map[string]string{
	"get_record": `SELECT content_id, title, status, scheduled_at, published_ref, error_detail, last_updated_at
	               FROM records WHERE content_id = $1`,
	"insert_record": `INSERT INTO records (id, content_id, title, status, scheduled_at, published_ref, error_detail, last_updated_at)
	                  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"update_record": `UPDATE records SET title = $1, status = $2, scheduled_at = $3, published_ref = $4, error_detail = $5, last_updated_at = $6
	                  WHERE content_id = $7`,
	"save_keyword": `INSERT INTO keywords (text, enabled, last_processed_at, last_result)
	                 VALUES ($1, $2, $3, $4)
	                 ON CONFLICT (text) DO UPDATE SET
	                   enabled = EXCLUDED.enabled,
	                   last_processed_at = EXCLUDED.last_processed_at,
	                   last_result = EXCLUDED.last_result`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 5
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
		return nil, eris.Wrap(err, "postgres: new pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS keywords (
	text              TEXT PRIMARY KEY,
	enabled           BOOLEAN NOT NULL DEFAULT TRUE,
	last_processed_at TIMESTAMPTZ,
	last_result       TEXT NOT NULL DEFAULT 'none'
);

CREATE TABLE IF NOT EXISTS records (
	id              TEXT PRIMARY KEY,
	content_id      TEXT NOT NULL UNIQUE,
	title           TEXT,
	status          TEXT NOT NULL DEFAULT 'unprocessed',
	scheduled_at    TIMESTAMPTZ,
	published_ref   TEXT,
	error_detail    TEXT,
	last_updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) LoadKeywords(ctx context.Context) ([]model.Keyword, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT text, enabled, last_processed_at, last_result FROM keywords ORDER BY text`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load keywords")
	}
	defer rows.Close()

	var keywords []model.Keyword
	for rows.Next() {
		var kw model.Keyword
		var processedAt *time.Time
		if err := rows.Scan(&kw.Text, &kw.Enabled, &processedAt, &kw.LastResult); err != nil {
			return nil, eris.Wrap(err, "postgres: scan keyword")
		}
		kw.LastProcessedAt = processedAt
		keywords = append(keywords, kw)
	}
	return keywords, eris.Wrap(rows.Err(), "postgres: load keywords iterate")
}

func (s *PostgresStore) SaveKeyword(ctx context.Context, kw *model.Keyword) error {
	_, err := s.pool.Exec(ctx, "save_keyword",
		kw.Text, kw.Enabled, kw.LastProcessedAt, string(kw.LastResult),
	)
	return eris.Wrapf(err, "postgres: save keyword %q", kw.Text)
}

func (s *PostgresStore) GetRecord(ctx context.Context, contentID string) (*model.ProcessingRecord, error) {
	row := s.pool.QueryRow(ctx, "get_record", contentID)

	var rec model.ProcessingRecord
	var title, publishedRef, errorDetail *string
	var scheduledAt *time.Time
	err := row.Scan(&rec.ContentID, &title, &rec.Status, &scheduledAt, &publishedRef, &errorDetail, &rec.LastUpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get record %s", contentID)
	}

	rec.Title = deref(title)
	rec.PublishedReference = deref(publishedRef)
	rec.ErrorDetail = deref(errorDetail)
	rec.ScheduledAt = scheduledAt
	return &rec, nil
}

func (s *PostgresStore) CreateRecord(ctx context.Context, rec *model.ProcessingRecord) error {
	_, err := s.pool.Exec(ctx, "insert_record",
		uuid.New().String(), rec.ContentID, rec.Title, string(rec.Status),
		rec.ScheduledAt, emptyToNil(rec.PublishedReference), emptyToNil(rec.ErrorDetail), rec.LastUpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert record %s", rec.ContentID)
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, rec *model.ProcessingRecord) error {
	tag, err := s.pool.Exec(ctx, "update_record",
		rec.Title, string(rec.Status), rec.ScheduledAt,
		emptyToNil(rec.PublishedReference), emptyToNil(rec.ErrorDetail), rec.LastUpdatedAt,
		rec.ContentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update record %s", rec.ContentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("record not found: %s", rec.ContentID)
	}
	return nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ProcessingRecord, error) {
	query := `SELECT content_id, title, status, scheduled_at, published_ref, error_detail, last_updated_at
	          FROM records WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY last_updated_at DESC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []model.ProcessingRecord
	for rows.Next() {
		var rec model.ProcessingRecord
		var title, publishedRef, errorDetail *string
		var scheduledAt *time.Time
		if err := rows.Scan(&rec.ContentID, &title, &rec.Status, &scheduledAt, &publishedRef, &errorDetail, &rec.LastUpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		rec.Title = deref(title)
		rec.PublishedReference = deref(publishedRef)
		rec.ErrorDetail = deref(errorDetail)
		rec.ScheduledAt = scheduledAt
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.RecordStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM records GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := make(map[model.RecordStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.RecordStatus(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count iterate")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
