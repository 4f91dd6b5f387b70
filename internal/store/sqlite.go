package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/aozora-lab/poster-cli/internal/model"
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
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS keywords (
	text              TEXT PRIMARY KEY,
	enabled           INTEGER NOT NULL DEFAULT 1,
	last_processed_at DATETIME,
	last_result       TEXT NOT NULL DEFAULT 'none'
);

CREATE TABLE IF NOT EXISTS records (
	id              TEXT PRIMARY KEY,
	content_id      TEXT NOT NULL UNIQUE,
	title           TEXT,
	status          TEXT NOT NULL DEFAULT 'unprocessed',
	scheduled_at    DATETIME,
	published_ref   TEXT,
	error_detail    TEXT,
	last_updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_keywords_enabled ON keywords(enabled);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadKeywords(ctx context.Context) ([]model.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text, enabled, last_processed_at, last_result FROM keywords ORDER BY rowid`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load keywords")
	}
	defer rows.Close()

	var keywords []model.Keyword
	for rows.Next() {
		var kw model.Keyword
		var enabled int
		var processedAt sql.NullTime
		if err := rows.Scan(&kw.Text, &enabled, &processedAt, &kw.LastResult); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan keyword")
		}
		kw.Enabled = enabled != 0
		if processedAt.Valid {
			t := processedAt.Time.UTC()
			kw.LastProcessedAt = &t
		}
		keywords = append(keywords, kw)
	}
	return keywords, eris.Wrap(rows.Err(), "sqlite: load keywords iterate")
}

func (s *SQLiteStore) SaveKeyword(ctx context.Context, kw *model.Keyword) error {
	var processedAt any
	if kw.LastProcessedAt != nil {
		processedAt = kw.LastProcessedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO keywords (text, enabled, last_processed_at, last_result)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(text) DO UPDATE SET
		   enabled = excluded.enabled,
		   last_processed_at = excluded.last_processed_at,
		   last_result = excluded.last_result`,
		kw.Text, boolToInt(kw.Enabled), processedAt, string(kw.LastResult),
	)
	return eris.Wrapf(err, "sqlite: save keyword %q", kw.Text)
}

func (s *SQLiteStore) GetRecord(ctx context.Context, contentID string) (*model.ProcessingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT content_id, title, status, scheduled_at, published_ref, error_detail, last_updated_at
		 FROM records WHERE content_id = ?`,
		contentID,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", contentID)
	}
	return rec, nil
}

func (s *SQLiteStore) CreateRecord(ctx context.Context, rec *model.ProcessingRecord) error {
	var scheduledAt any
	if rec.ScheduledAt != nil {
		scheduledAt = rec.ScheduledAt.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, content_id, title, status, scheduled_at, published_ref, error_detail, last_updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), rec.ContentID, rec.Title, string(rec.Status),
		scheduledAt, nullable(rec.PublishedReference), nullable(rec.ErrorDetail), rec.LastUpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert record %s", rec.ContentID)
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, rec *model.ProcessingRecord) error {
	var scheduledAt any
	if rec.ScheduledAt != nil {
		scheduledAt = rec.ScheduledAt.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET title = ?, status = ?, scheduled_at = ?, published_ref = ?, error_detail = ?, last_updated_at = ?
		 WHERE content_id = ?`,
		rec.Title, string(rec.Status), scheduledAt,
		nullable(rec.PublishedReference), nullable(rec.ErrorDetail), rec.LastUpdatedAt.UTC(),
		rec.ContentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update record %s", rec.ContentID)
	}
	return checkRowsAffected(res, "record", rec.ContentID)
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ProcessingRecord, error) {
	query := `SELECT content_id, title, status, scheduled_at, published_ref, error_detail, last_updated_at
	          FROM records WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY last_updated_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// SQLite requires a LIMIT clause before OFFSET; -1 means unbounded.
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []model.ProcessingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.RecordStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM records GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()

	counts := make(map[model.RecordStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.RecordStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.ProcessingRecord, error) {
	var rec model.ProcessingRecord
	var title, publishedRef, errorDetail sql.NullString
	var scheduledAt sql.NullTime

	err := row.Scan(&rec.ContentID, &title, &rec.Status, &scheduledAt, &publishedRef, &errorDetail, &rec.LastUpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.Title = title.String
	rec.PublishedReference = publishedRef.String
	rec.ErrorDetail = errorDetail.String
	if scheduledAt.Valid {
		t := scheduledAt.Time.UTC()
		rec.ScheduledAt = &t
	}
	rec.LastUpdatedAt = rec.LastUpdatedAt.UTC()
	return &rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
