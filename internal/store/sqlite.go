package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/audit-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS analyses (
	id                 TEXT PRIMARY KEY,
	correlation_id     TEXT NOT NULL UNIQUE,
	task_type          TEXT NOT NULL,
	success            INTEGER NOT NULL,
	severity           TEXT NOT NULL,
	provider           TEXT NOT NULL DEFAULT '',
	model              TEXT NOT NULL DEFAULT '',
	used_fallback      INTEGER NOT NULL DEFAULT 0,
	estimated_cost_usd REAL NOT NULL DEFAULT 0,
	records            TEXT NOT NULL,
	result             TEXT NOT NULL,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_analyses_task_type ON analyses(task_type);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, req model.AnalysisRequest, result *model.AnalysisResult) (*Analysis, error) {
	a, err := newAnalysis(req, result)
	if err != nil {
		return nil, err
	}
	recordsJSON, err := json.Marshal(a.Records)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal records")
	}
	resultJSON, err := json.Marshal(a.Result)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, correlation_id, task_type, success, severity, provider, model, used_fallback, estimated_cost_usd, records, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CorrelationID, string(a.TaskType), a.Success, string(a.Severity), a.Provider, a.Model,
		a.UsedFallback, a.EstimatedCostUSD, string(recordsJSON), string(resultJSON), a.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, eris.Wrapf(ErrDuplicate, "sqlite: correlation id %s", a.CorrelationID)
		}
		return nil, eris.Wrap(err, "sqlite: insert analysis")
	}
	return a, nil
}

const sqliteSelect = `SELECT id, correlation_id, task_type, success, severity, provider, model, used_fallback, estimated_cost_usd, records, result, created_at FROM analyses`

func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE id = ?`, id)
	return scanAnalysis(row, id)
}

func (s *SQLiteStore) GetAnalysisByCorrelation(ctx context.Context, correlationID string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE correlation_id = ?`, correlationID)
	return scanAnalysis(row, correlationID)
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter Filter) ([]Analysis, error) {
	query := sqliteSelect + ` WHERE 1=1`
	var args []any

	if filter.TaskType != "" {
		query += ` AND task_type = ?`
		args = append(args, string(filter.TaskType))
	}
	if filter.Success != nil {
		query += ` AND success = ?`
		args = append(args, *filter.Success)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows, "")
		if err != nil {
			return nil, err
		}
		a.Records = nil
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scannable, key string) (*Analysis, error) {
	var a Analysis
	var recordsJSON, resultJSON string

	err := row.Scan(&a.ID, &a.CorrelationID, &a.TaskType, &a.Success, &a.Severity, &a.Provider, &a.Model,
		&a.UsedFallback, &a.EstimatedCostUSD, &recordsJSON, &resultJSON, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: %s", key)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan analysis")
	}

	if err := json.Unmarshal([]byte(recordsJSON), &a.Records); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal records")
	}
	a.Result = &model.AnalysisResult{}
	if err := json.Unmarshal([]byte(resultJSON), a.Result); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal result")
	}
	return &a, nil
}
