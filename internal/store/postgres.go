package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/audit-cli/internal/db"
	"github.com/sells-group/audit-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

const postgresSelect = `SELECT id, correlation_id, task_type, success, severity, provider, model, used_fallback, estimated_cost_usd, records, result, created_at FROM analyses`

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_analysis": `INSERT INTO analyses (id, correlation_id, task_type, success, severity, provider, model, used_fallback, estimated_cost_usd, records, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
	"get_analysis":                postgresSelect + ` WHERE id = $1`,
	"get_analysis_by_correlation": postgresSelect + ` WHERE correlation_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.NewPool(ctx, connString, poolCfg, preparedStatements)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analyses (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	correlation_id     TEXT NOT NULL UNIQUE,
	task_type          TEXT NOT NULL,
	success            BOOLEAN NOT NULL,
	severity           TEXT NOT NULL,
	provider           TEXT NOT NULL DEFAULT '',
	model              TEXT NOT NULL DEFAULT '',
	used_fallback      BOOLEAN NOT NULL DEFAULT false,
	estimated_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	records            JSONB NOT NULL,
	result             JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analyses_task_type ON analyses(task_type);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at DESC);
`

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

func (s *PostgresStore) SaveAnalysis(ctx context.Context, req model.AnalysisRequest, result *model.AnalysisResult) (*Analysis, error) {
	a, err := newAnalysis(req, result)
	if err != nil {
		return nil, err
	}
	recordsJSON, err := json.Marshal(a.Records)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal records")
	}
	resultJSON, err := json.Marshal(a.Result)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analyses (id, correlation_id, task_type, success, severity, provider, model, used_fallback, estimated_cost_usd, records, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.CorrelationID, string(a.TaskType), a.Success, string(a.Severity), a.Provider, a.Model,
		a.UsedFallback, a.EstimatedCostUSD, recordsJSON, resultJSON, a.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicate, "postgres: correlation id %s", a.CorrelationID)
		}
		return nil, eris.Wrap(err, "postgres: insert analysis")
	}
	return a, nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	row := s.pool.QueryRow(ctx, postgresSelect+` WHERE id = $1`, id)
	return scanPostgresAnalysis(row, id)
}

func (s *PostgresStore) GetAnalysisByCorrelation(ctx context.Context, correlationID string) (*Analysis, error) {
	row := s.pool.QueryRow(ctx, postgresSelect+` WHERE correlation_id = $1`, correlationID)
	return scanPostgresAnalysis(row, correlationID)
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter Filter) ([]Analysis, error) {
	query := postgresSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.TaskType != "" {
		query += fmt.Sprintf(` AND task_type = $%d`, argIdx)
		args = append(args, string(filter.TaskType))
		argIdx++
	}
	if filter.Success != nil {
		query += fmt.Sprintf(` AND success = $%d`, argIdx)
		args = append(args, *filter.Success)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanPostgresAnalysis(rows, "")
		if err != nil {
			return nil, err
		}
		a.Records = nil
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

func scanPostgresAnalysis(row pgx.Row, key string) (*Analysis, error) {
	var a Analysis
	var taskType, severity string
	var recordsJSON, resultJSON []byte

	err := row.Scan(&a.ID, &a.CorrelationID, &taskType, &a.Success, &severity, &a.Provider, &a.Model,
		&a.UsedFallback, &a.EstimatedCostUSD, &recordsJSON, &resultJSON, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: %s", key)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan analysis")
	}
	a.TaskType = model.TaskType(taskType)
	a.Severity = model.Severity(severity)

	if err := json.Unmarshal(recordsJSON, &a.Records); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal records")
	}
	a.Result = &model.AnalysisResult{}
	if err := json.Unmarshal(resultJSON, a.Result); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal result")
	}
	return &a, nil
}
