package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/audit-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

var analysisColumns = []string{
	"id", "correlation_id", "task_type", "success", "severity", "provider", "model",
	"used_fallback", "estimated_cost_usd", "records", "result", "created_at",
}

func analysisRow(t *testing.T, id, correlationID string) []any {
	t.Helper()
	records, err := json.Marshal(sampleRequest(correlationID).Records)
	require.NoError(t, err)
	result, err := json.Marshal(sampleResult(correlationID, true))
	require.NoError(t, err)
	return []any{
		id, correlationID, "payroll", true, "high", "together", "meta-llama/Llama-3.3-70B-Instruct-Turbo",
		true, 0.002, records, result, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS analyses`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAnalysis(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO analyses`).
		WithArgs(pgxmock.AnyArg(), "corr-1", "payroll", true, "high", "anthropic", "claude-sonnet-4-5-20250929",
			false, 0.0123, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a, err := s.SaveAnalysis(context.Background(), sampleRequest("corr-1"), sampleResult("corr-1", true))
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "corr-1", a.CorrelationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAnalysis_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO analyses`).
		WithArgs(pgxmock.AnyArg(), "corr-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := s.SaveAnalysis(context.Background(), sampleRequest("corr-1"), sampleResult("corr-1", true))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAnalysis(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, correlation_id, .* FROM analyses WHERE id = \$1`).
		WithArgs("an-1").
		WillReturnRows(pgxmock.NewRows(analysisColumns).AddRow(analysisRow(t, "an-1", "corr-1")...))

	a, err := s.GetAnalysis(context.Background(), "an-1")
	require.NoError(t, err)
	assert.Equal(t, "an-1", a.ID)
	assert.Equal(t, model.TaskPayroll, a.TaskType)
	assert.Equal(t, model.SeverityHigh, a.Severity)
	assert.True(t, a.UsedFallback)
	require.Len(t, a.Records, 2)
	require.NotNil(t, a.Result)
	assert.Equal(t, 86, a.Result.Confidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAnalysis_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM analyses WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetAnalysis(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAnalysisByCorrelation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM analyses WHERE correlation_id = \$1`).
		WithArgs("corr-9").
		WillReturnRows(pgxmock.NewRows(analysisColumns).AddRow(analysisRow(t, "an-9", "corr-9")...))

	a, err := s.GetAnalysisByCorrelation(context.Background(), "corr-9")
	require.NoError(t, err)
	assert.Equal(t, "an-9", a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAnalyses(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	failed := false

	mock.ExpectQuery(`FROM analyses WHERE true AND task_type = \$1 AND success = \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("payroll", false, 10, 20).
		WillReturnRows(pgxmock.NewRows(analysisColumns).
			AddRow(analysisRow(t, "an-1", "corr-1")...).
			AddRow(analysisRow(t, "an-2", "corr-2")...))

	out, err := s.ListAnalyses(context.Background(), Filter{TaskType: model.TaskPayroll, Success: &failed, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Nil(t, out[0].Records)
	assert.Equal(t, "an-2", out[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAnalyses_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`ORDER BY created_at DESC LIMIT \$1$`).
		WithArgs(100).
		WillReturnRows(pgxmock.NewRows(analysisColumns))

	out, err := s.ListAnalyses(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseWithoutPool(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	assert.NoError(t, s.Close())
}
