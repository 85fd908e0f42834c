package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/audit-cli/internal/model"
)

// Sentinel errors returned (wrapped) by every Store implementation.
var (
	ErrNotFound  = eris.New("store: analysis not found")
	ErrDuplicate = eris.New("store: correlation id already recorded")
)

// Analysis is a persisted analysis: the batch that was submitted and the
// result the orchestrator produced for it.
type Analysis struct {
	ID               string                `json:"id"`
	CorrelationID    string                `json:"correlation_id"`
	TaskType         model.TaskType        `json:"task_type"`
	Success          bool                  `json:"success"`
	Severity         model.Severity        `json:"severity"`
	Provider         string                `json:"provider,omitempty"`
	Model            string                `json:"model,omitempty"`
	UsedFallback     bool                  `json:"used_fallback"`
	EstimatedCostUSD float64               `json:"estimated_cost_usd"`
	Records          model.Batch           `json:"records,omitempty"`
	Result           *model.AnalysisResult `json:"result"`
	CreatedAt        time.Time             `json:"created_at"`
}

// Filter specifies criteria for listing analyses.
type Filter struct {
	TaskType model.TaskType `json:"task_type,omitempty"`
	Success  *bool          `json:"success,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

// Store persists analyses.
type Store interface {
	// SaveAnalysis records result for req. A correlation id can be saved
	// once; later saves return ErrDuplicate.
	SaveAnalysis(ctx context.Context, req model.AnalysisRequest, result *model.AnalysisResult) (*Analysis, error)
	GetAnalysis(ctx context.Context, id string) (*Analysis, error)
	GetAnalysisByCorrelation(ctx context.Context, correlationID string) (*Analysis, error)
	// ListAnalyses returns analyses newest first, without their records.
	ListAnalyses(ctx context.Context, filter Filter) ([]Analysis, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

func newAnalysis(req model.AnalysisRequest, result *model.AnalysisResult) (*Analysis, error) {
	if result == nil {
		return nil, eris.New("store: nil result")
	}
	correlationID := result.CorrelationID
	if correlationID == "" {
		correlationID = req.CorrelationID
	}
	if correlationID == "" {
		return nil, eris.New("store: correlation id is required")
	}
	taskType := result.TaskType
	if taskType == "" {
		taskType = req.TaskType
	}

	a := &Analysis{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		TaskType:      taskType,
		Success:       result.Success,
		Severity:      result.Severity,
		Records:       req.Records,
		Result:        result,
		CreatedAt:     time.Now().UTC(),
	}
	if r := result.Routing; r != nil {
		a.Provider = r.Provider
		a.Model = r.Model
		a.UsedFallback = r.UsedFallback
		a.EstimatedCostUSD = r.EstimatedCostUSD
	}
	return a, nil
}

func listLimit(f Filter) int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}
