// Package audit runs an analysis request end to end: validate the batch, route
// the prompt, parse the reply and assemble the result.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/audit-cli/internal/model"
	"github.com/sells-group/audit-cli/internal/prompt"
	"github.com/sells-group/audit-cli/internal/router"
)

// DefaultMaxRecords is the largest batch accepted.
const DefaultMaxRecords = 1000

// Warnings added while resolving corrected data.
const (
	WarnCorrectedDataShapeMismatch = "corrected_data_shape_mismatch"
	WarnCorrectionUnmatched        = "correction_unmatched"
	WarnCorrectionsMissing         = "corrections_missing"
	WarnCorrectionsDeclaredNone    = "corrections_declared_none"
)

// State is a step of the per-request state machine.
type State string

const (
	StateReceived        State = "received"
	StateValidating      State = "validating"
	StateCallingProvider State = "calling_provider"
	StateParsing         State = "parsing"
	StateSucceeded       State = "succeeded"
	StateFailed          State = "failed"
)

// Router is the routing policy the analyzer delegates to.
type Router interface {
	Resolve(taskType model.TaskType) (router.Route, error)
	Route(ctx context.Context, req router.Request) (*router.LLMResponse, error)
	RouteStream(ctx context.Context, req router.Request, onChunk func(router.Chunk)) (*router.LLMResponse, error)
}

// Options tunes an Analyzer.
type Options struct {
	MaxRecords  int
	SampleSize  int
	MaxTokens   int64
	Temperature *float64
}

// Analyzer is the analysis orchestrator. It keeps no per-request state and is
// safe for concurrent use across independent batches.
type Analyzer struct {
	router  Router
	builder *prompt.Builder
	opts    Options
}

// NewAnalyzer creates an Analyzer over r.
func NewAnalyzer(r Router, opts Options) *Analyzer {
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = DefaultMaxRecords
	}
	return &Analyzer{
		router:  r,
		builder: prompt.NewBuilder(opts.SampleSize),
		opts:    opts,
	}
}

// Analyze runs req through validation, routing and parsing.
//
// Invalid batches return a *ValidationError and unroutable task types a
// *router.ConfigurationError, both before any provider call and with a nil
// result. Provider and parse failures never surface as errors: they produce a
// result with Success false and the caller's records in CorrectedData.
func (a *Analyzer) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
	return a.run(ctx, req, nil)
}

// AnalyzeStream is Analyze with the model's text streamed to onChunk as it
// arrives. Chunks marked Fallback replace any primary output seen before them.
func (a *Analyzer) AnalyzeStream(ctx context.Context, req model.AnalysisRequest, onChunk func(router.Chunk)) (*model.AnalysisResult, error) {
	if onChunk == nil {
		onChunk = func(router.Chunk) {}
	}
	return a.run(ctx, req, onChunk)
}

func (a *Analyzer) run(ctx context.Context, req model.AnalysisRequest, onChunk func(router.Chunk)) (*model.AnalysisResult, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	log := zap.L().With(
		zap.String("task_type", string(req.TaskType)),
		zap.String("correlation_id", req.CorrelationID),
		zap.Int("records", len(req.Records)),
	)
	state := StateReceived
	advance := func(to State) {
		log.Debug("audit: state", zap.String("from", string(state)), zap.String("state", string(to)))
		state = to
	}

	advance(StateValidating)
	if _, err := a.router.Resolve(req.TaskType); err != nil {
		advance(StateFailed)
		return nil, err
	}
	if err := a.validate(req); err != nil {
		advance(StateFailed)
		log.Warn("audit: batch rejected", zap.Error(err))
		return nil, err
	}
	p, err := a.builder.Build(req.TaskType, req.Records)
	if err != nil {
		advance(StateFailed)
		return nil, &router.ConfigurationError{TaskType: string(req.TaskType), Reason: err.Error()}
	}

	advance(StateCallingProvider)
	rreq := router.Request{
		TaskType:    req.TaskType,
		Prompt:      p.User,
		System:      p.System,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
	}
	var resp *router.LLMResponse
	if onChunk != nil {
		resp, err = a.router.RouteStream(ctx, rreq, onChunk)
	} else {
		resp, err = a.router.Route(ctx, rreq)
	}
	if err != nil {
		advance(StateFailed)
		var ce *router.ConfigurationError
		if errors.As(err, &ce) {
			return nil, err
		}
		result := failedResult(req, providerFailure(err))
		log.Error("audit: provider call failed",
			zap.String("cause", string(result.Error.Cause)),
			zap.Error(err),
		)
		return result, nil
	}

	advance(StateParsing)
	outcome := prompt.Parse(resp.Content)
	if !outcome.OK {
		advance(StateFailed)
		result := failedResult(req, &model.ResultError{
			Kind:    model.ErrorKindParse,
			Cause:   model.CauseParse,
			Message: outcome.Reason,
		})
		result.Routing = routing(resp)
		log.Warn("audit: unparseable model output",
			zap.String("reason", outcome.Reason),
			zap.String("model", resp.Model),
			zap.Int("raw_len", len(outcome.Raw)),
		)
		return result, nil
	}

	result := a.assemble(req, outcome)
	result.Routing = routing(resp)
	advance(StateSucceeded)
	log.Info("audit: analysis complete",
		zap.String("severity", string(result.Severity)),
		zap.Int("confidence", result.Confidence),
		zap.Int("issues", len(result.IssuesFound)),
		zap.Int("corrections", result.CorrectionCount),
		zap.Bool("used_fallback", resp.UsedFallback),
		zap.Float64("estimated_cost_usd", resp.EstimatedCostUSD),
	)
	return result, nil
}

func (a *Analyzer) validate(req model.AnalysisRequest) error {
	n := len(req.Records)
	if n == 0 {
		return &ValidationError{Index: -1, Reason: "record batch is empty"}
	}
	if n > a.opts.MaxRecords {
		return &ValidationError{Index: -1, Reason: fmt.Sprintf("record batch has %d records, maximum is %d", n, a.opts.MaxRecords)}
	}
	for i, r := range req.Records {
		if _, ok := r.ID(req.TaskType); !ok {
			return &ValidationError{
				Index:  i,
				Reason: "missing identifying field (one of " + strings.Join(req.TaskType.IdentifyingKeys(), ", ") + ")",
			}
		}
	}
	return nil
}

func (a *Analyzer) assemble(req model.AnalysisRequest, outcome prompt.Outcome) *model.AnalysisResult {
	an := outcome.Analysis
	corrected, warnings := resolveCorrectedData(req.TaskType, req.Records, an)

	// A declared correctionsFound=false wins over a stray corrections list:
	// the count must describe CorrectedData, which is then the input.
	corrections := an.Corrections
	if !an.CorrectionsFound && len(corrections) > 0 {
		corrections = nil
		warnings = append(warnings, WarnCorrectionsDeclaredNone)
	}

	result := &model.AnalysisResult{
		CorrelationID:    req.CorrelationID,
		TaskType:         req.TaskType,
		Success:          true,
		IssuesFound:      nonNil(an.IssuesFound),
		CorrectionsFound: an.CorrectionsFound,
		CorrectionCount:  len(corrections),
		Corrections:      corrections,
		CorrectedData:    corrected,
		Severity:         an.Severity,
		Confidence:       an.Confidence,
		Summary:          an.Summary,
		Recommendations:  an.Recommendations,
		EstimatedImpact:  an.EstimatedImpact,
	}
	if result.Corrections == nil {
		result.Corrections = []model.Correction{}
	}
	result.Warnings = append(append(result.Warnings, outcome.Warnings...), warnings...)
	return result
}

// failedResult is the fail-safe result: the caller's input comes back
// unmodified.
func failedResult(req model.AnalysisRequest, re *model.ResultError) *model.AnalysisResult {
	return &model.AnalysisResult{
		CorrelationID: req.CorrelationID,
		TaskType:      req.TaskType,
		Success:       false,
		IssuesFound:   []string{},
		Corrections:   []model.Correction{},
		CorrectedData: req.Records.Clone(),
		Severity:      model.SeverityLow,
		Error:         re,
	}
}

func routing(resp *router.LLMResponse) *model.Routing {
	return &model.Routing{
		Provider:         resp.Provider,
		Model:            resp.Model,
		UsedFallback:     resp.UsedFallback,
		PrimaryError:     resp.PrimaryError,
		InputTokens:      resp.Usage.InputTokens,
		OutputTokens:     resp.Usage.OutputTokens,
		EstimatedCostUSD: resp.EstimatedCostUSD,
		LatencyMs:        resp.Latency.Milliseconds(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
