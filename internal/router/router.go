// Package router picks the provider and model for a task type, makes the
// primary call and, when it fails, exactly one fallback call through Together.
package router

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/audit-cli/internal/cost"
	"github.com/sells-group/audit-cli/internal/llm"
	"github.com/sells-group/audit-cli/internal/model"
	"github.com/sells-group/audit-cli/internal/resilience"
)

// DefaultCallTimeout bounds each provider attempt.
const DefaultCallTimeout = 60 * time.Second

// Request is a prompt to route.
type Request struct {
	TaskType    model.TaskType
	Prompt      string
	System      string
	MaxTokens   int64
	Temperature *float64
}

// LLMResponse is the routed completion, labelled with the path that produced it.
type LLMResponse struct {
	Content          string
	Model            string
	Provider         string
	UsedFallback     bool
	PrimaryError     string
	Usage            llm.Usage
	Latency          time.Duration
	EstimatedCostUSD float64
}

// Chunk is one piece of streamed text. Fallback is set on chunks produced by
// the fallback call, so consumers can drop partial output from a failed primary.
type Chunk struct {
	Text     string
	Fallback bool
}

// Router executes the routing policy. It holds no per-request state and is
// safe for concurrent use.
type Router struct {
	table       *Table
	providers   map[string]llm.Provider
	calc        *cost.Calculator
	breakers    *resilience.Breakers
	callTimeout time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithCallTimeout sets the per-attempt timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

// WithBreakers guards each provider with a circuit breaker. An open circuit
// fails the attempt without a network call.
func WithBreakers(b *resilience.Breakers) Option {
	return func(r *Router) { r.breakers = b }
}

// WithCalculator prices responses with calc instead of the default rates.
func WithCalculator(calc *cost.Calculator) Option {
	return func(r *Router) { r.calc = calc }
}

// New creates a Router. The Together provider is required because every
// fallback goes through it.
func New(table *Table, providers []llm.Provider, opts ...Option) (*Router, error) {
	if table == nil {
		table = DefaultTable()
	}
	r := &Router{
		table:       table,
		providers:   make(map[string]llm.Provider, len(providers)),
		calc:        cost.NewCalculator(cost.DefaultRates()),
		callTimeout: DefaultCallTimeout,
	}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	if _, ok := r.providers[llm.ProviderTogether]; !ok {
		return nil, &ConfigurationError{Reason: "fallback provider " + llm.ProviderTogether + " is not configured"}
	}
	return r, nil
}

// Table returns the routing table.
func (r *Router) Table() *Table { return r.table }

// Resolve returns the route for taskType and checks its primary provider is
// configured. It performs no I/O.
func (r *Router) Resolve(taskType model.TaskType) (Route, error) {
	route, err := r.table.Lookup(taskType)
	if err != nil {
		return Route{}, err
	}
	if _, ok := r.providers[route.Provider]; !ok {
		return Route{}, &ConfigurationError{TaskType: string(taskType), Reason: "provider " + route.Provider + " is not configured"}
	}
	return route, nil
}

// Route sends req to the task type's primary model and, on failure, once to
// its fallback model. It returns a *ConfigurationError before any I/O when the
// task type cannot be routed, and an *ExhaustedError when both calls fail.
func (r *Router) Route(ctx context.Context, req Request) (*LLMResponse, error) {
	return r.route(ctx, req, nil)
}

// RouteStream is Route with streamed output. onChunk is called as text
// arrives; after a fallback restart chunks are marked Fallback.
func (r *Router) RouteStream(ctx context.Context, req Request, onChunk func(Chunk)) (*LLMResponse, error) {
	if onChunk == nil {
		onChunk = func(Chunk) {}
	}
	return r.route(ctx, req, onChunk)
}

func (r *Router) route(ctx context.Context, req Request, onChunk func(Chunk)) (*LLMResponse, error) {
	route, err := r.Resolve(req.TaskType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, eris.Wrapf(llm.ErrEmptyPrompt, "router: %s", req.TaskType)
	}

	primary := r.providers[route.Provider]
	fallback := r.providers[llm.ProviderTogether]
	log := zap.L().With(
		zap.String("task_type", string(req.TaskType)),
		zap.String("primary_provider", primary.Name()),
		zap.String("primary_model", route.PrimaryModel),
	)

	start := time.Now()
	resp, primaryErr := r.attempt(ctx, primary, route.PrimaryModel, req, chunkFunc(onChunk, false))
	if primaryErr == nil {
		return r.finish(log, route.PrimaryModel, resp, nil, start), nil
	}

	log.Warn("router: primary call failed",
		zap.String("kind", string(primaryErr.Kind)),
		zap.Int("status", primaryErr.StatusCode),
		zap.Error(primaryErr),
	)

	if ctx.Err() != nil {
		return nil, eris.Wrapf(primaryErr, "router: %s: fallback skipped", req.TaskType)
	}

	resp, fallbackErr := r.attempt(ctx, fallback, route.FallbackModel, req, chunkFunc(onChunk, true))
	if fallbackErr != nil {
		log.Error("router: fallback call failed",
			zap.String("fallback_model", route.FallbackModel),
			zap.String("kind", string(fallbackErr.Kind)),
			zap.Error(fallbackErr),
		)
		return nil, &ExhaustedError{
			TaskType: string(req.TaskType),
			Primary:  primaryErr,
			Fallback: fallbackErr,
		}
	}
	return r.finish(log, route.FallbackModel, resp, primaryErr, start), nil
}

// attempt makes one provider call bounded by the call timeout.
func (r *Router) attempt(ctx context.Context, p llm.Provider, modelID string, req Request, onChunk llm.ChunkFunc) (*llm.Response, *llm.ProviderError) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	lreq := llm.Request{
		Model:       modelID,
		System:      req.System,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	call := func(ctx context.Context) (*llm.Response, error) {
		if onChunk != nil {
			return p.Stream(ctx, lreq, onChunk)
		}
		return p.Call(ctx, lreq)
	}

	var resp *llm.Response
	var err error
	if r.breakers != nil {
		resp, err = resilience.ExecuteVal(callCtx, r.breakers.Get(p.Name()), call)
	} else {
		resp, err = call(callCtx)
	}
	if err != nil {
		return nil, llm.Classify(p.Name(), modelID, err)
	}
	return resp, nil
}

func (r *Router) finish(log *zap.Logger, modelID string, resp *llm.Response, primaryErr *llm.ProviderError, start time.Time) *LLMResponse {
	out := &LLMResponse{
		Content:          resp.Content,
		Model:            resp.Model,
		Provider:         resp.Provider,
		UsedFallback:     primaryErr != nil,
		Usage:            resp.Usage,
		Latency:          time.Since(start),
		EstimatedCostUSD: r.price(modelID, resp),
	}
	if out.Model == "" {
		out.Model = modelID
	}
	if primaryErr != nil {
		out.PrimaryError = primaryErr.Error()
	}

	log.Info("router: call complete",
		zap.String("provider", out.Provider),
		zap.String("model", out.Model),
		zap.Bool("used_fallback", out.UsedFallback),
		zap.Int64("input_tokens", out.Usage.InputTokens),
		zap.Int64("output_tokens", out.Usage.OutputTokens),
		zap.Float64("estimated_cost_usd", out.EstimatedCostUSD),
		zap.Duration("latency", out.Latency),
	)
	return out
}

// price uses cache-aware Claude pricing for Anthropic responses and flat
// per-token pricing otherwise.
func (r *Router) price(modelID string, resp *llm.Response) float64 {
	u := resp.Usage
	if resp.Provider == llm.ProviderAnthropic && u.CacheWriteTokens+u.CacheReadTokens > 0 {
		if _, ok := r.calc.Rate(modelID); ok {
			plain := u.InputTokens - u.CacheWriteTokens - u.CacheReadTokens
			return r.calc.Claude(modelID, plain, u.OutputTokens, u.CacheWriteTokens, u.CacheReadTokens)
		}
	}
	return r.calc.Estimate(modelID, u.InputTokens, u.OutputTokens)
}

func chunkFunc(onChunk func(Chunk), fallback bool) llm.ChunkFunc {
	if onChunk == nil {
		return nil
	}
	return func(text string) {
		onChunk(Chunk{Text: text, Fallback: fallback})
	}
}

// EstimateCost prices a call on taskType's primary model:
// input/1e6*rate.Input + output/1e6*rate.Output. It performs no I/O.
func (r *Router) EstimateCost(taskType model.TaskType, inputTokens, outputTokens int64) (float64, error) {
	return EstimateCost(r.table, taskType, inputTokens, outputTokens)
}

// EstimateCost prices a call on taskType's primary model using table.
func EstimateCost(table *Table, taskType model.TaskType, inputTokens, outputTokens int64) (float64, error) {
	route, err := table.Lookup(taskType)
	if err != nil {
		return 0, err
	}
	return route.Cost.Tokens(inputTokens, outputTokens), nil
}

// BreakerStates reports each provider's circuit state. It is empty when no
// breakers are configured.
func (r *Router) BreakerStates() map[string]string {
	out := make(map[string]string)
	if r.breakers == nil {
		return out
	}
	for name, state := range r.breakers.States() {
		out[name] = state.String()
	}
	return out
}

// TripOnProviderFailure is a circuit breaker ShouldTrip func that ignores
// failures caused by the caller: bad requests and cancellations.
func TripOnProviderFailure(err error) bool {
	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		return pe.Kind != llm.KindBadRequest && pe.Kind != llm.KindCanceled
	}
	return !errors.Is(err, context.Canceled)
}
