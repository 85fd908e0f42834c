package router

import (
	"github.com/sells-group/audit-cli/internal/cost"
	"github.com/sells-group/audit-cli/internal/llm"
	"github.com/sells-group/audit-cli/internal/model"
)

// Model ids used by the default routing table.
const (
	ModelClaudeSonnet = "claude-sonnet-4-5-20250929"
	ModelClaudeOpus   = "claude-opus-4-6"
	ModelClaudeHaiku  = "claude-haiku-4-5-20251001"
	ModelLlama70B     = "meta-llama/Llama-3.3-70B-Instruct-Turbo"
	ModelQwen72B      = "Qwen/Qwen2.5-72B-Instruct-Turbo"
	ModelDeepSeekV3   = "deepseek-ai/DeepSeek-V3"
)

// Route is the provider configuration for one task type. The fallback model
// is always called through Together.
type Route struct {
	TaskType      model.TaskType `json:"task_type"`
	Provider      string         `json:"provider"`
	PrimaryModel  string         `json:"primary_model"`
	FallbackModel string         `json:"fallback_model"`
	Cost          cost.ModelRate `json:"cost_per_million_tokens"`
}

// Override replaces parts of a default route. Empty fields keep the default.
type Override struct {
	Provider      string
	PrimaryModel  string
	FallbackModel string
}

// Table maps task types to routes. A Table is read-only once built and is safe
// for concurrent use.
type Table struct {
	routes map[model.TaskType]Route
}

// DefaultTable returns the built-in routing table priced with the default rates.
func DefaultTable() *Table {
	calc := cost.NewCalculator(cost.DefaultRates())
	entries := []Route{
		{TaskType: model.TaskPayroll, Provider: llm.ProviderAnthropic, PrimaryModel: ModelClaudeSonnet, FallbackModel: ModelLlama70B},
		{TaskType: model.TaskHRIS, Provider: llm.ProviderAnthropic, PrimaryModel: ModelClaudeSonnet, FallbackModel: ModelLlama70B},
		{TaskType: model.TaskERP, Provider: llm.ProviderAnthropic, PrimaryModel: ModelClaudeSonnet, FallbackModel: ModelQwen72B},
		{TaskType: model.TaskCRM, Provider: llm.ProviderTogether, PrimaryModel: ModelLlama70B, FallbackModel: ModelQwen72B},
		{TaskType: model.TaskCompliance, Provider: llm.ProviderAnthropic, PrimaryModel: ModelClaudeOpus, FallbackModel: ModelDeepSeekV3},
		{TaskType: model.TaskAIInfrastructure, Provider: llm.ProviderAnthropic, PrimaryModel: ModelClaudeHaiku, FallbackModel: ModelLlama70B},
	}
	t := &Table{routes: make(map[model.TaskType]Route, len(entries))}
	for _, r := range entries {
		r.Cost, _ = calc.Rate(r.PrimaryModel)
		t.routes[r.TaskType] = r
	}
	return t
}

// WithOverrides returns a new table with overrides applied on top of t. Keys
// are task type names; every route is re-priced with rates.
func (t *Table) WithOverrides(overrides map[string]Override, rates cost.Rates) (*Table, error) {
	calc := cost.NewCalculator(rates)
	out := &Table{routes: make(map[model.TaskType]Route, len(t.routes))}
	for tt, r := range t.routes {
		out.routes[tt] = r
	}

	for name, o := range overrides {
		tt := model.ParseTaskType(name)
		if !tt.Valid() {
			return nil, &ConfigurationError{TaskType: name, Reason: "unknown task type in routing overrides"}
		}
		r := out.routes[tt]
		r.TaskType = tt
		if o.Provider != "" {
			r.Provider = o.Provider
		}
		if o.PrimaryModel != "" {
			r.PrimaryModel = o.PrimaryModel
		}
		if o.FallbackModel != "" {
			r.FallbackModel = o.FallbackModel
		}
		if err := validateRoute(r); err != nil {
			return nil, err
		}
		out.routes[tt] = r
	}

	for tt, r := range out.routes {
		if rate, ok := calc.Rate(r.PrimaryModel); ok {
			r.Cost = rate
			out.routes[tt] = r
		}
	}
	return out, nil
}

func validateRoute(r Route) error {
	switch r.Provider {
	case llm.ProviderAnthropic, llm.ProviderTogether:
	default:
		return &ConfigurationError{TaskType: string(r.TaskType), Reason: "unsupported provider " + r.Provider}
	}
	if r.PrimaryModel == "" || r.FallbackModel == "" {
		return &ConfigurationError{TaskType: string(r.TaskType), Reason: "primary and fallback models are required"}
	}
	return nil
}

// Lookup returns the route for taskType. Unknown task types are a
// *ConfigurationError; there is no default route.
func (t *Table) Lookup(taskType model.TaskType) (Route, error) {
	r, ok := t.routes[taskType]
	if !ok {
		return Route{}, &ConfigurationError{TaskType: string(taskType), Reason: "unknown task type"}
	}
	return r, nil
}

// Routes lists every route in task type display order.
func (t *Table) Routes() []Route {
	out := make([]Route, 0, len(t.routes))
	for _, tt := range model.TaskTypes {
		if r, ok := t.routes[tt]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Providers returns the distinct primary provider names used by the table.
func (t *Table) Providers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.Routes() {
		if !seen[r.Provider] {
			seen[r.Provider] = true
			out = append(out, r.Provider)
		}
	}
	return out
}
