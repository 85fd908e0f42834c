// Package cost prices LLM token usage per model.
package cost

// Rates holds per-provider pricing configuration, keyed by model ID.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Together  map[string]ModelRate `yaml:"together" mapstructure:"together"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Tokens computes input/output cost for a rate with no cache activity.
func (r ModelRate) Tokens(input, output int64) float64 {
	return (float64(input)/1e6)*r.Input + (float64(output)/1e6)*r.Output
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Rate looks a model up across providers.
func (c *Calculator) Rate(model string) (ModelRate, bool) {
	if r, ok := c.rates.Anthropic[model]; ok {
		return r, true
	}
	r, ok := c.rates.Together[model]
	return r, ok
}

// Claude computes the cost for a Claude API call including prompt cache
// writes and reads.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int64) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}

	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return rate.Tokens(input, output) + cwCost + crCost
}

// Estimate prices a call on any known model. Returns 0 for unknown models.
func (c *Calculator) Estimate(model string, input, output int64) float64 {
	rate, ok := c.Rate(model)
	if !ok {
		return 0
	}
	return rate.Tokens(input, output)
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-opus-4-6": {
				Input: 15.00, Output: 75.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Together: map[string]ModelRate{
			"meta-llama/Llama-3.3-70B-Instruct-Turbo": {Input: 0.88, Output: 0.88},
			"Qwen/Qwen2.5-72B-Instruct-Turbo":         {Input: 1.20, Output: 1.20},
			"deepseek-ai/DeepSeek-V3":                 {Input: 1.25, Output: 1.25},
		},
	}
}
