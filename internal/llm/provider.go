// Package llm gives every LLM vendor the same call contract: send a prompt,
// get text and token usage back.
package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Provider names used in routing tables and logs.
const (
	ProviderAnthropic = "anthropic"
	ProviderTogether  = "together"
)

// ErrEmptyPrompt is returned before any I/O when a request has no prompt text.
var ErrEmptyPrompt = eris.New("llm: prompt is empty")

// Request is a single completion request.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature *float64
}

// Usage reports token consumption for one call. InputTokens includes the
// cache write and read tokens.
type Usage struct {
	InputTokens      int64 `json:"input_tokens"`
	OutputTokens     int64 `json:"output_tokens"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
}

// Response is the text and usage produced by one provider call.
type Response struct {
	Content  string
	Model    string
	Provider string
	Usage    Usage
}

// ChunkFunc receives streamed text as it arrives.
type ChunkFunc func(text string)

// Provider is a single LLM vendor endpoint. Implementations make exactly one
// outbound call per invocation and never retry; errors are *ProviderError.
type Provider interface {
	Name() string
	DefaultModel() string
	Call(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error)
}

// prepare validates req and fills the model default.
func prepare(p Provider, req Request) (Request, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return req, &ProviderError{
			Provider: p.Name(),
			Model:    req.Model,
			Kind:     KindBadRequest,
			Message:  ErrEmptyPrompt.Error(),
			Err:      ErrEmptyPrompt,
		}
	}
	if req.Model == "" {
		req.Model = p.DefaultModel()
	}
	return req, nil
}
