package llm

import (
	"context"

	"github.com/sells-group/audit-cli/pkg/anthropic"
)

const defaultMaxTokens = 4096

// AnthropicOptions tunes the Anthropic adapter.
type AnthropicOptions struct {
	DefaultModel string
	MaxTokens    int64
	// CacheSystem marks the system prompt with a 1h cache breakpoint.
	CacheSystem bool
}

type anthropicProvider struct {
	client anthropic.Client
	opts   AnthropicOptions
}

// NewAnthropic adapts an Anthropic client to Provider.
func NewAnthropic(client anthropic.Client, opts AnthropicOptions) Provider {
	if opts.DefaultModel == "" {
		opts.DefaultModel = anthropic.DefaultModel()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	return &anthropicProvider{client: client, opts: opts}
}

func (p *anthropicProvider) Name() string         { return ProviderAnthropic }
func (p *anthropicProvider) DefaultModel() string { return p.opts.DefaultModel }

func (p *anthropicProvider) Call(ctx context.Context, req Request) (*Response, error) {
	req, err := prepare(p, req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.CreateMessage(ctx, p.toMessageRequest(req))
	if err != nil {
		return nil, Classify(p.Name(), req.Model, err)
	}
	return p.fromMessageResponse(req, resp), nil
}

func (p *anthropicProvider) Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error) {
	req, err := prepare(p, req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.StreamMessage(ctx, p.toMessageRequest(req), onChunk)
	if err != nil {
		return nil, Classify(p.Name(), req.Model, err)
	}
	return p.fromMessageResponse(req, resp), nil
}

func (p *anthropicProvider) toMessageRequest(req Request) anthropic.MessageRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.opts.MaxTokens
	}
	mr := anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	if req.System != "" {
		if p.opts.CacheSystem {
			mr.System = anthropic.BuildCachedSystemBlocks(req.System)
		} else {
			mr.System = []anthropic.SystemBlock{{Text: req.System}}
		}
	}
	return mr
}

func (p *anthropicProvider) fromMessageResponse(req Request, resp *anthropic.MessageResponse) *Response {
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &Response{
		Content:  resp.Text(),
		Model:    model,
		Provider: p.Name(),
		Usage: Usage{
			InputTokens:      resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens,
			OutputTokens:     resp.Usage.OutputTokens,
			CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:  resp.Usage.CacheReadInputTokens,
		},
	}
}
