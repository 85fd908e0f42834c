package llm

import (
	"context"

	"github.com/sells-group/audit-cli/pkg/together"
)

// TogetherOptions tunes the Together.ai adapter.
type TogetherOptions struct {
	DefaultModel string
	MaxTokens    int
}

type togetherProvider struct {
	client together.Client
	opts   TogetherOptions
}

// NewTogether adapts a Together.ai client to Provider. Together is the
// high-volume provider every fallback model is reached through.
func NewTogether(client together.Client, opts TogetherOptions) Provider {
	if opts.DefaultModel == "" {
		opts.DefaultModel = together.DefaultModel()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	return &togetherProvider{client: client, opts: opts}
}

func (p *togetherProvider) Name() string         { return ProviderTogether }
func (p *togetherProvider) DefaultModel() string { return p.opts.DefaultModel }

func (p *togetherProvider) Call(ctx context.Context, req Request) (*Response, error) {
	req, err := prepare(p, req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.ChatCompletion(ctx, p.toChatRequest(req))
	if err != nil {
		return nil, Classify(p.Name(), req.Model, err)
	}
	return p.fromChatResponse(req, resp), nil
}

func (p *togetherProvider) Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error) {
	req, err := prepare(p, req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.StreamChatCompletion(ctx, p.toChatRequest(req), onChunk)
	if err != nil {
		return nil, Classify(p.Name(), req.Model, err)
	}
	return p.fromChatResponse(req, resp), nil
}

func (p *togetherProvider) toChatRequest(req Request) together.ChatCompletionRequest {
	maxTokens := int(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = p.opts.MaxTokens
	}
	msgs := make([]together.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, together.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, together.Message{Role: "user", Content: req.Prompt})
	return together.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   &maxTokens,
	}
}

func (p *togetherProvider) fromChatResponse(req Request, resp *together.ChatCompletionResponse) *Response {
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &Response{
		Content:  resp.Text(),
		Model:    model,
		Provider: p.Name(),
		Usage: Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}
}
