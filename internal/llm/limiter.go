package llm

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

type limitedProvider struct {
	Provider
	limiter *rate.Limiter
}

// WithLimiter throttles p so calls wait for a token from limiter before going
// out. A nil limiter returns p unchanged.
func WithLimiter(p Provider, limiter *rate.Limiter) Provider {
	if limiter == nil {
		return p
	}
	return &limitedProvider{Provider: p, limiter: limiter}
}

func (p *limitedProvider) Call(ctx context.Context, req Request) (*Response, error) {
	if err := p.wait(ctx, req); err != nil {
		return nil, err
	}
	return p.Provider.Call(ctx, req)
}

func (p *limitedProvider) Stream(ctx context.Context, req Request, onChunk ChunkFunc) (*Response, error) {
	if err := p.wait(ctx, req); err != nil {
		return nil, err
	}
	return p.Provider.Stream(ctx, req, onChunk)
}

func (p *limitedProvider) wait(ctx context.Context, req Request) error {
	err := p.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	pe := Classify(p.Name(), req.Model, err)
	// Wait fails early when the deadline cannot accommodate the next token.
	if !errors.Is(err, context.Canceled) {
		pe.Kind = KindRateLimit
	}
	return pe
}
