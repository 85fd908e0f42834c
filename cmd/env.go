package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/audit-cli/internal/audit"
	"github.com/sells-group/audit-cli/internal/config"
	"github.com/sells-group/audit-cli/internal/cost"
	"github.com/sells-group/audit-cli/internal/dedupe"
	"github.com/sells-group/audit-cli/internal/llm"
	"github.com/sells-group/audit-cli/internal/resilience"
	"github.com/sells-group/audit-cli/internal/router"
	"github.com/sells-group/audit-cli/internal/store"
	anthropicpkg "github.com/sells-group/audit-cli/pkg/anthropic"
	"github.com/sells-group/audit-cli/pkg/together"
)

// auditEnv holds the router, analyzer and optional persistence needed by the
// analyze/batch/serve commands.
type auditEnv struct {
	Router   *router.Router
	Analyzer *audit.Analyzer
	Store    store.Store   // nil unless requested
	Dedupe   *dedupe.Guard // disabled unless redis.url is set
}

// Close releases resources held by the environment.
func (e *auditEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.Dedupe != nil {
		_ = e.Dedupe.Close()
	}
}

type envOptions struct {
	mode      string
	withStore bool
	withRedis bool
}

// initAudit validates config for opts.mode, builds the provider clients and
// the router, and opens the store and dedupe guard when asked. Callers should
// defer env.Close().
func initAudit(ctx context.Context, opts envOptions) (*auditEnv, error) {
	if err := cfg.Validate(opts.mode); err != nil {
		return nil, err
	}

	r, err := buildRouter(cfg, buildProviders(cfg))
	if err != nil {
		return nil, err
	}
	env := &auditEnv{
		Router:   r,
		Analyzer: buildAnalyzer(cfg, r),
		Dedupe:   dedupe.Disabled(),
	}

	if opts.withStore {
		st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "open store")
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		env.Store = st
	}

	if opts.withRedis && cfg.Redis.URL != "" {
		g, err := dedupe.New(cfg.Redis.URL, time.Duration(cfg.Redis.DedupeTTLSecs)*time.Second)
		if err != nil {
			env.Close()
			return nil, err
		}
		if err := g.Ping(ctx); err != nil {
			zap.L().Warn("redis unreachable, dedupe may fail", zap.Error(err))
		}
		env.Dedupe = g
	}

	zap.L().Debug("audit environment ready",
		zap.String("anthropic_key", llm.MaskKey(cfg.Anthropic.Key)),
		zap.String("together_key", llm.MaskKey(cfg.Together.Key)),
		zap.Bool("store", env.Store != nil),
		zap.Bool("dedupe", env.Dedupe.Enabled()),
	)
	return env, nil
}

// buildProviders creates the Anthropic and Together providers. Together is
// rate limited when together.requests_per_second is set.
func buildProviders(c *config.Config) []llm.Provider {
	anthropicClient := anthropicpkg.NewClient(c.Anthropic.Key, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
	togetherClient := together.NewClient(c.Together.Key,
		together.WithBaseURL(c.Together.BaseURL),
		together.WithModel(c.Together.DefaultModel),
	)

	var tg llm.Provider = llm.NewTogether(togetherClient, llm.TogetherOptions{
		DefaultModel: c.Together.DefaultModel,
		MaxTokens:    c.Together.MaxTokens,
	})
	if c.Together.RequestsPerSecond > 0 {
		burst := c.Together.Burst
		if burst < 1 {
			burst = 1
		}
		tg = llm.WithLimiter(tg, rate.NewLimiter(rate.Limit(c.Together.RequestsPerSecond), burst))
	}

	return []llm.Provider{
		llm.NewAnthropic(anthropicClient, llm.AnthropicOptions{
			DefaultModel: c.Anthropic.DefaultModel,
			MaxTokens:    c.Anthropic.MaxTokens,
			CacheSystem:  c.Anthropic.CacheSystem,
		}),
		tg,
	}
}

// buildTable returns the default routing table with configured overrides and
// prices applied.
func buildTable(c *config.Config) (*router.Table, error) {
	overrides := make(map[string]router.Override, len(c.Routing.Routes))
	for taskType, rc := range c.Routing.Routes {
		overrides[taskType] = router.Override{
			Provider:      rc.Provider,
			PrimaryModel:  rc.PrimaryModel,
			FallbackModel: rc.FallbackModel,
		}
	}
	return router.DefaultTable().WithOverrides(overrides, c.Pricing.Rates(cost.DefaultRates()))
}

func buildRouter(c *config.Config, providers []llm.Provider) (*router.Router, error) {
	table, err := buildTable(c)
	if err != nil {
		return nil, err
	}

	opts := []router.Option{
		router.WithCallTimeout(time.Duration(c.Routing.CallTimeoutSecs) * time.Second),
		router.WithCalculator(cost.NewCalculator(c.Pricing.Rates(cost.DefaultRates()))),
	}
	if c.Routing.Circuit.Enabled {
		cbCfg := resilience.FromCircuitConfig(c.Routing.Circuit.FailureThreshold, c.Routing.Circuit.ResetTimeoutSecs)
		cbCfg.ShouldTrip = router.TripOnProviderFailure
		cbCfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
			zap.L().Warn("circuit state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
		opts = append(opts, router.WithBreakers(resilience.NewBreakers(cbCfg)))
	}

	return router.New(table, providers, opts...)
}

func buildAnalyzer(c *config.Config, r audit.Router) *audit.Analyzer {
	temp := c.Audit.Temperature
	return audit.NewAnalyzer(r, audit.Options{
		MaxRecords:  c.Audit.MaxRecords,
		SampleSize:  c.Audit.SampleSize,
		Temperature: &temp,
	})
}
