package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"agent-hub/internal/config"
	"agent-hub/internal/domain"
	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/infra/metrics"
)

var _ adapter.ProviderResolver = (*Resolver)(nil)

type modelBuilder func(ctx context.Context) (adapter.ChatModel, error)

// Resolver builds providers on first use and caches them. When a model
// backend cannot be initialized and fallback is enabled the rule-based
// provider is returned in its place.
type Resolver struct {
	cfg      config.ProviderConfig
	rule     *RuleBasedProvider
	builders map[string]modelBuilder
	log      *zerolog.Logger

	mu    sync.Mutex
	cache map[string]adapter.ContentProvider
}

func NewResolver(cfg config.ProviderConfig, logger *zerolog.Logger) *Resolver {
	l := logger.With().Str("component", "provider_resolver").Logger()
	r := &Resolver{
		cfg:   cfg,
		rule:  NewRuleBasedProvider(),
		log:   &l,
		cache: map[string]adapter.ContentProvider{},
	}
	r.builders = map[string]modelBuilder{
		OpenAIName: func(ctx context.Context) (adapter.ChatModel, error) {
			return NewOpenAIChatModel(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.MaxOutputTokens)
		},
		GeminiName: func(ctx context.Context) (adapter.ChatModel, error) {
			return NewGeminiChatModel(ctx, cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Gemini.Model, cfg.MaxOutputTokens)
		},
	}
	return r
}

func canonicalName(name string) string {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "rule-based", "default":
		return RuleBasedName
	default:
		return n
	}
}

func (r *Resolver) Resolve(name string) (adapter.ContentProvider, error) {
	name = canonicalName(name)
	if name == "" {
		name = canonicalName(r.cfg.Name)
	}
	if name == "" || name == RuleBasedName {
		return r.rule, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.cache[name]; ok {
		return p, nil
	}
	build, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider %q", domain.ErrInvalidArgument, name)
	}
	chat, err := build(context.Background())
	if err != nil {
		if !r.cfg.Fallback {
			return nil, fmt.Errorf("provider %s unavailable: %w", name, err)
		}
		metrics.IncProviderFallback(name, "init")
		r.log.Warn().Err(err).Str("provider", name).Msg("provider unavailable; falling back to rule_based")
		r.cache[name] = r.rule
		return r.rule, nil
	}
	p := NewModelProvider(NewLimitedModel(chat, r.cfg.ConcurrentLimit), r.rule, r.cfg.Timeout, r.cfg.MaxPromptTokens, r.log)
	r.cache[name] = p
	r.log.Info().Str("provider", name).Str("model", chat.Model()).Msg("provider initialized")
	return p, nil
}
