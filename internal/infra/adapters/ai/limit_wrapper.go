package ai

import (
	"context"

	"agent-hub/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ChatModel = (*limitedModel)(nil)

type limitedModel struct {
	inner adapter.ChatModel
	sem   chan struct{}
}

// NewLimitedModel caps concurrent backend calls. A waiting call gives up when
// its context ends.
func NewLimitedModel(inner adapter.ChatModel, maxConcurrent int) adapter.ChatModel {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedModel{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedModel) Name() string  { return l.inner.Name() }
func (l *limitedModel) Model() string { return l.inner.Model() }

func (l *limitedModel) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedModel) CountTokens(ctx context.Context, messages []adapter.Message) (int, error) {
	if err := l.acquire(ctx); err != nil {
		return 0, err
	}
	defer func() { <-l.sem }()
	return l.inner.CountTokens(ctx, messages)
}

func (l *limitedModel) ChatWithUsage(ctx context.Context, messages []adapter.Message) (string, adapter.Usage, error) {
	if err := l.acquire(ctx); err != nil {
		return "", adapter.Usage{}, err
	}
	defer func() { <-l.sem }()
	return l.inner.ChatWithUsage(ctx, messages)
}
