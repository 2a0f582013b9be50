package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
	"agent-hub/internal/infra/metrics"
	red "agent-hub/internal/infra/redis"
)

var _ repository.PolicyRepository = (*policyRepoCacheDecorator)(nil)

// policyRepoCacheDecorator caches automation policies in Redis. Every run
// reads the policy once, so hits save a round trip per run.
type policyRepoCacheDecorator struct {
	inner  repository.PolicyRepository
	cache  red.RedisClient
	ttl    time.Duration
	logger zerolog.Logger
}

func NewPolicyRepoCacheDecorator(inner repository.PolicyRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.PolicyRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &policyRepoCacheDecorator{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "policy_cache").Logger(),
	}
}

func policyKey(projectID string) string {
	return fmt.Sprintf("agenthub:policy:%s", projectID)
}

func (d *policyRepoCacheDecorator) GetByProject(ctx context.Context, tx repository.Tx, projectID string) (*model.Policy, error) {
	key := policyKey(projectID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var p model.Policy
		if json.Unmarshal([]byte(val), &p) == nil {
			metrics.IncCacheRequest("policy", "hit")
			return &p, nil
		}
	} else if !red.IsNil(err) {
		d.logger.Warn().Err(err).Str("project_id", projectID).Msg("policy cache read failed")
	}

	metrics.IncCacheRequest("policy", "miss")
	p, err := d.inner.GetByProject(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if bytes, err := json.Marshal(p); err == nil {
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return p, nil
}

// Save invalidates before writing so a concurrent reader cannot re-cache
// the old row after the write lands.
func (d *policyRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, p *model.Policy) error {
	_ = d.cache.Del(ctx, policyKey(p.ProjectID))
	if err := d.inner.Save(ctx, tx, p); err != nil {
		return err
	}
	_ = d.cache.Del(ctx, policyKey(p.ProjectID))
	return nil
}
