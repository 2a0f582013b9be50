//go:build !integration

package postgres

import (
	"context"
	"time"

	"agent-hub/internal/domain/model"
	"agent-hub/internal/domain/ports/repository"
	red "agent-hub/internal/infra/redis"
)

// mockInnerPolicyRepo mocks the database repository that the policy decorator wraps.
type mockInnerPolicyRepo struct {
	GetByProjectFunc func(ctx context.Context, tx repository.Tx, projectID string) (*model.Policy, error)
	SaveFunc         func(ctx context.Context, tx repository.Tx, p *model.Policy) error
}

func (m *mockInnerPolicyRepo) GetByProject(ctx context.Context, tx repository.Tx, projectID string) (*model.Policy, error) {
	return m.GetByProjectFunc(ctx, tx, projectID)
}
func (m *mockInnerPolicyRepo) Save(ctx context.Context, tx repository.Tx, p *model.Policy) error {
	return m.SaveFunc(ctx, tx, p)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc   func(ctx context.Context, key string) (string, error)
	SetFunc   func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc   func(ctx context.Context, keys ...string) error
	PingFunc  func(ctx context.Context) error
	CloseFunc func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Close() error                   { return m.CloseFunc() }
