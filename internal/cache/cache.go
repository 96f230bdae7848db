// Package cache keeps the latest fused state and response per session in
// Redis so frontends can poll without touching Postgres or replaying the bus.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/response"
)

// ErrMiss is returned when no value is cached for the session.
var ErrMiss = errors.New("cache miss")

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{client: client, ttl: ttl, logger: logger}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func stateKey(sessionID uuid.UUID) string {
	return "attune:session:" + sessionID.String() + ":state"
}

func responseKey(sessionID uuid.UUID) string {
	return "attune:session:" + sessionID.String() + ":response"
}

// SetLatestState overwrites the cached state for the session.
func (c *Cache) SetLatestState(ctx context.Context, sessionID uuid.UUID, st fusion.IntegratedState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := c.client.Set(ctx, stateKey(sessionID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// LatestState loads the cached state for the session.
func (c *Cache) LatestState(ctx context.Context, sessionID uuid.UUID) (fusion.IntegratedState, error) {
	var st fusion.IntegratedState
	payload, err := c.client.Get(ctx, stateKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return st, ErrMiss
	}
	if err != nil {
		return st, fmt.Errorf("get state: %w", err)
	}
	if err := json.Unmarshal(payload, &st); err != nil {
		return st, fmt.Errorf("unmarshal state: %w", err)
	}
	return st, nil
}

// SetLatestResponse overwrites the cached response for the session.
func (c *Cache) SetLatestResponse(ctx context.Context, sessionID uuid.UUID, r response.TherapeuticResponse) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := c.client.Set(ctx, responseKey(sessionID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set response: %w", err)
	}
	return nil
}

// LatestResponse loads the cached response for the session.
func (c *Cache) LatestResponse(ctx context.Context, sessionID uuid.UUID) (response.TherapeuticResponse, error) {
	var r response.TherapeuticResponse
	payload, err := c.client.Get(ctx, responseKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return r, ErrMiss
	}
	if err != nil {
		return r, fmt.Errorf("get response: %w", err)
	}
	if err := json.Unmarshal(payload, &r); err != nil {
		return r, fmt.Errorf("unmarshal response: %w", err)
	}
	return r, nil
}
