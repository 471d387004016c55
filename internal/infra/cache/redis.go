// Package cache keeps a Redis copy of agent views for dashboards. It is a
// read convenience, never the source of truth: the engine does not read it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
)

// ErrMiss is returned when a key is absent.
var ErrMiss = errors.New("cache miss")

// RedisClient is the subset of Redis the cache needs, so tests can fake it.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, values ...interface{}) error
	HDel(ctx context.Context, key string, fields ...string) error
}

// GoRedisClient adapts *redis.Client to RedisClient.
type GoRedisClient struct {
	rdb *redis.Client
}

// NewGoRedisClient connects lazily; call Ping to check the server.
func NewGoRedisClient(addr, password string, db, poolSize int) *GoRedisClient {
	return &GoRedisClient{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})}
}

func (c *GoRedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *GoRedisClient) Close() error {
	return c.rdb.Close()
}

func (c *GoRedisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (c *GoRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

func (c *GoRedisClient) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *GoRedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

func (c *GoRedisClient) HSet(ctx context.Context, key string, values ...interface{}) error {
	return c.rdb.HSet(ctx, key, values...).Err()
}

func (c *GoRedisClient) HDel(ctx context.Context, key string, fields ...string) error {
	return c.rdb.HDel(ctx, key, fields...).Err()
}

// AgentCache stores JSON agent views under banksim:* keys.
type AgentCache struct {
	client     RedisClient
	expiration time.Duration
}

// NewAgentCache creates a cache whose per-agent keys expire after ttl.
func NewAgentCache(client RedisClient, ttl time.Duration) *AgentCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &AgentCache{
		client:     client,
		expiration: ttl,
	}
}

// SetBank caches a bank under its registration id and adds it to the
// banks hash.
func (c *AgentCache) SetBank(ctx context.Context, view agent.BankView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal bank %d: %w", view.RegisteredID, err)
	}
	if err := c.client.Set(ctx, bankKey(view.RegisteredID), data, c.expiration); err != nil {
		return err
	}
	return c.client.HSet(ctx, banksKey, strconv.Itoa(int(view.RegisteredID)), string(data))
}

func (c *AgentCache) GetBank(ctx context.Context, id ident.ID) (*agent.BankView, error) {
	data, err := c.client.Get(ctx, bankKey(id))
	if err != nil {
		return nil, err
	}
	var v agent.BankView
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bank %d: %w", id, err)
	}
	return &v, nil
}

// GetBanks returns every bank in the hash, keyed by registration id.
func (c *AgentCache) GetBanks(ctx context.Context) (map[ident.ID]agent.BankView, error) {
	data, err := c.client.HGetAll(ctx, banksKey)
	if err != nil {
		return nil, err
	}

	out := make(map[ident.ID]agent.BankView, len(data))
	for field, raw := range data {
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("bad bank field %q: %w", field, err)
		}
		var v agent.BankView
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bank %d: %w", id, err)
		}
		out[ident.ID(id)] = v
	}
	return out, nil
}

// DropBank removes a bank from both the key space and the hash.
func (c *AgentCache) DropBank(ctx context.Context, id ident.ID) error {
	if err := c.client.Del(ctx, bankKey(id)); err != nil {
		return err
	}
	return c.client.HDel(ctx, banksKey, strconv.Itoa(int(id)))
}

func (c *AgentCache) SetHousehold(ctx context.Context, view agent.HouseholdView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal household %d: %w", view.ID, err)
	}
	return c.client.Set(ctx, householdKey(view.ID), data, c.expiration)
}

func (c *AgentCache) GetHousehold(ctx context.Context, id ident.ID) (*agent.HouseholdView, error) {
	data, err := c.client.Get(ctx, householdKey(id))
	if err != nil {
		return nil, err
	}
	var v agent.HouseholdView
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal household %d: %w", id, err)
	}
	return &v, nil
}

func (c *AgentCache) SetFed(ctx context.Context, view agent.FedView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal fed: %w", err)
	}
	return c.client.Set(ctx, fedKey, data, c.expiration)
}

func (c *AgentCache) GetFed(ctx context.Context) (*agent.FedView, error) {
	data, err := c.client.Get(ctx, fedKey)
	if err != nil {
		return nil, err
	}
	var v agent.FedView
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fed: %w", err)
	}
	return &v, nil
}

const (
	banksKey = "banksim:banks"
	fedKey   = "banksim:fed"
)

func bankKey(id ident.ID) string {
	return fmt.Sprintf("banksim:bank:%d", id)
}

func householdKey(id ident.ID) string {
	return fmt.Sprintf("banksim:household:%d", id)
}
