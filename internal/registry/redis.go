// ABOUTME: Redis-backed registry for distributed deployments.
// ABOUTME: One hash per agent; store failures surface as ErrStoreUnavailable.

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldEndpoint     = "agent_url"
	fieldRegisteredAt = "registered_at"
	fieldLastSeen     = "last_seen"
)

// RedisRegistryConfig holds connection parameters for the Redis backend.
type RedisRegistryConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // defaults to "agents"
}

// RedisRegistry delegates the directory to a shared Redis instance so
// multiple agent processes see a consistent view. Each agent is a hash
// under <prefix>:<agent_id>. The registry adds no locking of its own; it
// relies on Redis command atomicity.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisRegistry connects to Redis and verifies the connection with a
// ping before returning.
func NewRedisRegistry(ctx context.Context, cfg RedisRegistryConfig) (*RedisRegistry, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "agents"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: connecting to redis at %s: %v", ErrStoreUnavailable, cfg.Addr, err)
	}

	return &RedisRegistry{
		client: client,
		prefix: prefix,
		logger: slog.Default().With("component", "registry", "backend", "redis"),
		now:    time.Now,
	}, nil
}

// Register upserts the agent hash. HSetNX seeds registered_at only on the
// first registration; endpoint and last_seen are always refreshed.
func (r *RedisRegistry) Register(ctx context.Context, agentID, endpoint string) (*AgentRecord, error) {
	key := r.key(agentID)
	now := r.now().UTC().Format(time.RFC3339)

	pipe := r.client.TxPipeline()
	pipe.HSetNX(ctx, key, fieldRegisteredAt, now)
	pipe.HSet(ctx, key, fieldEndpoint, endpoint, fieldLastSeen, now)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: registering %s: %v", ErrStoreUnavailable, agentID, err)
	}

	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: reading back %s: %v", ErrStoreUnavailable, agentID, err)
	}

	r.logger.Debug("agent registered", "agent_id", agentID, "endpoint", endpoint)
	return recordFromHash(agentID, fields), nil
}

// Lookup returns the endpoint for an agent, or ErrAgentNotFound.
func (r *RedisRegistry) Lookup(ctx context.Context, agentID string) (string, error) {
	endpoint, err := r.client.HGet(ctx, r.key(agentID), fieldEndpoint).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: looking up %s: %v", ErrStoreUnavailable, agentID, err)
	}
	return endpoint, nil
}

// List scans all agent hashes and returns the records sorted by agent ID.
func (r *RedisRegistry) List(ctx context.Context) ([]*AgentRecord, error) {
	var out []*AgentRecord

	iter := r.client.Scan(ctx, 0, r.prefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := r.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrStoreUnavailable, key, err)
		}
		if len(fields) == 0 {
			continue // expired between scan and read
		}
		out = append(out, recordFromHash(key[len(r.prefix)+1:], fields))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scanning agents: %v", ErrStoreUnavailable, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

// Unregister deletes the agent hash. Deleting an absent key is a no-op.
func (r *RedisRegistry) Unregister(ctx context.Context, agentID string) error {
	if err := r.client.Del(ctx, r.key(agentID)).Err(); err != nil {
		return fmt.Errorf("%w: unregistering %s: %v", ErrStoreUnavailable, agentID, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

func (r *RedisRegistry) key(agentID string) string {
	return r.prefix + ":" + agentID
}

func recordFromHash(agentID string, fields map[string]string) *AgentRecord {
	rec := &AgentRecord{AgentID: agentID, Endpoint: fields[fieldEndpoint]}
	rec.RegisteredAt, _ = time.Parse(time.RFC3339, fields[fieldRegisteredAt])
	rec.LastSeen, _ = time.Parse(time.RFC3339, fields[fieldLastSeen])
	return rec
}
