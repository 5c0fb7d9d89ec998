// README: Redis lease store; owner checks run server-side in Lua.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease payload is the JSON value at the key; owner comparison happens
// inside Lua so acquire/extend/release stay single round-trip atomic.
var (
	acquireScript = redis.NewScript(`
		local cur = redis.call('GET', KEYS[1])
		if not cur then
			redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
			return 1
		end
		if cjson.decode(cur)['owner_id'] == ARGV[2] then
			redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
			return 1
		end
		return cur`)

	extendScript = redis.NewScript(`
		local cur = redis.call('GET', KEYS[1])
		if not cur then
			return 0
		end
		if cjson.decode(cur)['owner_id'] ~= ARGV[1] then
			return -1
		end
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
		return 1`)

	releaseScript = redis.NewScript(`
		local cur = redis.call('GET', KEYS[1])
		if not cur then
			return 0
		end
		if cjson.decode(cur)['owner_id'] ~= ARGV[1] then
			return -1
		end
		redis.call('DEL', KEYS[1])
		return 1`)
)

type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client}
}

type leasePayload struct {
	OwnerID   string `json:"owner_id"`
	OwnerName string `json:"owner_name"`
}

func (s *RedisStore) Acquire(ctx context.Context, key, ownerID, ownerName string, ttl time.Duration) (*Lease, error) {
	payload, err := json.Marshal(leasePayload{OwnerID: ownerID, OwnerName: ownerName})
	if err != nil {
		return nil, err
	}
	res, err := acquireScript.Run(ctx, s.redis, []string{key},
		string(payload), ownerID, ttl.Milliseconds()).Result()
	if err != nil {
		return nil, err
	}
	switch v := res.(type) {
	case int64:
		return &Lease{ResourceKey: key, OwnerID: ownerID, OwnerName: ownerName, ExpiresAt: time.Now().Add(ttl)}, nil
	case string:
		holder, err := decodePayload(key, v)
		if err != nil {
			return nil, err
		}
		return holder, ErrLeaseHeld
	default:
		return nil, fmt.Errorf("lock: unexpected acquire reply %T", res)
	}
}

func (s *RedisStore) Extend(ctx context.Context, key, ownerID string, ttl time.Duration) (*Lease, error) {
	res, err := extendScript.Run(ctx, s.redis, []string{key}, ownerID, ttl.Milliseconds()).Int64()
	if err != nil {
		return nil, err
	}
	switch res {
	case 1:
		return &Lease{ResourceKey: key, OwnerID: ownerID, ExpiresAt: time.Now().Add(ttl)}, nil
	case 0:
		return nil, ErrLeaseExpired
	default:
		return nil, ErrNotOwner
	}
}

func (s *RedisStore) Release(ctx context.Context, key, ownerID string) error {
	res, err := releaseScript.Run(ctx, s.redis, []string{key}, ownerID).Int64()
	if err != nil {
		return err
	}
	if res == -1 {
		return ErrNotOwner
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Lease, error) {
	pipe := s.redis.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}
	val, err := getCmd.Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lease, err := decodePayload(key, val)
	if err != nil {
		return nil, err
	}
	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		lease.ExpiresAt = time.Now().Add(ttl)
	}
	return lease, nil
}

func decodePayload(key, val string) (*Lease, error) {
	var p leasePayload
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, fmt.Errorf("lock: corrupt lease payload at %s: %w", key, err)
	}
	return &Lease{ResourceKey: key, OwnerID: p.OwnerID, OwnerName: p.OwnerName}, nil
}
