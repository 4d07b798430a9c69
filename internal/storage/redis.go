package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cartengine/internal/domain"
)

const redisKeyPrefix = "cart:"

// redisPayload is the JSON blob stored per (identifier, instance).
type redisPayload struct {
	ID         string                 `json:"id"`
	Items      []domain.CartItem      `json:"items,omitempty"`
	Conditions ConditionSet           `json:"conditions"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Version    int64                  `json:"version"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// Redis is the cache backend: one JSON payload per cart under a TTL.
// Best-effort persistence; version checks ride on WATCH so concurrent
// writers on the same key still conflict cleanly. It also serves
// session-scoped carts, keyed by the session identifier.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func redisKey(identifier, instance string) string {
	return redisKeyPrefix + identifier + ":" + instance
}

func (r *Redis) load(ctx context.Context, identifier, instance string) (*redisPayload, error) {
	raw, err := r.client.Get(ctx, redisKey(identifier, instance)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var p redisPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode cart payload: %w", err)
	}
	return &p, nil
}

// update applies fn to the current payload under WATCH, bumping version and
// timestamps before writing back. fn gets a fresh payload when the key is
// absent (implicit creation on first write).
func (r *Redis) update(ctx context.Context, identifier, instance string, fn func(p *redisPayload) error) (int64, error) {
	key := redisKey(identifier, instance)
	var version int64

	txn := func(tx *redis.Tx) error {
		var p redisPayload
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			now := time.Now().UTC()
			p = redisPayload{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("decode cart payload: %w", err)
			}
		}

		if err := fn(&p); err != nil {
			return err
		}
		p.Version++
		p.UpdatedAt = time.Now().UTC()
		version = p.Version

		out, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode cart payload: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, r.ttl)
			return nil
		})
		return err
	}

	if err := r.client.Watch(ctx, txn, key); err != nil {
		return 0, err
	}
	return version, nil
}

func (r *Redis) Has(ctx context.Context, identifier, instance string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKey(identifier, instance)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) GetItems(ctx context.Context, identifier, instance string) ([]domain.CartItem, error) {
	p, err := r.load(ctx, identifier, instance)
	if err != nil || p == nil {
		return nil, err
	}
	return p.Items, nil
}

func (r *Redis) PutItems(ctx context.Context, identifier, instance string, items []domain.CartItem, expected int64) (int64, error) {
	return r.update(ctx, identifier, instance, func(p *redisPayload) error {
		if err := checkVersion(p.Version, expected); err != nil {
			return err
		}
		p.Items = items
		return nil
	})
}

func (r *Redis) GetConditions(ctx context.Context, identifier, instance string) (ConditionSet, error) {
	p, err := r.load(ctx, identifier, instance)
	if err != nil || p == nil {
		return ConditionSet{}, err
	}
	return p.Conditions, nil
}

func (r *Redis) PutConditions(ctx context.Context, identifier, instance string, conditions ConditionSet, expected int64) (int64, error) {
	return r.update(ctx, identifier, instance, func(p *redisPayload) error {
		if err := checkVersion(p.Version, expected); err != nil {
			return err
		}
		p.Conditions = conditions
		return nil
	})
}

func (r *Redis) PutBoth(ctx context.Context, identifier, instance string, items []domain.CartItem, conditions ConditionSet, expected int64) (int64, error) {
	return r.update(ctx, identifier, instance, func(p *redisPayload) error {
		if err := checkVersion(p.Version, expected); err != nil {
			return err
		}
		p.Items = items
		p.Conditions = conditions
		return nil
	})
}

func (r *Redis) GetMetadata(ctx context.Context, identifier, instance, key string) (interface{}, bool, error) {
	p, err := r.load(ctx, identifier, instance)
	if err != nil || p == nil {
		return nil, false, err
	}
	v, ok := p.Metadata[key]
	return v, ok, nil
}

func (r *Redis) PutMetadata(ctx context.Context, identifier, instance, key string, value interface{}) error {
	_, err := r.update(ctx, identifier, instance, func(p *redisPayload) error {
		if p.Metadata == nil {
			p.Metadata = make(map[string]interface{})
		}
		p.Metadata[key] = value
		return nil
	})
	return err
}

func (r *Redis) PutMetadataBatch(ctx context.Context, identifier, instance string, values map[string]interface{}) error {
	_, err := r.update(ctx, identifier, instance, func(p *redisPayload) error {
		if p.Metadata == nil {
			p.Metadata = make(map[string]interface{}, len(values))
		}
		for k, v := range values {
			p.Metadata[k] = v
		}
		return nil
	})
	return err
}

// DeleteMetadata is a no-op for unknown carts; deleting never creates the
// backing record.
func (r *Redis) DeleteMetadata(ctx context.Context, identifier, instance, key string) error {
	ok, err := r.Has(ctx, identifier, instance)
	if err != nil || !ok {
		return err
	}
	_, err = r.update(ctx, identifier, instance, func(p *redisPayload) error {
		delete(p.Metadata, key)
		return nil
	})
	return err
}

func (r *Redis) GetAllMetadata(ctx context.Context, identifier, instance string) (map[string]interface{}, error) {
	p, err := r.load(ctx, identifier, instance)
	if err != nil || p == nil {
		return map[string]interface{}{}, err
	}
	if p.Metadata == nil {
		return map[string]interface{}{}, nil
	}
	return p.Metadata, nil
}

func (r *Redis) ClearMetadata(ctx context.Context, identifier, instance string) error {
	ok, err := r.Has(ctx, identifier, instance)
	if err != nil || !ok {
		return err
	}
	_, err = r.update(ctx, identifier, instance, func(p *redisPayload) error {
		p.Metadata = nil
		return nil
	})
	return err
}

func (r *Redis) Forget(ctx context.Context, identifier, instance string) error {
	return r.client.Del(ctx, redisKey(identifier, instance)).Err()
}

func (r *Redis) ForgetIdentifier(ctx context.Context, identifier string) error {
	keys, err := r.scan(ctx, redisKeyPrefix+identifier+":*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Instances(ctx context.Context, identifier string) ([]string, error) {
	prefix := redisKeyPrefix + identifier + ":"
	keys, err := r.scan(ctx, prefix+"*")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	return out, nil
}

func (r *Redis) Version(ctx context.Context, identifier, instance string) (int64, bool, error) {
	p, err := r.load(ctx, identifier, instance)
	if err != nil {
		return 0, false, err
	}
	if p == nil {
		return 0, true, nil
	}
	return p.Version, true, nil
}

// ID reads the stored cart id without consuming a version. An absent cart
// gets its record created at version zero so the id is stable afterwards.
func (r *Redis) ID(ctx context.Context, identifier, instance string) (string, error) {
	p, err := r.load(ctx, identifier, instance)
	if err != nil {
		return "", err
	}
	if p != nil {
		return p.ID, nil
	}

	now := time.Now().UTC()
	fresh := redisPayload{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	out, err := json.Marshal(fresh)
	if err != nil {
		return "", fmt.Errorf("encode cart payload: %w", err)
	}
	created, err := r.client.SetNX(ctx, redisKey(identifier, instance), out, r.ttl).Result()
	if err != nil {
		return "", err
	}
	if created {
		return fresh.ID, nil
	}
	// Lost the creation race; read the winner's id.
	p, err = r.load(ctx, identifier, instance)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", fmt.Errorf("cart %s:%s vanished during id lookup", identifier, instance)
	}
	return p.ID, nil
}

func (r *Redis) SwapIdentifier(ctx context.Context, oldIdentifier, newIdentifier, instance string) (bool, error) {
	oldKey := redisKey(oldIdentifier, instance)
	raw, err := r.client.Get(ctx, oldKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisKey(newIdentifier, instance), raw, r.ttl)
	pipe.Del(ctx, oldKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) CreatedAt(ctx context.Context, identifier, instance string) (*time.Time, error) {
	p, err := r.load(ctx, identifier, instance)
	if err != nil || p == nil {
		return nil, err
	}
	t := p.CreatedAt
	return &t, nil
}

func (r *Redis) UpdatedAt(ctx context.Context, identifier, instance string) (*time.Time, error) {
	p, err := r.load(ctx, identifier, instance)
	if err != nil || p == nil {
		return nil, err
	}
	t := p.UpdatedAt
	return &t, nil
}

func (r *Redis) Flush(ctx context.Context) error {
	keys, err := r.scan(ctx, redisKeyPrefix+"*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
