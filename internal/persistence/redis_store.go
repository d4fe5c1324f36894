package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/fluxoctx/pkg/api"
)

// RedisStore is a Store backed by Redis.
// It uses a simple key structure:
//
//	<prefix>ctx:<scope>   => HASH of key -> encoded value
//	<prefix>idx:scopes    => SET of every scope holding values
//
// Keys are reported in lexical order.
type RedisStore struct {
	opts   *redis.Options
	client *redis.Client
	owns   bool
	prefix string
	codec  Codec
}

var _ api.Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore that connects with opts when Open is
// called. prefix is optional but recommended (e.g. "fluxoctx:").
func NewRedisStore(opts *redis.Options, prefix string, codec Codec) *RedisStore {
	if prefix == "" {
		prefix = "fluxoctx:"
	}
	if codec == nil {
		codec = GobCodec{}
	}
	return &RedisStore{opts: opts, prefix: prefix, codec: codec}
}

// NewRedisStoreWithClient creates a RedisStore on an existing client. The
// caller keeps ownership of client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, codec Codec) *RedisStore {
	s := NewRedisStore(nil, prefix, codec)
	s.client = client
	return s
}

// NewRedisStoreFromConfig is the "redis" module factory.
//
// Options: "url" (redis://...) or "addr", "password", "db", "prefix",
// "codec".
func NewRedisStoreFromConfig(cfg api.StoreConfig) (api.Store, error) {
	codec, err := codecFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	var opts *redis.Options
	if url := cfg.String("url", ""); url != "" {
		opts, err = redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
	} else {
		opts = &redis.Options{
			Addr:     cfg.String("addr", "localhost:6379"),
			Password: cfg.String("password", ""),
			DB:       cfg.Int("db", 0),
		}
	}

	return NewRedisStore(opts, cfg.String("prefix", ""), codec), nil
}

func (r *RedisStore) keyScope(scope string) string {
	return r.prefix + "ctx:" + scope
}

func (r *RedisStore) keyScopes() string {
	return r.prefix + "idx:scopes"
}

func (r *RedisStore) Open(ctx context.Context) error {
	if r.client == nil {
		r.client = redis.NewClient(r.opts)
		r.owns = true
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close(ctx context.Context) error {
	if r.client == nil || !r.owns {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *RedisStore) Get(ctx context.Context, scope, key string) (any, error) {
	data, err := r.client.HGet(ctx, r.keyScope(scope), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return r.codec.Decode(data)
}

func (r *RedisStore) Set(ctx context.Context, scope, key string, value any) error {
	if value == nil {
		return r.clear(ctx, scope, key)
	}

	data, err := r.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", scope, key, err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.keyScope(scope), key, data)
	pipe.SAdd(ctx, r.keyScopes(), scope)
	_, err = pipe.Exec(ctx)
	return err
}

// clearScript removes a field and drops the scope from the index once its
// hash is empty, atomically with respect to concurrent writers.
//
//	KEYS[1] scope hash, KEYS[2] scope index
//	ARGV[1] key,        ARGV[2] scope
var clearScript = redis.NewScript(`
redis.call("HDEL", KEYS[1], ARGV[1])
if redis.call("HLEN", KEYS[1]) == 0 then
	redis.call("SREM", KEYS[2], ARGV[2])
end
return 0
`)

func (r *RedisStore) clear(ctx context.Context, scope, key string) error {
	return clearScript.Run(ctx, r.client, []string{r.keyScope(scope), r.keyScopes()}, key, scope).Err()
}

func (r *RedisStore) Keys(ctx context.Context, scope string) ([]string, error) {
	keys, err := r.client.HKeys(ctx, r.keyScope(scope)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisStore) Delete(ctx context.Context, scope string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.keyScope(scope))
	pipe.SRem(ctx, r.keyScopes(), scope)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Clean(ctx context.Context, activeNodes []string) error {
	scopes, err := r.client.SMembers(ctx, r.keyScopes()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	stale := staleScopes(scopes, activeNodes)
	if len(stale) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, scope := range stale {
		pipe.Del(ctx, r.keyScope(scope))
		pipe.SRem(ctx, r.keyScopes(), scope)
	}
	_, err = pipe.Exec(ctx)
	return err
}
