// Package rediskv implements kv.Store on Redis. The optimistic transaction
// maps directly onto WATCH/MULTI/EXEC: go-redis reports a conflicting write
// to a watched key as redis.TxFailedErr, which is translated to
// kv.ErrTxFailed so callers stay backend-agnostic.
package rediskv

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/spacefleet/spaceship/internal/kv"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store is a Redis-backed kv.Store.
type Store struct {
	client *redis.Client
	logger zerolog.Logger
}

// Connect opens a Redis connection and verifies it with a PING.
func Connect(ctx context.Context, opts Options, log zerolog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Connected to Redis")
	return &Store{client: client, logger: log}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return kv.ErrTxFailed
	case errors.Is(err, redis.Nil):
		return kv.ErrNotFound
	default:
		return err
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	return v, translate(err)
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return translate(s.client.Set(ctx, key, value, 0).Err())
}

func (s *Store) GetFloat(ctx context.Context, key string) (float64, error) {
	v, err := s.client.Get(ctx, key).Float64()
	return v, translate(err)
}

func (s *Store) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	v, err := s.client.IncrByFloat(ctx, key, delta).Result()
	return v, translate(err)
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := s.client.HGetAll(ctx, key).Result()
	return v, translate(err)
}

func (s *Store) ZMembers(ctx context.Context, key string) ([]string, error) {
	v, err := s.client.ZRange(ctx, key, 0, -1).Result()
	return v, translate(err)
}

func (s *Store) ZAdd(ctx context.Context, key, member string, score float64) error {
	return translate(s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err())
}

func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]kv.ZMember, error) {
	zs, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatFloat(min, 'f', -1, 64),
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, translate(err)
	}
	out := make([]kv.ZMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected sorted set member type %T", z.Member)
		}
		out = append(out, kv.ZMember{Member: member, Score: z.Score})
	}
	return out, nil
}

// Watch runs fn under a Redis WATCH on the given keys.
func (s *Store) Watch(ctx context.Context, fn func(tx kv.Tx) error, keys ...string) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		return fn(&tx{ctx: ctx, rtx: rtx})
	}, keys...)
	return translate(err)
}

type tx struct {
	ctx context.Context
	rtx *redis.Tx
}

func (t *tx) Get(key string) (string, error) {
	v, err := t.rtx.Get(t.ctx, key).Result()
	return v, translate(err)
}

func (t *tx) GetFloat(key string) (float64, error) {
	v, err := t.rtx.Get(t.ctx, key).Float64()
	return v, translate(err)
}

func (t *tx) HGetAll(key string) (map[string]string, error) {
	v, err := t.rtx.HGetAll(t.ctx, key).Result()
	return v, translate(err)
}

func (t *tx) ZMembers(key string) ([]string, error) {
	v, err := t.rtx.ZRange(t.ctx, key, 0, -1).Result()
	return v, translate(err)
}

// Commit queues the batch with MULTI and EXECs it; a concurrent write to a
// watched key surfaces as kv.ErrTxFailed.
func (t *tx) Commit(fn func(p kv.Pipeline) error) error {
	_, err := t.rtx.TxPipelined(t.ctx, func(rp redis.Pipeliner) error {
		return fn(&pipeline{ctx: t.ctx, rp: rp})
	})
	return translate(err)
}

type pipeline struct {
	ctx context.Context
	rp  redis.Pipeliner
}

func (p *pipeline) Set(key, value string) {
	p.rp.Set(p.ctx, key, value, 0)
}

func (p *pipeline) HSet(key string, fields map[string]string) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	p.rp.HSet(p.ctx, key, args...)
}

func (p *pipeline) ZAdd(key, member string, score float64) {
	p.rp.ZAdd(p.ctx, key, redis.Z{Score: score, Member: member})
}

func (p *pipeline) IncrByFloat(key string, delta float64) {
	p.rp.IncrByFloat(p.ctx, key, delta)
}

func (p *pipeline) Del(keys ...string) {
	p.rp.Del(p.ctx, keys...)
}
