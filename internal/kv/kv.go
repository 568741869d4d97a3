// Package kv abstracts the backing key/value store. The interface is the
// minimal primitive set the ship subsystems depend on: an optimistic
// watch/commit transaction, atomic float increments, hash records and
// sorted-set indices.
package kv

import (
	"context"
	"errors"
)

// ErrTxFailed is returned by Tx.Commit (and surfaced through Watch) when a
// watched key was modified by another writer between Watch and Commit.
// Callers retry the whole watch cycle.
var ErrTxFailed = errors.New("kv: transaction failed, watched key changed")

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// ZMember is one member of a sorted set together with its score.
type ZMember struct {
	Member string
	Score  float64
}

// Pipeline queues writes that Commit applies as one atomic batch.
type Pipeline interface {
	// Set stores a string value.
	Set(key, value string)
	// HSet stores a hash record, replacing any existing fields.
	HSet(key string, fields map[string]string)
	// ZAdd inserts or updates a sorted-set member.
	ZAdd(key, member string, score float64)
	// IncrByFloat atomically adds delta to a float value (missing key
	// counts as zero).
	IncrByFloat(key string, delta float64)
	// Del removes keys.
	Del(keys ...string)
}

// Tx is the body of an optimistic transaction. Reads observe the store as of
// the call; Commit applies a queued batch only if none of the watched keys
// changed since Watch began, returning ErrTxFailed otherwise.
type Tx interface {
	Get(key string) (string, error)
	GetFloat(key string) (float64, error)
	HGetAll(key string) (map[string]string, error)
	ZMembers(key string) ([]string, error)
	Commit(fn func(p Pipeline) error) error
}

// Store is a connected handle to the backing key/value store. Implementations
// must be safe for concurrent use.
type Store interface {
	// Watch runs fn inside an optimistic transaction watching the given
	// keys. A conflicting concurrent write to a watched key causes the
	// commit inside fn to fail with ErrTxFailed; the error propagates out
	// of Watch unchanged. Watch itself never retries.
	Watch(ctx context.Context, fn func(tx Tx) error, keys ...string) error

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// GetFloat reads a float value; a missing key is ErrNotFound.
	GetFloat(ctx context.Context, key string) (float64, error)
	// IncrByFloat atomically adds delta and returns the new value.
	IncrByFloat(ctx context.Context, key string, delta float64) (float64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// ZMembers returns sorted-set members ordered by ascending score.
	ZMembers(ctx context.Context, key string) ([]string, error)
	// ZAdd inserts or updates a single sorted-set member.
	ZAdd(ctx context.Context, key, member string, score float64) error
	// ZRangeByScore returns members with min <= score <= max, ascending,
	// ties in insertion order.
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]ZMember, error)

	Close() error
}
