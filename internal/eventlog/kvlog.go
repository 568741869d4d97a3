package eventlog

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/spacefleet/spaceship/internal/kv"
)

// envelope is the wire form of one event in the backing store.
type envelope struct {
	ID   string             `msgpack:"id"`
	TS   int64              `msgpack:"ts"`
	Seq  uint64             `msgpack:"seq"`
	Data msgpack.RawMessage `msgpack:"data"`
}

// KVLog persists events as msgpack blobs in a sorted set on the backing
// store, scored by timestamp. The per-process sequence number keeps members
// unique and preserves insertion order for equal timestamps.
type KVLog struct {
	store kv.Store
	key   string
	ctx   context.Context
	seq   atomic.Uint64
	count atomic.Int64
}

// NewKVLog creates a store-backed log writing to the given key.
func NewKVLog(ctx context.Context, store kv.Store, key string) *KVLog {
	return &KVLog{store: store, key: key, ctx: ctx}
}

func (l *KVLog) Add(event Event) error {
	raw, err := msgpack.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}
	member, err := msgpack.Marshal(envelope{
		ID:   event.ID.String(),
		TS:   event.Timestamp.UnixNano(),
		Seq:  l.seq.Add(1),
		Data: raw,
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := l.store.ZAdd(l.ctx, l.key, string(member), float64(event.Timestamp.UnixNano())); err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	l.count.Add(1)
	return nil
}

// Events returns the logged entries in [start, end]. Data comes back as
// msgpack.RawMessage for the caller to decode.
func (l *KVLog) Events(start, end time.Time) ([]Event, error) {
	members, err := l.store.ZRangeByScore(l.ctx, l.key,
		float64(start.UnixNano()), float64(end.UnixNano()))
	if err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	out := make([]Event, 0, len(members))
	for _, m := range members {
		var env envelope
		if err := msgpack.Unmarshal([]byte(m.Member), &env); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		id, err := uuid.Parse(env.ID)
		if err != nil {
			return nil, fmt.Errorf("decoding event id: %w", err)
		}
		out = append(out, Event{
			ID:        id,
			Timestamp: time.Unix(0, env.TS),
			Data:      env.Data,
		})
	}
	return out, nil
}

func (l *KVLog) Len() int {
	return int(l.count.Load())
}
