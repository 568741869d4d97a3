package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacefleet/spaceship/internal/kv"
)

func TestStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, s.Set(ctx, "greeting", "hello"))
	got, err := s.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestStore_Floats(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetFloat(ctx, "counter")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	v, err := s.IncrByFloat(ctx, "counter", 2.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = s.IncrByFloat(ctx, "counter", -1)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	got, err := s.GetFloat(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, 1.5, got)
}

func TestStore_HGetAll_MissingIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := New()

	fields, err := s.HGetAll(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestStore_ZSetOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.ZAdd(ctx, "idx", "heavy", 100))
	require.NoError(t, s.ZAdd(ctx, "idx", "light", 1))
	require.NoError(t, s.ZAdd(ctx, "idx", "tie-a", 50))
	require.NoError(t, s.ZAdd(ctx, "idx", "tie-b", 50))

	members, err := s.ZMembers(ctx, "idx")
	require.NoError(t, err)
	assert.Equal(t, []string{"light", "tie-a", "tie-b", "heavy"}, members)

	ranged, err := s.ZRangeByScore(ctx, "idx", 50, 100)
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	assert.Equal(t, "tie-a", ranged[0].Member)
	assert.Equal(t, "tie-b", ranged[1].Member)
	assert.Equal(t, "heavy", ranged[2].Member)
}

func TestStore_WatchCommit(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Watch(ctx, func(tx kv.Tx) error {
		return tx.Commit(func(p kv.Pipeline) error {
			p.Set("a", "1")
			p.HSet("h", map[string]string{"f": "v"})
			p.ZAdd("z", "m", 3)
			p.IncrByFloat("c", 2)
			return nil
		})
	}, "a")
	require.NoError(t, err)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", got)

	fields, err := s.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f": "v"}, fields)

	c, err := s.GetFloat(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 2.0, c)
}

func TestStore_WatchConflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "watched", "initial"))

	err := s.Watch(ctx, func(tx kv.Tx) error {
		// Another writer touches the watched key mid-transaction.
		require.NoError(t, s.Set(ctx, "watched", "changed"))

		return tx.Commit(func(p kv.Pipeline) error {
			p.Set("out", "should not land")
			return nil
		})
	}, "watched")
	assert.ErrorIs(t, err, kv.ErrTxFailed)

	_, err = s.Get(ctx, "out")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStore_WatchUnrelatedWriteCommits(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Watch(ctx, func(tx kv.Tx) error {
		require.NoError(t, s.Set(ctx, "unrelated", "x"))
		return tx.Commit(func(p kv.Pipeline) error {
			p.Set("out", "landed")
			return nil
		})
	}, "watched")
	require.NoError(t, err)

	got, err := s.Get(ctx, "out")
	require.NoError(t, err)
	assert.Equal(t, "landed", got)
}

func TestStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	s := New()

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.IncrByFloat(ctx, "counter", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetFloat(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, float64(workers), got)
}

func TestPipeline_Del(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "a", "1"))

	err := s.Watch(ctx, func(tx kv.Tx) error {
		return tx.Commit(func(p kv.Pipeline) error {
			p.Del("a")
			return nil
		})
	}, "a")
	require.NoError(t, err)

	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}
