// Package memory implements kv.Store entirely in process memory. Optimistic
// transactions are emulated with per-key version counters behind a single
// mutex: Watch snapshots the versions of the watched keys and Commit applies
// its batch only if none of them moved. This sacrifices cross-process
// sharing but preserves the same conflict semantics as the networked
// backends, so it is also what the concurrency tests run against.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/spacefleet/spaceship/internal/kv"
)

type zentry struct {
	score float64
	seq   uint64
}

// Store is an in-memory kv.Store. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	strings  map[string]string
	hashes   map[string]map[string]string
	zsets    map[string]map[string]zentry
	versions map[string]uint64
	zseq     uint64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		strings:  make(map[string]string),
		hashes:   make(map[string]map[string]string),
		zsets:    make(map[string]map[string]zentry),
		versions: make(map[string]uint64),
	}
}

// Close releases nothing; it exists to satisfy kv.Store.
func (s *Store) Close() error { return nil }

func (s *Store) bump(key string) {
	s.versions[key]++
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *Store) getLocked(key string) (string, error) {
	v, ok := s.strings[key]
	if !ok {
		return "", kv.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[key] = value
	s.bump(key)
	return nil
}

func (s *Store) GetFloat(ctx context.Context, key string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getFloatLocked(key)
}

func (s *Store) getFloatLocked(key string) (float64, error) {
	v, ok := s.strings[key]
	if !ok {
		return 0, kv.ErrNotFound
	}
	return strconv.ParseFloat(v, 64)
}

func (s *Store) IncrByFloat(_ context.Context, key string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrByFloatLocked(key, delta)
}

func (s *Store) incrByFloatLocked(key string, delta float64) (float64, error) {
	var cur float64
	if v, ok := s.strings[key]; ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, err
		}
		cur = parsed
	}
	cur += delta
	s.strings[key] = strconv.FormatFloat(cur, 'f', -1, 64)
	s.bump(key)
	return cur, nil
}

func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hGetAllLocked(key)
}

func (s *Store) hGetAllLocked(key string) (map[string]string, error) {
	h, ok := s.hashes[key]
	if !ok {
		// Matches the networked backends: a missing hash reads as empty.
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

func (s *Store) ZMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zMembersLocked(key)
}

func (s *Store) zMembersLocked(key string) ([]string, error) {
	zs, ok := s.zsets[key]
	if !ok {
		return nil, nil
	}
	members := sortedMembers(zs, func(zentry) bool { return true })
	return members, nil
}

func (s *Store) ZAdd(_ context.Context, key, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zAddLocked(key, member, score)
	return nil
}

func (s *Store) zAddLocked(key, member string, score float64) {
	zs, ok := s.zsets[key]
	if !ok {
		zs = make(map[string]zentry)
		s.zsets[key] = zs
	}
	s.zseq++
	seq := s.zseq
	if prev, exists := zs[member]; exists {
		// Keep insertion order stable when only the score changes.
		seq = prev.seq
	}
	zs[member] = zentry{score: score, seq: seq}
	s.bump(key)
}

func (s *Store) ZRangeByScore(_ context.Context, key string, min, max float64) ([]kv.ZMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs, ok := s.zsets[key]
	if !ok {
		return nil, nil
	}
	members := sortedMembers(zs, func(e zentry) bool { return e.score >= min && e.score <= max })
	out := make([]kv.ZMember, 0, len(members))
	for _, m := range members {
		out = append(out, kv.ZMember{Member: m, Score: zs[m].score})
	}
	return out, nil
}

func sortedMembers(zs map[string]zentry, keep func(zentry) bool) []string {
	members := make([]string, 0, len(zs))
	for m, e := range zs {
		if keep(e) {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		a, b := zs[members[i]], zs[members[j]]
		if a.score != b.score {
			return a.score < b.score
		}
		return a.seq < b.seq
	})
	return members
}

// Watch snapshots the versions of the watched keys and runs fn. The commit
// inside fn fails with kv.ErrTxFailed if any watched key was written in the
// meantime.
func (s *Store) Watch(_ context.Context, fn func(tx kv.Tx) error, keys ...string) error {
	s.mu.Lock()
	watched := make(map[string]uint64, len(keys))
	for _, k := range keys {
		watched[k] = s.versions[k]
	}
	s.mu.Unlock()

	return fn(&tx{store: s, watched: watched})
}

type tx struct {
	store   *Store
	watched map[string]uint64
}

func (t *tx) Get(key string) (string, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.getLocked(key)
}

func (t *tx) GetFloat(key string) (float64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.getFloatLocked(key)
}

func (t *tx) HGetAll(key string) (map[string]string, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.hGetAllLocked(key)
}

func (t *tx) ZMembers(key string) ([]string, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.zMembersLocked(key)
}

func (t *tx) Commit(fn func(p kv.Pipeline) error) error {
	p := &pipeline{}
	if err := fn(p); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for key, version := range t.watched {
		if t.store.versions[key] != version {
			return kv.ErrTxFailed
		}
	}
	for _, op := range p.ops {
		if err := op(t.store); err != nil {
			return err
		}
	}
	return nil
}

// pipeline records writes and replays them under the store lock at commit.
type pipeline struct {
	ops []func(*Store) error
}

func (p *pipeline) Set(key, value string) {
	p.ops = append(p.ops, func(s *Store) error {
		s.strings[key] = value
		s.bump(key)
		return nil
	})
}

func (p *pipeline) HSet(key string, fields map[string]string) {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	p.ops = append(p.ops, func(s *Store) error {
		s.hashes[key] = copied
		s.bump(key)
		return nil
	})
}

func (p *pipeline) ZAdd(key, member string, score float64) {
	p.ops = append(p.ops, func(s *Store) error {
		s.zAddLocked(key, member, score)
		return nil
	})
}

func (p *pipeline) IncrByFloat(key string, delta float64) {
	p.ops = append(p.ops, func(s *Store) error {
		_, err := s.incrByFloatLocked(key, delta)
		return err
	})
}

func (p *pipeline) Del(keys ...string) {
	p.ops = append(p.ops, func(s *Store) error {
		for _, key := range keys {
			delete(s.strings, key)
			delete(s.hashes, key)
			delete(s.zsets, key)
			s.bump(key)
		}
		return nil
	})
}
