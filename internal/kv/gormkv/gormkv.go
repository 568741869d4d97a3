// Package gormkv implements kv.Store on a relational database through GORM.
// Keys live in a single table with a version column; the optimistic
// transaction re-checks the watched versions inside a database transaction
// before applying its batch, which emulates WATCH/MULTI/EXEC on stores
// without a native conditional-commit primitive. Connects to Postgres and
// falls back to SQLite when that fails.
package gormkv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/spacefleet/spaceship/internal/kv"
)

// Entry is one key in the store. Hash-valued keys keep their fields in Hash;
// string and float values live in Value. Version moves on every write and is
// what Watch compares against.
type Entry struct {
	Key     string `gorm:"primaryKey;size:255"`
	Value   string
	Hash    datatypes.JSON
	Version uint64
}

func (*Entry) TableName() string { return "kv_entries" }

// ZSetMember is one sorted-set member. The autoincrement ID doubles as the
// insertion-order tiebreaker for equal scores.
type ZSetMember struct {
	ID     uint   `gorm:"primaryKey"`
	SetKey string `gorm:"uniqueIndex:idx_zset_key_member;size:255"`
	Member string `gorm:"uniqueIndex:idx_zset_key_member;size:512"`
	Score  float64
}

func (*ZSetMember) TableName() string { return "kv_zset_members" }

// Options configures the database connection.
type Options struct {
	// Postgres DSN parts. Ignored when SQLitePath is forced via UseSQLite.
	Host     string
	Port     string
	Username string
	Password string
	Database string

	// UseSQLite skips Postgres entirely.
	UseSQLite bool
	// SQLitePath is the database file; empty means in-memory.
	SQLitePath string
}

// Store is a GORM-backed kv.Store.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Connect opens the database, falling back to SQLite if Postgres is
// unreachable, and migrates the schema.
func Connect(opts Options, log zerolog.Logger) (*Store, error) {
	var db *gorm.DB
	var err error

	if !opts.UseSQLite {
		db, err = openPostgres(opts)
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to Postgres, trying SQLite")
		}
	}
	if db == nil {
		db, err = openSQLite(opts.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
		}
		if opts.SQLitePath == "" {
			log.Info().Msg("Using in-memory SQLite DB")
		} else {
			log.Info().Str("path", opts.SQLitePath).Msg("Using local SQLite DB")
		}
	}

	if err := db.AutoMigrate(&Entry{}, &ZSetMember{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv schema: %w", err)
	}

	return &Store{db: db, logger: log}, nil
}

func openPostgres(opts Options) (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		opts.Host, opts.Port, opts.Username, opts.Password, opts.Database)

	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func openSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var e Entry
	err := s.db.WithContext(ctx).First(&e, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return e.Value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).Transaction(func(dtx *gorm.DB) error {
		return setValue(dtx, key, value)
	})
}

func (s *Store) GetFloat(ctx context.Context, key string) (float64, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(v, 64)
}

func (s *Store) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	var result float64
	err := s.db.WithContext(ctx).Transaction(func(dtx *gorm.DB) error {
		var err error
		result, err = incrByFloat(dtx, key, delta)
		return err
	})
	return result, err
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var e Entry
	err := s.db.WithContext(ctx).First(&e, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	fields := map[string]string{}
	if len(e.Hash) > 0 {
		if err := json.Unmarshal(e.Hash, &fields); err != nil {
			return nil, fmt.Errorf("decoding hash at %s: %w", key, err)
		}
	}
	return fields, nil
}

func (s *Store) ZMembers(ctx context.Context, key string) ([]string, error) {
	var members []string
	err := s.db.WithContext(ctx).Model(&ZSetMember{}).
		Where("set_key = ?", key).
		Order("score ASC, id ASC").
		Pluck("member", &members).Error
	return members, err
}

func (s *Store) ZAdd(ctx context.Context, key, member string, score float64) error {
	return s.db.WithContext(ctx).Transaction(func(dtx *gorm.DB) error {
		return zAdd(dtx, key, member, score)
	})
}

func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]kv.ZMember, error) {
	var rows []ZSetMember
	err := s.db.WithContext(ctx).
		Where("set_key = ? AND score >= ? AND score <= ?", key, min, max).
		Order("score ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]kv.ZMember, 0, len(rows))
	for _, r := range rows {
		out = append(out, kv.ZMember{Member: r.Member, Score: r.Score})
	}
	return out, nil
}

// Watch snapshots the versions of the watched keys. Commit re-reads them
// inside a database transaction and aborts with kv.ErrTxFailed on any drift.
func (s *Store) Watch(ctx context.Context, fn func(tx kv.Tx) error, keys ...string) error {
	watched, err := s.readVersions(ctx, keys)
	if err != nil {
		return err
	}
	return fn(&tx{ctx: ctx, store: s, watched: watched})
}

func (s *Store) readVersions(ctx context.Context, keys []string) (map[string]uint64, error) {
	watched := make(map[string]uint64, len(keys))
	for _, k := range keys {
		watched[k] = 0
	}
	var rows []Entry
	if err := s.db.WithContext(ctx).Select("key", "version").Where("key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		watched[r.Key] = r.Version
	}
	return watched, nil
}

type tx struct {
	ctx     context.Context
	store   *Store
	watched map[string]uint64
}

func (t *tx) Get(key string) (string, error) {
	return t.store.Get(t.ctx, key)
}

func (t *tx) GetFloat(key string) (float64, error) {
	return t.store.GetFloat(t.ctx, key)
}

func (t *tx) HGetAll(key string) (map[string]string, error) {
	return t.store.HGetAll(t.ctx, key)
}

func (t *tx) ZMembers(key string) ([]string, error) {
	return t.store.ZMembers(t.ctx, key)
}

func (t *tx) Commit(fn func(p kv.Pipeline) error) error {
	p := &pipeline{}
	if err := fn(p); err != nil {
		return err
	}

	return t.store.db.WithContext(t.ctx).Transaction(func(dtx *gorm.DB) error {
		keys := make([]string, 0, len(t.watched))
		for k := range t.watched {
			keys = append(keys, k)
		}
		current := make(map[string]uint64, len(keys))
		var rows []Entry
		q := dtx.Select("key", "version").Where("key IN ?", keys)
		if dtx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			current[r.Key] = r.Version
		}
		for key, version := range t.watched {
			if current[key] != version {
				return kv.ErrTxFailed
			}
		}
		for _, op := range p.ops {
			if err := op(dtx); err != nil {
				return err
			}
		}
		return nil
	})
}

type pipeline struct {
	ops []func(*gorm.DB) error
}

func (p *pipeline) Set(key, value string) {
	p.ops = append(p.ops, func(dtx *gorm.DB) error {
		return setValue(dtx, key, value)
	})
}

func (p *pipeline) HSet(key string, fields map[string]string) {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	p.ops = append(p.ops, func(dtx *gorm.DB) error {
		raw, err := json.Marshal(copied)
		if err != nil {
			return err
		}
		return dtx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"hash":    datatypes.JSON(raw),
				"version": gorm.Expr("kv_entries.version + 1"),
			}),
		}).Create(&Entry{Key: key, Hash: datatypes.JSON(raw), Version: 1}).Error
	})
}

func (p *pipeline) ZAdd(key, member string, score float64) {
	p.ops = append(p.ops, func(dtx *gorm.DB) error {
		return zAdd(dtx, key, member, score)
	})
}

func (p *pipeline) IncrByFloat(key string, delta float64) {
	p.ops = append(p.ops, func(dtx *gorm.DB) error {
		_, err := incrByFloat(dtx, key, delta)
		return err
	})
}

func (p *pipeline) Del(keys ...string) {
	p.ops = append(p.ops, func(dtx *gorm.DB) error {
		if err := dtx.Delete(&Entry{}, "key IN ?", keys).Error; err != nil {
			return err
		}
		return dtx.Delete(&ZSetMember{}, "set_key IN ?", keys).Error
	})
}

// versionBump makes the conflict update also advance the row version.
func versionBump() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"version": gorm.Expr("kv_entries.version + 1"),
		}),
	}
}

func setValue(dtx *gorm.DB, key, value string) error {
	return dtx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":   value,
			"version": gorm.Expr("kv_entries.version + 1"),
		}),
	}).Create(&Entry{Key: key, Value: value, Version: 1}).Error
}

func incrByFloat(dtx *gorm.DB, key string, delta float64) (float64, error) {
	var e Entry
	err := dtx.First(&e, "key = ?", key).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	var cur float64
	if e.Value != "" {
		cur, err = strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return 0, err
		}
	}
	cur += delta
	if err := setValue(dtx, key, strconv.FormatFloat(cur, 'f', -1, 64)); err != nil {
		return 0, err
	}
	return cur, nil
}

// bumpVersion ensures the entry row exists and advances its version. Used for
// sorted-set keys whose data lives in member rows but whose watch anchor is
// the entry row.
func bumpVersion(dtx *gorm.DB, key string) error {
	return dtx.Clauses(versionBump()).Create(&Entry{Key: key, Version: 1}).Error
}

func zAdd(dtx *gorm.DB, key, member string, score float64) error {
	err := dtx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "set_key"}, {Name: "member"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"score": score}),
	}).Create(&ZSetMember{SetKey: key, Member: member, Score: score}).Error
	if err != nil {
		return err
	}
	return bumpVersion(dtx, key)
}
