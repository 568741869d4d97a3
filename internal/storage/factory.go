// Package storage builds the configured backing store.
package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/spacefleet/spaceship/internal/config"
	"github.com/spacefleet/spaceship/internal/kv"
	"github.com/spacefleet/spaceship/internal/kv/gormkv"
	"github.com/spacefleet/spaceship/internal/kv/memory"
	"github.com/spacefleet/spaceship/internal/kv/rediskv"
)

// NewStore creates a kv.Store based on configuration. The caller owns the
// returned handle and is responsible for closing it.
func NewStore(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (kv.Store, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "redis":
		return rediskv.Connect(ctx, rediskv.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
	case "gorm", "postgres", "sqlite":
		return gormkv.Connect(gormkv.Options{
			Host:       cfg.DB.Host,
			Port:       cfg.DB.Port,
			Username:   cfg.DB.Username,
			Password:   cfg.DB.Password,
			Database:   cfg.DB.Database,
			UseSQLite:  cfg.Type == "sqlite" || cfg.DB.UseSQLite,
			SQLitePath: cfg.DB.SQLitePath,
		}, log)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
