// Package config loads and exposes the spaceship configuration via viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// RedisConfig holds Redis backend settings.
type RedisConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
}

// Addr returns the host:port dial address.
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// DBConfig holds relational backend settings (Postgres with SQLite fallback).
type DBConfig struct {
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Username   string `json:"username" mapstructure:"username"`
	Password   string `json:"password" mapstructure:"password"`
	Database   string `json:"database" mapstructure:"database"`
	UseSQLite  bool   `json:"useSqlite" mapstructure:"useSqlite"`
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlitePath"`
}

// StorageConfig selects and configures the backing store.
type StorageConfig struct {
	Type  string      `json:"type" mapstructure:"type"`
	Redis RedisConfig `json:"redis" mapstructure:"redis"`
	DB    DBConfig    `json:"db" mapstructure:"db"`
}

// DeckConfig describes one cargo deck.
type DeckConfig struct {
	Name      string  `json:"name" mapstructure:"name"`
	MaxMassKg float64 `json:"maxMassKg" mapstructure:"maxMassKg"`
}

// ShipConfig holds the ship's physical parameters.
type ShipConfig struct {
	KeyPrefix        string       `json:"keyPrefix" mapstructure:"keyPrefix"`
	BaseMassKg       float64      `json:"baseMassKg" mapstructure:"baseMassKg"`
	Gravity          float64      `json:"gravity" mapstructure:"gravity"`
	Fuel             float64      `json:"fuel" mapstructure:"fuel"`
	LowFuelThreshold float64      `json:"lowFuelThreshold" mapstructure:"lowFuelThreshold"`
	Decks            []DeckConfig `json:"decks" mapstructure:"decks"`
}

// InfluxConfig holds burn telemetry settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the server URL for the Influx client.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// GraylogConfig holds GELF log forwarding settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// Load reads configuration from spaceship.cfg.json in configDir and sets
// default values.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")

	viper.SetDefault("ship.keyPrefix", "spaceship")
	viper.SetDefault("ship.baseMassKg", 2e6)
	viper.SetDefault("ship.gravity", 9.8)
	viper.SetDefault("ship.fuel", 100000)
	viper.SetDefault("ship.lowFuelThreshold", 100)
	viper.SetDefault("ship.decks", []map[string]interface{}{
		{"name": "main", "maxMassKg": 1000},
	})

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", "6379")
	viper.SetDefault("storage.redis.password", "")
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.db.host", "localhost")
	viper.SetDefault("storage.db.port", "5432")
	viper.SetDefault("storage.db.username", "postgres")
	viper.SetDefault("storage.db.password", "postgres")
	viper.SetDefault("storage.db.database", "spaceship")
	viper.SetDefault("storage.db.useSqlite", false)
	viper.SetDefault("storage.db.sqlitePath", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "spaceship")
	viper.SetDefault("influx.bucket", "burn_events")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetConfigName("spaceship.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Storage returns the storage section.
func Storage() (StorageConfig, error) {
	var cfg StorageConfig
	if err := viper.UnmarshalKey("storage", &cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshalling storage config: %w", err)
	}
	return cfg, nil
}

// Ship returns the ship section.
func Ship() (ShipConfig, error) {
	var cfg ShipConfig
	if err := viper.UnmarshalKey("ship", &cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshalling ship config: %w", err)
	}
	return cfg, nil
}

// Influx returns the influx section.
func Influx() (InfluxConfig, error) {
	var cfg InfluxConfig
	if err := viper.UnmarshalKey("influx", &cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshalling influx config: %w", err)
	}
	return cfg, nil
}

// Graylog returns the graylog section.
func Graylog() (GraylogConfig, error) {
	var cfg GraylogConfig
	if err := viper.UnmarshalKey("graylog", &cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshalling graylog config: %w", err)
	}
	return cfg, nil
}
