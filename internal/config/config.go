// Package config loads service configuration from an optional YAML file with
// COURIER_-prefixed environment overrides.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	NewRelic NewRelicConfig `koanf:"newrelic"`
	Logging  LoggingConfig  `koanf:"logging"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Tracking TrackingConfig `koanf:"tracking"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string `koanf:"app_name"`
	LicenseKey string `koanf:"license_key"`
	Enabled    bool   `koanf:"enabled"`
}

// LoggingConfig holds zerolog configuration.
type LoggingConfig struct {
	// Level is one of zerolog's level strings (debug, info, warn, error).
	Level string `koanf:"level"`
	// Pretty switches to the console writer for local development.
	Pretty bool `koanf:"pretty"`
}

// DispatchConfig tunes driver matching and the lifecycle sweeps.
type DispatchConfig struct {
	MaxDistanceKm  float64       `koanf:"max_distance_km"`
	MaxCandidates  int           `koanf:"max_candidates"`
	MinCacheHits   int           `koanf:"min_cache_hits"`
	MinRating      float64       `koanf:"min_rating"`
	ReportInterval time.Duration `koanf:"report_interval"`
	SweepInterval  time.Duration `koanf:"sweep_interval"`
	AcceptTimeout  time.Duration `koanf:"accept_timeout"`
	DisputeTimeout time.Duration `koanf:"dispute_timeout"`
	SettleTimeout  time.Duration `koanf:"settle_timeout"`
}

// TrackingConfig tunes tracking ingest and position retention.
type TrackingConfig struct {
	PositionTTL     time.Duration `koanf:"position_ttl"`
	ArchiveInterval time.Duration `koanf:"archive_interval"`
	Retention       time.Duration `koanf:"retention"`
	WriteBuffer     int           `koanf:"write_buffer"`
	WriteBatch      int           `koanf:"write_batch"`
	FlushInterval   time.Duration `koanf:"flush_interval"`
	FallbackSweep   time.Duration `koanf:"fallback_sweep"`
}

const envPrefix = "COURIER_"

// Load reads the config file named by COURIER_CONFIG (when set) and then
// applies environment overrides, e.g. COURIER_DATABASE__HOST=db.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(envPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			DBName:   "courier",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NewRelic: NewRelicConfig{
			AppName: "courier-dispatch",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Dispatch: DispatchConfig{
			MaxDistanceKm:  10,
			MaxCandidates:  5,
			MinCacheHits:   3,
			MinRating:      3.0,
			ReportInterval: 2 * time.Minute,
			SweepInterval:  time.Minute,
			AcceptTimeout:  15 * time.Minute,
			DisputeTimeout: 24 * time.Hour,
			SettleTimeout:  5 * time.Minute,
		},
		Tracking: TrackingConfig{
			PositionTTL:     5 * time.Minute,
			ArchiveInterval: 5 * time.Minute,
			Retention:       30 * 24 * time.Hour,
			WriteBuffer:     1024,
			WriteBatch:      64,
			FlushInterval:   2 * time.Second,
			FallbackSweep:   time.Minute,
		},
	}
}
