package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Mode string `yaml:"mode"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Attempt struct {
		ForwardOnly    bool   `yaml:"forward_only"`
		TickInterval   string `yaml:"tick_interval"`
		PersistTimeout string `yaml:"persist_timeout"`
	} `yaml:"attempt"`
	Leaderboard struct {
		Limit int `yaml:"limit"`
	} `yaml:"leaderboard"`
	CORS struct {
		Origins []string `yaml:"origins"`
	} `yaml:"cors"`
	RateLimit struct {
		Requests int    `yaml:"requests"`
		Window   string `yaml:"window"`
	} `yaml:"rate_limit"`
}

// Load reads YAML config from path, applies environment overrides and defaults.
// A missing file is not an error; the service then runs on defaults and env.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Store.Driver, "STORE_DRIVER")
	override(&c.Postgres.URL, "POSTGRES_URL")
	override(&c.Mongo.URI, "MONGO_URI")
	override(&c.Mongo.Database, "MONGO_DATABASE")
	override(&c.Redis.Addr, "REDIS_ADDR")
	override(&c.Redis.Password, "REDIS_PASSWORD")
	override(&c.AMQP.URL, "AMQP_URL")
	override(&c.Auth.JWTSecret, "JWT_SECRET")
	override(&c.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORS.Origins = strings.Split(v, ",")
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "quicktestly"
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "quiz.events"
	}
	if c.Leaderboard.Limit <= 0 {
		c.Leaderboard.Limit = 10
	}
	if c.RateLimit.Requests <= 0 {
		c.RateLimit.Requests = 100
	}
}

// Validate checks that the selected store driver has its connection settings.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("store driver %q requires postgres.url", c.Store.Driver)
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("store driver %q requires mongo.uri", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
