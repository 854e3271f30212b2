package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvStoreDriver        = "LEXGRAPH_STORE_DRIVER"
	EnvStoreDSN           = "LEXGRAPH_STORE_DSN"
	EnvStoreRedisAddr     = "LEXGRAPH_STORE_REDIS_ADDR"
	EnvStoreRedisPassword = "LEXGRAPH_STORE_REDIS_PASSWORD"
	EnvStoreRedisDB       = "LEXGRAPH_STORE_REDIS_DB"
	EnvStoreRedisPrefix   = "LEXGRAPH_STORE_REDIS_PREFIX"
	EnvStoreRedisTTL      = "LEXGRAPH_STORE_REDIS_TTL"
	EnvStoreLockTTL       = "LEXGRAPH_STORE_LOCK_TTL"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// StoreConfig selects where workflow state is persisted.
//
// DSN is a file path for sqlite and a driver DSN for mysql and postgres. The
// redis fields apply to the redis driver; when RedisAddr is set with another
// driver, Redis is still used for cross-process work locks.
type StoreConfig struct {
	Driver        string `toml:"driver"`
	DSN           string `toml:"dsn"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
	RedisTTL      string `toml:"redis_ttl"`
	LockTTL       string `toml:"lock_ttl"`
}

// RedisTTLDuration returns RedisTTL as a time.Duration. Zero keeps keys
// forever.
func (c *StoreConfig) RedisTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.RedisTTL)
	return d
}

// LockTTLDuration returns LockTTL as a time.Duration.
func (c *StoreConfig) LockTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.LockTTL)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *StoreConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *StoreConfig) Merge(overlay *StoreConfig) {
	if overlay.Driver != "" {
		c.Driver = overlay.Driver
	}
	if overlay.DSN != "" {
		c.DSN = overlay.DSN
	}
	if overlay.RedisAddr != "" {
		c.RedisAddr = overlay.RedisAddr
	}
	if overlay.RedisPassword != "" {
		c.RedisPassword = overlay.RedisPassword
	}
	if overlay.RedisDB != 0 {
		c.RedisDB = overlay.RedisDB
	}
	if overlay.RedisPrefix != "" {
		c.RedisPrefix = overlay.RedisPrefix
	}
	if overlay.RedisTTL != "" {
		c.RedisTTL = overlay.RedisTTL
	}
	if overlay.LockTTL != "" {
		c.LockTTL = overlay.LockTTL
	}
}

func (c *StoreConfig) loadDefaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.Driver == DriverSQLite && c.DSN == "" {
		c.DSN = "lexgraph.db"
	}
	if c.RedisPrefix == "" {
		c.RedisPrefix = "lexgraph:"
	}
	if c.RedisTTL == "" {
		c.RedisTTL = "0s"
	}
	if c.LockTTL == "" {
		c.LockTTL = "5m"
	}
}

func (c *StoreConfig) loadEnv() {
	if v := os.Getenv(EnvStoreDriver); v != "" {
		c.Driver = v
	}
	if v := os.Getenv(EnvStoreDSN); v != "" {
		c.DSN = v
	}
	if v := os.Getenv(EnvStoreRedisAddr); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv(EnvStoreRedisPassword); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv(EnvStoreRedisDB); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}
	if v := os.Getenv(EnvStoreRedisPrefix); v != "" {
		c.RedisPrefix = v
	}
	if v := os.Getenv(EnvStoreRedisTTL); v != "" {
		c.RedisTTL = v
	}
	if v := os.Getenv(EnvStoreLockTTL); v != "" {
		c.LockTTL = v
	}
}

func (c *StoreConfig) validate() error {
	switch c.Driver {
	case DriverMemory:
	case DriverSQLite, DriverMySQL, DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("dsn is required for driver %s", c.Driver)
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for driver redis")
		}
	default:
		return fmt.Errorf("unknown driver: %q", c.Driver)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("invalid redis_db: %d", c.RedisDB)
	}
	if _, err := time.ParseDuration(c.RedisTTL); err != nil {
		return fmt.Errorf("invalid redis_ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.LockTTL); err != nil {
		return fmt.Errorf("invalid lock_ttl: %w", err)
	}
	return nil
}
