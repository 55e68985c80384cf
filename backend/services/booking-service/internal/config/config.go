package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "evbooking/backend/libs/config"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config defines booking service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Store    StoreConfig    `yaml:"store"`
	Tariff   TariffConfig   `yaml:"tariff"`
	Memory   MemoryConfig   `yaml:"memory" env:"-"`
}

type HTTPConfig struct {
	Port string `yaml:"port" env:"BOOKING_HTTP_PORT"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"BOOKING_STORAGE_DRIVER"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn" env:"BOOKING_POSTGRES_DSN"`
	MaxOpenConns int    `yaml:"maxOpenConns" env:"BOOKING_POSTGRES_MAX_CONNS"`
}

type RedisConfig struct {
	Addr       string `yaml:"addr" env:"BOOKING_REDIS_ADDR"`
	Password   string `yaml:"password" env:"BOOKING_REDIS_PASSWORD"`
	DB         int    `yaml:"db" env:"BOOKING_REDIS_DB"`
	TTL        int    `yaml:"ttlSeconds" env:"BOOKING_REDIS_TTL"`
	ManagerTTL int    `yaml:"managerTTLSeconds" env:"BOOKING_REDIS_MANAGER_TTL"`
}

type JWTConfig struct {
	Secret string `yaml:"secret" env:"BOOKING_JWT_SECRET"`
}

type SweeperConfig struct {
	Enabled  bool          `yaml:"enabled" env:"BOOKING_SWEEP_ENABLED"`
	Interval time.Duration `yaml:"interval" env:"BOOKING_SWEEP_INTERVAL"`
}

type StoreConfig struct {
	TimeoutSeconds int `yaml:"timeoutSeconds" env:"BOOKING_STORE_TIMEOUT"`
}

type TariffConfig struct {
	PricePerKWh float64 `yaml:"pricePerKWh" env:"BOOKING_TARIFF_PRICE"`
}

// MemoryConfig seeds the in-memory store with stations and slots.
type MemoryConfig struct {
	Stations []SeedStation `yaml:"stations"`
}

type SeedStation struct {
	ID      string     `yaml:"id"`
	Manager string     `yaml:"manager"`
	Slots   []SeedSlot `yaml:"slots"`
}

type SeedSlot struct {
	ID            string  `yaml:"id"`
	ConnectorType string  `yaml:"connectorType"`
	MaxPowerKW    float64 `yaml:"maxPowerKW"`
	Disabled      bool    `yaml:"disabled"`
}

// Defaults returns the configuration used before file and env overrides.
func Defaults() *Config {
	return &Config{
		HTTP:    HTTPConfig{Port: "8084"},
		Storage: StorageConfig{Driver: DriverPostgres},
		Redis:   RedisConfig{TTL: 86400, ManagerTTL: 30},
		Sweeper: SweeperConfig{Enabled: true, Interval: time.Minute},
		Store:   StoreConfig{TimeoutSeconds: 5},
		Tariff:  TariffConfig{PricePerKWh: 7.0},
	}
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Defaults()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys.
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("config: database dsn required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt secret required")
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return errors.New("config: sweeper interval must be positive")
	}
	return nil
}

// HTTPAddress returns :port style. Values that already carry a host are used as is.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8084"
	}
	if strings.Contains(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// RedisEnabled reports whether a cache address is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// ActiveSessionTTL returns ttl as duration.
func (c *Config) ActiveSessionTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Redis.TTL) * time.Second
}

// ManagerCacheTTL returns how long station ownership answers are cached.
func (c *Config) ManagerCacheTTL() time.Duration {
	if c.Redis.ManagerTTL <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Redis.ManagerTTL) * time.Second
}

// StoreTimeout bounds every store call made by the engine.
func (c *Config) StoreTimeout() time.Duration {
	if c.Store.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Store.TimeoutSeconds) * time.Second
}
