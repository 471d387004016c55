// Package config loads the simulation server settings: an embedded default
// YAML document, an optional file on top of it, then BANKSIM_* environment
// overrides.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/fracreserve/banksim/internal/domain/rules"
)

//go:embed default.yaml
var defaultYAML []byte

type Config struct {
	Mode     string `yaml:"mode"`
	HTTPAddr string `yaml:"http_addr"`
	Profile  string `yaml:"profile"`

	Simulation Simulation `yaml:"simulation"`
	Fed        Fed        `yaml:"fed"`
	Storage    Storage    `yaml:"storage"`
	Redis      Redis      `yaml:"redis"`

	// Tuning is filled from Profile; an explicit "tuning" block overrides it.
	Tuning Tuning `yaml:"tuning"`
}

type Simulation struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	AutoStart    bool          `yaml:"auto_start"`
}

// Fed parameters are kept as strings so YAML floats never round them.
type Fed struct {
	Pool         string `yaml:"pool"`
	DiscountRate string `yaml:"discount_rate"`
	ReserveRatio string `yaml:"reserve_ratio"`
}

type Storage struct {
	Enabled        bool          `yaml:"enabled"`
	SQLitePath     string        `yaml:"sqlite_path"`
	ExportInterval time.Duration `yaml:"export_interval"`
}

type Redis struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// FedParams are the parsed central bank settings.
type FedParams struct {
	Pool         decimal.Decimal
	DiscountRate decimal.Decimal
	ReserveRatio decimal.Decimal
}

// Load reads the defaults, then path (when non-empty), then the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parse default config: %w", err)
	}

	var fileTuning *Tuning
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		var probe struct {
			Tuning *Tuning `yaml:"tuning"`
		}
		if err := yaml.Unmarshal(raw, &probe); err == nil {
			fileTuning = probe.Tuning
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	tuning, err := TuningFor(cfg.Profile)
	if err != nil {
		return nil, err
	}
	if fileTuning != nil {
		tuning = mergeTuning(tuning, *fileTuning)
	}
	cfg.Tuning = tuning

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default is Load without a file or environment.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal(defaultYAML, &cfg)
	cfg.Tuning = DefaultTuning()
	return &cfg
}

// Validate checks the settings that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if _, err := c.FedParams(); err != nil {
		return err
	}
	if c.Simulation.TickInterval <= 0 {
		return fmt.Errorf("simulation.tick_interval must be positive, got %s", c.Simulation.TickInterval)
	}
	if c.Storage.Enabled {
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required when storage is enabled")
		}
		if c.Storage.ExportInterval <= 0 {
			return fmt.Errorf("storage.export_interval must be positive, got %s", c.Storage.ExportInterval)
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}

// FedParams parses the Fed block.
func (c *Config) FedParams() (FedParams, error) {
	pool, err := decimal.NewFromString(c.Fed.Pool)
	if err != nil {
		return FedParams{}, fmt.Errorf("fed.pool: %w", err)
	}
	if pool.IsNegative() {
		return FedParams{}, fmt.Errorf("fed.pool must not be negative, got %s", pool)
	}
	discount, err := decimal.NewFromString(c.Fed.DiscountRate)
	if err != nil {
		return FedParams{}, fmt.Errorf("fed.discount_rate: %w", err)
	}
	ratio, err := decimal.NewFromString(c.Fed.ReserveRatio)
	if err != nil {
		return FedParams{}, fmt.Errorf("fed.reserve_ratio: %w", err)
	}
	if !rules.InUnitInterval(discount) || !rules.InUnitInterval(ratio) {
		return FedParams{}, fmt.Errorf("fed rates must lie in [0,1], got discount %s ratio %s", discount, ratio)
	}
	return FedParams{Pool: pool, DiscountRate: discount, ReserveRatio: ratio}, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("BANKSIM_MODE", &cfg.Mode)
	str("BANKSIM_HTTP_ADDR", &cfg.HTTPAddr)
	str("BANKSIM_PROFILE", &cfg.Profile)
	str("BANKSIM_FED_POOL", &cfg.Fed.Pool)
	str("BANKSIM_FED_DISCOUNT_RATE", &cfg.Fed.DiscountRate)
	str("BANKSIM_FED_RESERVE_RATIO", &cfg.Fed.ReserveRatio)
	str("BANKSIM_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("BANKSIM_REDIS_ADDR", &cfg.Redis.Addr)
	str("BANKSIM_REDIS_PASSWORD", &cfg.Redis.Password)

	durations := map[string]*time.Duration{
		"BANKSIM_TICK_INTERVAL":   &cfg.Simulation.TickInterval,
		"BANKSIM_EXPORT_INTERVAL": &cfg.Storage.ExportInterval,
		"BANKSIM_REDIS_TTL":       &cfg.Redis.TTL,
	}
	for key, dst := range durations {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"BANKSIM_AUTO_START":      &cfg.Simulation.AutoStart,
		"BANKSIM_STORAGE_ENABLED": &cfg.Storage.Enabled,
		"BANKSIM_REDIS_ENABLED":   &cfg.Redis.Enabled,
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	if v, ok := os.LookupEnv("BANKSIM_REDIS_DB"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("BANKSIM_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	return nil
}

// mergeTuning overlays the non-zero fields of override onto base.
func mergeTuning(base, override Tuning) Tuning {
	if override.EventSubscriberBuffer > 0 {
		base.EventSubscriberBuffer = override.EventSubscriberBuffer
	}
	if override.BroadcastChannelBuffer > 0 {
		base.BroadcastChannelBuffer = override.BroadcastChannelBuffer
	}
	if override.ClientSendBuffer > 0 {
		base.ClientSendBuffer = override.ClientSendBuffer
	}
	if override.DBMaxOpenConns > 0 {
		base.DBMaxOpenConns = override.DBMaxOpenConns
	}
	if override.RedisPoolSize > 0 {
		base.RedisPoolSize = override.RedisPoolSize
	}
	if override.MinActionInterval > 0 {
		base.MinActionInterval = override.MinActionInterval
	}
	if override.MaxClients > 0 {
		base.MaxClients = override.MaxClients
	}
	return base
}
