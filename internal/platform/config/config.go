// Package config loads server configuration from the environment and the
// optional economy.yaml tuning file.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the server process.
type Config struct {
	// Process
	HTTPPort int
	LogLevel string

	// Persistence
	DBDriver  string // "sqlite" or "mysql"
	DBPath    string // sqlite file path
	MySQLDSN  string // mysql connection string, when DBDriver == "mysql"
	RedisAddr string // optional snapshot cache, empty disables

	// Clock
	TickInterval time.Duration // real-time interval between clock ticks
	GameDayMs    int64         // accumulated ms that make one in-game day

	// Channel buffers and workers
	EventChannelBuffer int
	ClientSendBuffer   int
	BillingJobBuffer   int

	// Snapshot autosave
	SaveInterval time.Duration

	Economy Economy
}

// Economy groups the balance knobs the designers iterate on. Values here
// can be overridden by economy.yaml without recompiling.
type Economy struct {
	StartingFunds      int64   `yaml:"starting_funds"`
	StartingReputation float64 `yaml:"starting_reputation"`
	BasePricePerSlot   int64   `yaml:"base_price_per_slot"`

	// Request generation
	MinGenerateDelayMs int64 `yaml:"min_generate_delay_ms"`
	MaxGenerateDelayMs int64 `yaml:"max_generate_delay_ms"`
	RateLimitDelayMs   int64 `yaml:"rate_limit_delay_ms"`
	MaxPendingRequests int   `yaml:"max_pending_requests"`

	// Provisioning: creation delay per deploy skill level, milliseconds,
	// and a flat percentage reduction applied on top.
	DeployDelaysMs   []int64 `yaml:"deploy_delays_ms"`
	DeploySpeedBonus float64 `yaml:"deploy_speed_bonus"`

	// Billing
	MonthlyOverhead   int64   `yaml:"monthly_overhead"`
	PerSlotOverhead   int64   `yaml:"per_slot_overhead"`
	BillingMonthDays  int     `yaml:"billing_month_days"`
	SecurityBonusStep float64 `yaml:"security_bonus_step"` // payment bonus pct per security level

	// Racks
	RackCount         int `yaml:"rack_count"`
	RackMaxSlots      int `yaml:"rack_max_slots"`
	RackUnlockedSlots int `yaml:"rack_unlocked_slots"`
}

// DefaultEconomy returns the shipped balance values.
func DefaultEconomy() Economy {
	return Economy{
		StartingFunds:      25_000,
		StartingReputation: 1.0,
		BasePricePerSlot:   500,
		MinGenerateDelayMs: 10_000,
		MaxGenerateDelayMs: 30_000,
		RateLimitDelayMs:   15_000,
		MaxPendingRequests: 10,
		DeployDelaysMs:     []int64{10_000, 5_000, 2_000, 1_000},
		DeploySpeedBonus:   0,
		MonthlyOverhead:    5_000,
		PerSlotOverhead:    150,
		BillingMonthDays:   30,
		SecurityBonusStep:  0.05,
		RackCount:          1,
		RackMaxSlots:       8,
		RackUnlockedSlots:  4,
	}
}

// Load builds the configuration from the environment and, when present,
// the economy file pointed at by VPS_ECONOMY_FILE (default economy.yaml).
func Load() (*Config, error) {
	numCPU := runtime.NumCPU()

	cfg := &Config{
		HTTPPort:           getEnvInt("VPS_HTTP_PORT", 8080),
		LogLevel:           strings.TrimSpace(getEnv("VPS_LOG_LEVEL", "info")),
		DBDriver:           strings.TrimSpace(getEnv("VPS_DB_DRIVER", "sqlite")),
		DBPath:             strings.TrimSpace(getEnv("VPS_DB_PATH", "tycoon.db")),
		MySQLDSN:           strings.TrimSpace(os.Getenv("VPS_MYSQL_DSN")),
		RedisAddr:          strings.TrimSpace(os.Getenv("VPS_REDIS_ADDR")),
		TickInterval:       getEnvDuration("VPS_TICK_INTERVAL", time.Second),
		GameDayMs:          int64(getEnvInt("VPS_GAME_DAY_MS", 60_000)),
		EventChannelBuffer: 1024,
		ClientSendBuffer:   64,
		BillingJobBuffer:   numCPU * 4,
		SaveInterval:       getEnvDuration("VPS_SAVE_INTERVAL", 30*time.Second),
		Economy:            DefaultEconomy(),
	}

	path := getEnv("VPS_ECONOMY_FILE", "economy.yaml")
	if err := loadEconomyFile(path, &cfg.Economy); err != nil {
		return nil, err
	}

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "mysql" {
		return nil, fmt.Errorf("unsupported VPS_DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.DBDriver == "mysql" && cfg.MySQLDSN == "" {
		return nil, fmt.Errorf("VPS_DB_DRIVER=mysql requires VPS_MYSQL_DSN")
	}
	if len(cfg.Economy.DeployDelaysMs) == 0 {
		return nil, fmt.Errorf("economy: deploy_delays_ms must not be empty")
	}
	if cfg.Economy.MinGenerateDelayMs > cfg.Economy.MaxGenerateDelayMs {
		return nil, fmt.Errorf("economy: min_generate_delay_ms exceeds max_generate_delay_ms")
	}

	return cfg, nil
}

// HTTPAddr returns the listen address for the HTTP server.
func (c *Config) HTTPAddr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}

func loadEconomyFile(path string, eco *Economy) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // file is optional, defaults apply
		}
		return fmt.Errorf("read economy file: %w", err)
	}
	if err := yaml.Unmarshal(data, eco); err != nil {
		return fmt.Errorf("parse economy file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil {
			return iv
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
