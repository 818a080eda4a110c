// Package config loads the service configuration from a JSON file with
// environment-variable overrides for deployment-sensitive values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config is the root configuration document.
type Config struct {
	ScannerConfig    ScannerConfig    `json:"scanner"`
	MarketDataConfig MarketDataConfig `json:"market_data"`
	ServerConfig     ServerConfig     `json:"server"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	AuthConfig       AuthConfig       `json:"auth"`
	LoggingConfig    LoggingConfig    `json:"logging"`
}

// ScannerConfig tunes the scan loop and alert lifecycle.
type ScannerConfig struct {
	Watchlist            []string `json:"watchlist"`
	EnabledSetupTypes    []string `json:"enabled_setup_types"` // empty = all
	MinScanIntervalSec   int      `json:"min_scan_interval_seconds"`
	ScanIntervalSec      int      `json:"scan_interval_seconds"`
	BatchSize            int      `json:"batch_size"`
	BatchDelaySec        int      `json:"batch_delay_seconds"`
	SnapshotTimeoutSec   int      `json:"snapshot_timeout_seconds"`
	MinProbability       float64  `json:"min_probability"`
	AlertProbability     float64  `json:"alert_probability"`
	MaxActiveAlerts      int      `json:"max_active_alerts"`
	AlertGraceMultiplier float64  `json:"alert_grace_multiplier"`
	MaxTrackedSetups     int      `json:"max_tracked_setups"`
	AutoStart            bool     `json:"auto_start"`
}

// MarketDataConfig points at the upstream snapshot service.
type MarketDataConfig struct {
	BaseURL        string  `json:"base_url"`
	APIKey         string  `json:"api_key"`
	TimeoutSec     int     `json:"timeout_seconds"`
	RequestsPerSec float64 `json:"requests_per_second"`
	MockMode       bool    `json:"mock_mode"` // serve simulated data, no upstream needed
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
}

// DatabaseConfig configures the optional alert audit sink.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig configures the optional snapshot cache.
type RedisConfig struct {
	Enabled     bool   `json:"enabled"`
	Addr        string `json:"addr"`
	Password    string `json:"password"`
	DB          int    `json:"db"`
	CacheTTLSec int    `json:"cache_ttl_seconds"`
}

// AuthConfig configures bearer-token validation. An empty secret disables
// auth on mutating endpoints.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // console writer instead of JSON
}

// Default returns a config with every default applied.
func Default() *Config {
	return &Config{
		ScannerConfig: ScannerConfig{
			Watchlist:            []string{"AAPL", "TSLA", "NVDA", "AMD", "META"},
			MinScanIntervalSec:   30,
			ScanIntervalSec:      90,
			BatchSize:            5,
			BatchDelaySec:        2,
			SnapshotTimeoutSec:   10,
			MinProbability:       0.20,
			AlertProbability:     0.60,
			MaxActiveAlerts:      20,
			AlertGraceMultiplier: 2.0,
			MaxTrackedSetups:     200,
			AutoStart:            true,
		},
		MarketDataConfig: MarketDataConfig{
			TimeoutSec:     10,
			RequestsPerSec: 5,
			MockMode:       true,
		},
		ServerConfig: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DatabaseConfig: DatabaseConfig{
			Port:    5432,
			SSLMode: "disable",
		},
		RedisConfig: RedisConfig{
			Addr:        "localhost:6379",
			CacheTTLSec: 30,
		},
		LoggingConfig: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides deployment-sensitive values from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("MARKET_DATA_BASE_URL"); v != "" {
		c.MarketDataConfig.BaseURL = v
	}
	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		c.MarketDataConfig.APIKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.AuthConfig.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		c.DatabaseConfig.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisConfig.Addr = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.ServerConfig.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LoggingConfig.Level = v
	}
}

// Validate rejects configurations the scanner cannot run with.
func (c *Config) Validate() error {
	if c.ScannerConfig.MinScanIntervalSec < 30 {
		return fmt.Errorf("scanner.min_scan_interval_seconds must be >= 30, got %d", c.ScannerConfig.MinScanIntervalSec)
	}
	if c.ScannerConfig.ScanIntervalSec < c.ScannerConfig.MinScanIntervalSec {
		return fmt.Errorf("scanner.scan_interval_seconds must be >= min_scan_interval_seconds")
	}
	if c.ScannerConfig.MinProbability < 0 || c.ScannerConfig.MinProbability >= 1 {
		return fmt.Errorf("scanner.min_probability must be in [0,1)")
	}
	if c.ScannerConfig.AlertProbability < c.ScannerConfig.MinProbability {
		return fmt.Errorf("scanner.alert_probability must be >= min_probability")
	}
	if c.ScannerConfig.MaxActiveAlerts <= 0 {
		return fmt.Errorf("scanner.max_active_alerts must be positive")
	}
	if !c.MarketDataConfig.MockMode && c.MarketDataConfig.BaseURL == "" {
		return fmt.Errorf("market_data.base_url is required unless mock_mode is set")
	}
	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.ServerConfig.Port)
	}
	return nil
}
