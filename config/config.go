package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/polycopy/engine/internal/domain"
)

// Config is the full copy-trading engine configuration.
type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	Risk    RiskConfig    `yaml:"risk"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`

	// Secrets, env-only: never read from YAML, never logged.
	SigningKeyHex     string `yaml:"-"` // POLY_PRIVATE_KEY
	CredentialsKeyHex string `yaml:"-"` // CREDENTIALS_KEY, 32 bytes hex
}

// MonitorConfig controls wallet polling.
type MonitorConfig struct {
	IntervalSeconds    int `yaml:"interval_seconds"`
	TradeFetchLimit    int `yaml:"trade_fetch_limit"`
	CleanupEveryCycles int `yaml:"cleanup_every_cycles"`
	RetentionDays      int `yaml:"retention_days"`
}

// RiskConfig bounds replica orders.
type RiskConfig struct {
	CopyRatio         float64 `yaml:"copy_ratio"`
	MinPositionSize   float64 `yaml:"min_position_size"`
	MaxPositionSize   float64 `yaml:"max_position_size"`
	SlippageTolerance float64 `yaml:"slippage_tolerance"`
	CheckBalance      bool    `yaml:"check_balance"`
}

// APIConfig holds the upstream base URLs.
type APIConfig struct {
	CLOBBase   string `yaml:"clob_base"`
	DataBase   string `yaml:"data_base"`
	PolygonRPC string `yaml:"polygon_rpc"`
}

// StorageConfig controls where state is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// ServerConfig controls the notification endpoint.
type ServerConfig struct {
	Addr string `yaml:"addr"` // websocket listen address, empty disables it
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and the .env file if present. Environment
// variables override YAML values; secrets come from the environment only.
// A missing YAML file is not an error, defaults apply.
//
// Defaults are seeded before the YAML is parsed, so an explicitly
// configured zero (slippage_tolerance: 0, min_position_size: 0) stays
// zero while an absent key gets the default.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	case os.IsNotExist(err):
		// run on defaults plus env
	default:
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.RiskConfig().Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PollInterval returns the monitor interval as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

// Retention returns the ledger retention window.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Monitor.RetentionDays) * 24 * time.Hour
}

// RiskConfig converts the YAML risk section into the domain type.
func (c *Config) RiskConfig() domain.RiskConfig {
	return domain.RiskConfig{
		CopyRatio:         c.Risk.CopyRatio,
		MinPositionSize:   c.Risk.MinPositionSize,
		MaxPositionSize:   c.Risk.MaxPositionSize,
		SlippageTolerance: c.Risk.SlippageTolerance,
	}
}

// CredentialsKey decodes the credential encryption key, nil when unset.
func (c *Config) CredentialsKey() ([]byte, error) {
	if c.CredentialsKeyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.CredentialsKeyHex)
	if err != nil {
		return nil, fmt.Errorf("config: CREDENTIALS_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("config: CREDENTIALS_KEY must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// applyEnvOverrides overrides values from environment variables when present.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.IntervalSeconds = n
		}
	}
	if v := os.Getenv("COPY_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.CopyRatio = f
		}
	}
	if v := os.Getenv("MAX_POSITION_SIZE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.MaxPositionSize = f
		}
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	cfg.SigningKeyHex = os.Getenv("POLY_PRIVATE_KEY")
	cfg.CredentialsKeyHex = os.Getenv("CREDENTIALS_KEY")
}

// defaultConfig returns the deployment defaults, overridden by whatever the
// YAML file and environment actually set.
func defaultConfig() Config {
	return Config{
		Monitor: MonitorConfig{
			IntervalSeconds:    5,
			TradeFetchLimit:    20,
			CleanupEveryCycles: 180,
			RetentionDays:      30,
		},
		Risk: RiskConfig{
			CopyRatio:         0.1,
			MinPositionSize:   1,
			MaxPositionSize:   100,
			SlippageTolerance: 0.01,
		},
		API: APIConfig{
			CLOBBase:   "https://clob.polymarket.com",
			DataBase:   "https://data-api.polymarket.com",
			PolygonRPC: "https://polygon-rpc.com",
		},
		Storage: StorageConfig{DSN: "copybot.db"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}
