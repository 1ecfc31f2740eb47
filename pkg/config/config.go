package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the terminal.
// All environment variables are read here and nowhere else.
type Config struct {
	Env string // development, staging, production

	// Brokerage gateway connection
	Gateway GatewayConfig

	// Redis (durable instrument cache + misc KV)
	Redis RedisConfig

	// Postgres order journal (optional)
	Database DatabaseConfig

	// Order sizing and bracket policy
	Sizing  SizingConfig
	Bracket BracketConfig

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string // rotating file sink when set

	// Watchlist file subscribed on every (re)connect
	WatchlistFile string
}

// GatewayConfig holds brokerage gateway connection settings.
type GatewayConfig struct {
	Host      string
	Port      int
	ClientID  int
	AccountID string

	// ReconnectDelay is the fixed pause between failed connect attempts.
	ReconnectDelay time.Duration

	// RequestsPerSecond paces outbound gateway calls.
	RequestsPerSecond int

	// Paper runs against the in-process simulated gateway instead of a
	// live connection.
	Paper bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds the optional Postgres journal configuration.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// SizingConfig controls dollar-amount order sizing.
type SizingConfig struct {
	// QuoteWaitInterval is the poll interval while waiting for a fresh
	// quote to populate after subscribing.
	QuoteWaitInterval time.Duration

	// QuoteWaitAttempts bounds the wait; exceeding it fails the order.
	QuoteWaitAttempts int

	// MidpointBias widens the computed midpoint in the entry direction
	// for non-option instruments (0.005 = 0.5%).
	MidpointBias float64
}

// BracketConfig controls bracket order construction.
type BracketConfig struct {
	// SubmitStop also transmits the stop-loss leg. Default policy is a
	// profit-only bracket: the stop leg is computed but withheld.
	SubmitStop bool
}

// Watchlist is the optional YAML symbol list subscribed at connect.
type Watchlist struct {
	Symbols []string `yaml:"symbols"`
}

// Load reads configuration from environment variables.
// Only this function calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Gateway: GatewayConfig{
			Host:              getEnv("GATEWAY_HOST", "127.0.0.1"),
			Port:              getEnvAsInt("GATEWAY_PORT", 4001),
			ClientID:          getEnvAsInt("GATEWAY_CLIENT_ID", 0),
			AccountID:         getEnv("GATEWAY_ACCOUNT_ID", ""),
			ReconnectDelay:    getEnvAsDuration("GATEWAY_RECONNECT_DELAY", "3s"),
			RequestsPerSecond: getEnvAsInt("GATEWAY_REQUESTS_PER_SECOND", 40),
			Paper:             getEnvAsBool("GATEWAY_PAPER", false),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 2),
		},

		Sizing: SizingConfig{
			QuoteWaitInterval: getEnvAsDuration("SIZING_QUOTE_WAIT_INTERVAL", "33ms"),
			QuoteWaitAttempts: getEnvAsInt("SIZING_QUOTE_WAIT_ATTEMPTS", 10),
			MidpointBias:      getEnvAsFloat("SIZING_MIDPOINT_BIAS", 0.005),
		},

		Bracket: BracketConfig{
			SubmitStop: getEnvAsBool("BRACKET_SUBMIT_STOP", false),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		LogFile:   getEnv("LOG_FILE", ""),

		WatchlistFile: getEnv("WATCHLIST_FILE", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks required configuration values.
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if !c.Gateway.Paper && c.Gateway.AccountID == "" {
		return fmt.Errorf("GATEWAY_ACCOUNT_ID is required unless GATEWAY_PAPER=true")
	}

	if c.Sizing.QuoteWaitAttempts <= 0 {
		return fmt.Errorf("SIZING_QUOTE_WAIT_ATTEMPTS must be positive")
	}

	return nil
}

// LoadWatchlist reads the YAML watchlist file if one is configured.
// A missing configuration returns an empty watchlist, not an error.
func (c *Config) LoadWatchlist() (*Watchlist, error) {
	if c.WatchlistFile == "" {
		return &Watchlist{}, nil
	}

	data, err := os.ReadFile(c.WatchlistFile)
	if err != nil {
		return nil, fmt.Errorf("read watchlist %s: %w", c.WatchlistFile, err)
	}

	var wl Watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("parse watchlist %s: %w", c.WatchlistFile, err)
	}

	return &wl, nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
