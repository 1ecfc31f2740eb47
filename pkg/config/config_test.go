package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	os.Setenv("GATEWAY_ACCOUNT_ID", "U1234567")
	defer os.Unsetenv("GATEWAY_ACCOUNT_ID")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Env != "development" {
		t.Errorf("Expected Env to be development, got %s", cfg.Env)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("Expected Gateway.Host to be 127.0.0.1, got %s", cfg.Gateway.Host)
	}

	if cfg.Gateway.ReconnectDelay != 3*time.Second {
		t.Errorf("Expected ReconnectDelay to be 3s, got %v", cfg.Gateway.ReconnectDelay)
	}

	if cfg.Sizing.QuoteWaitInterval != 33*time.Millisecond {
		t.Errorf("Expected QuoteWaitInterval to be 33ms, got %v", cfg.Sizing.QuoteWaitInterval)
	}

	if cfg.Sizing.QuoteWaitAttempts != 10 {
		t.Errorf("Expected QuoteWaitAttempts to be 10, got %d", cfg.Sizing.QuoteWaitAttempts)
	}

	if cfg.Bracket.SubmitStop {
		t.Error("Expected Bracket.SubmitStop to default to false")
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	os.Setenv("ENV", "production")
	os.Setenv("GATEWAY_ACCOUNT_ID", "U1234567")
	os.Setenv("GATEWAY_PORT", "4002")
	os.Setenv("SIZING_MIDPOINT_BIAS", "0.01")
	os.Setenv("LOG_LEVEL", "debug")

	defer func() {
		os.Unsetenv("ENV")
		os.Unsetenv("GATEWAY_ACCOUNT_ID")
		os.Unsetenv("GATEWAY_PORT")
		os.Unsetenv("SIZING_MIDPOINT_BIAS")
		os.Unsetenv("LOG_LEVEL")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Env != "production" {
		t.Errorf("Expected Env to be production, got %s", cfg.Env)
	}

	if cfg.Gateway.Port != 4002 {
		t.Errorf("Expected Gateway.Port to be 4002, got %d", cfg.Gateway.Port)
	}

	if cfg.Sizing.MidpointBias != 0.01 {
		t.Errorf("Expected MidpointBias to be 0.01, got %v", cfg.Sizing.MidpointBias)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected LogLevel to be debug, got %s", cfg.LogLevel)
	}
}

func TestValidateMissingAccount(t *testing.T) {
	os.Unsetenv("GATEWAY_ACCOUNT_ID")
	os.Unsetenv("GATEWAY_PAPER")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when GATEWAY_ACCOUNT_ID is missing, got nil")
	}
}

func TestValidatePaperNeedsNoAccount(t *testing.T) {
	os.Unsetenv("GATEWAY_ACCOUNT_ID")
	os.Setenv("GATEWAY_PAPER", "true")
	defer os.Unsetenv("GATEWAY_PAPER")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if !cfg.Gateway.Paper {
		t.Error("Expected Gateway.Paper to be true")
	}
}

func TestValidateInvalidEnv(t *testing.T) {
	os.Setenv("GATEWAY_ACCOUNT_ID", "U1234567")
	os.Setenv("ENV", "invalid")

	defer func() {
		os.Unsetenv("GATEWAY_ACCOUNT_ID")
		os.Unsetenv("ENV")
	}()

	_, err := Load()
	if err == nil {
		t.Error("Expected error when ENV is invalid, got nil")
	}
}

func TestLoadWatchlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.yaml")
	if err := os.WriteFile(path, []byte("symbols:\n  - AAPL\n  - SPY\n"), 0o644); err != nil {
		t.Fatalf("write watchlist: %v", err)
	}

	cfg := &Config{WatchlistFile: path}
	wl, err := cfg.LoadWatchlist()
	if err != nil {
		t.Fatalf("LoadWatchlist() failed: %v", err)
	}

	if len(wl.Symbols) != 2 || wl.Symbols[0] != "AAPL" || wl.Symbols[1] != "SPY" {
		t.Errorf("Unexpected watchlist symbols: %v", wl.Symbols)
	}
}

func TestLoadWatchlistUnset(t *testing.T) {
	cfg := &Config{}
	wl, err := cfg.LoadWatchlist()
	if err != nil {
		t.Fatalf("LoadWatchlist() failed: %v", err)
	}
	if len(wl.Symbols) != 0 {
		t.Errorf("Expected empty watchlist, got %v", wl.Symbols)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "2h")
	defer os.Unsetenv("TEST_DURATION")

	duration := getEnvAsDuration("TEST_DURATION", "1h")
	expected := 2 * time.Hour

	if duration != expected {
		t.Errorf("Expected duration to be %v, got %v", expected, duration)
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	os.Setenv("TEST_FLOAT", "0.25")
	defer os.Unsetenv("TEST_FLOAT")

	value := getEnvAsFloat("TEST_FLOAT", 0.5)
	if value != 0.25 {
		t.Errorf("Expected value to be 0.25, got %v", value)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	os.Setenv("TEST_BOOL", "true")
	defer os.Unsetenv("TEST_BOOL")

	value := getEnvAsBool("TEST_BOOL", false)
	if value != true {
		t.Errorf("Expected value to be true, got %v", value)
	}
}
