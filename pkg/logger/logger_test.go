package logger

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mfields/tradeshell/pkg/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"INFO", zerolog.InfoLevel},
		{"garbage", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLogLevel(tt.input); got != tt.expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestNew(t *testing.T) {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "debug",
		LogFormat: "json",
	}

	log := New(cfg)
	if log == nil {
		t.Fatal("New() returned nil")
	}

	// Field chaining must return distinct loggers without panicking.
	log.WithField("symbol", "AAPL").Debug("field test")
	log.WithFields(map[string]interface{}{
		"order_id": 42,
		"qty":      10,
	}).Info("fields test")
	log.WithError(errors.New("boom")).Error("error test")
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.Info("discarded")
	log.Errorf("also discarded: %d", 1)
}
