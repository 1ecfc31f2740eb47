package redis

import (
	"context"
	"testing"
	"time"

	"github.com/mfields/tradeshell/pkg/config"
)

func TestCacheDisabledIsNoop(t *testing.T) {
	cfg := &config.Config{}
	cfg.Redis.Enabled = false

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	cache := NewCache(client, "test")
	ctx := context.Background()

	if err := cache.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Errorf("Set on disabled cache should be a no-op, got %v", err)
	}

	var dest string
	found, err := cache.Get(ctx, "k", &dest)
	if err != nil {
		t.Errorf("Get on disabled cache should not error, got %v", err)
	}
	if found {
		t.Error("Get on disabled cache should report a miss")
	}
}

func TestContractKeys(t *testing.T) {
	if got := ContractIDKey(76792991); got != "con:76792991" {
		t.Errorf("ContractIDKey = %s", got)
	}
	if got := ContractSymbolKey("AAPL", "AAPL"); got != "sym:AAPL|AAPL" {
		t.Errorf("ContractSymbolKey = %s", got)
	}
	if got := StrikesKey("SPY"); got != "strikes:SPY" {
		t.Errorf("StrikesKey = %s", got)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := &config.Config{}
	cfg.Redis.Enabled = true
	cfg.Redis.Host = "localhost"
	cfg.Redis.Port = "6379"

	client, err := New(cfg)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer client.Close()

	cache := NewCache(client, "tradeshell-test")
	ctx := context.Background()

	type payload struct {
		Symbol string `json:"symbol"`
		ID     int64  `json:"id"`
	}

	in := payload{Symbol: "AAPL", ID: 265598}
	if err := cache.Set(ctx, ContractIDKey(in.ID), in, TTLShort); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var out payload
	found, err := cache.Get(ctx, ContractIDKey(in.ID), &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if out != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}

	cache.Delete(ctx, ContractIDKey(in.ID))
}
