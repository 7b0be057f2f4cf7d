package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const sampleConfig = `
engine:
  poll_interval: 2s
  bid_ttl: 30m
  dry_run: true
  audit_path: bids.jsonl
store:
  redis_url: redis://localhost:6379/0
marketplaces:
  opensea:
    api_key: file-key
    feed_url: wss://feed.example/ws
  looksrare:
    baseline_only: true
chain:
  rpc_url: https://rpc.example
  min_balance: "0.05"
collections:
  - address: "0x00000000000000000000000000000000000000AA"
    min_bid: "0.01"
    max_bid: "1"
    margin: "0.005"
    tick_size: "0.00001"
    outbid_increment: "0.00001"
    fee_rate_bps: 50
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bidsync.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesCollections(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := cfg.PollInterval(); got != 2*time.Second {
		t.Fatalf("got poll interval %v, want 2s", got)
	}
	if got := cfg.BidTTL(); got != 30*time.Minute {
		t.Fatalf("got bid ttl %v, want 30m", got)
	}
	// Unset durations fall back to defaults.
	if got := cfg.OpTimeout(); got != 30*time.Second {
		t.Fatalf("got op timeout %v, want default 30s", got)
	}
	if !cfg.Engine.DryRun {
		t.Fatalf("dry_run not parsed")
	}
	if !cfg.Marketplaces.LooksRare.BaselineOnly {
		t.Fatalf("baseline_only not parsed")
	}

	params, err := cfg.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	p, ok := params[addr]
	if !ok {
		t.Fatalf("collection %s missing from params", addr.Hex())
	}
	if !p.Margin.Equal(decimal.RequireFromString("0.005")) {
		t.Fatalf("got margin %s, want 0.005", p.Margin)
	}
	if p.FeeRateBps != 50 {
		t.Fatalf("got fee %d bps, want 50", p.FeeRateBps)
	}
	if got := cfg.Addresses(); len(got) != 1 || got[0] != addr {
		t.Fatalf("got addresses %v, want [%s]", got, addr.Hex())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("OPENSEA_API_KEY", "env-key")
	t.Setenv("REDIS_URL", "redis://override:6379/1")
	t.Setenv("PRIVATE_KEY", "0xdeadbeef")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Marketplaces.OpenSea.APIKey != "env-key" {
		t.Fatalf("got api key %q, want env-key", cfg.Marketplaces.OpenSea.APIKey)
	}
	if cfg.Store.RedisURL != "redis://override:6379/1" {
		t.Fatalf("got redis url %q, want override", cfg.Store.RedisURL)
	}
	if cfg.Signer.PrivateKey != "0xdeadbeef" {
		t.Fatalf("private key override not applied")
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no collections", "engine:\n  poll_interval: 1s\n"},
		{"bad address", "collections:\n  - address: \"not-hex\"\n    tick_size: \"0.01\"\n"},
		{"bad amount", "collections:\n  - address: \"0x00000000000000000000000000000000000000aa\"\n    tick_size: \"abc\"\n"},
		{"bad duration", "engine:\n  poll_interval: fast\ncollections:\n  - address: \"0x00000000000000000000000000000000000000aa\"\n    tick_size: \"0.01\"\n"},
		{
			"duplicate address",
			"collections:\n" +
				"  - address: \"0x00000000000000000000000000000000000000aa\"\n    tick_size: \"0.01\"\n" +
				"  - address: \"0x00000000000000000000000000000000000000AA\"\n    tick_size: \"0.01\"\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}
