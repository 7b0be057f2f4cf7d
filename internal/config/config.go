// Package config loads the engine configuration: a YAML file for collections
// and tuning, environment variables for secrets. Environment values override
// anything in the file so keys never need to live on disk.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"bidsync/internal/pricing"
)

type Config struct {
	Engine struct {
		PollInterval string `yaml:"poll_interval"`
		FetchTimeout string `yaml:"fetch_timeout"`
		OpTimeout    string `yaml:"op_timeout"`
		BidTTL       string `yaml:"bid_ttl"`
		Quantity     int    `yaml:"quantity"`
		DryRun       bool   `yaml:"dry_run"`
		AuditPath    string `yaml:"audit_path"`
	} `yaml:"engine"`

	Store struct {
		RedisURL string `yaml:"redis_url"`
	} `yaml:"store"`

	Marketplaces struct {
		OpenSea   Marketplace `yaml:"opensea"`
		LooksRare Marketplace `yaml:"looksrare"`
	} `yaml:"marketplaces"`

	Chain struct {
		RPCURL     string `yaml:"rpc_url"`
		WETH       string `yaml:"weth"`
		MinBalance string `yaml:"min_balance"`
	} `yaml:"chain"`

	Signer struct {
		PrivateKey string `yaml:"private_key"`
	} `yaml:"signer"`

	Collections []Collection `yaml:"collections"`
}

type Marketplace struct {
	Host         string `yaml:"host"`
	APIKey       string `yaml:"api_key"`
	FeedURL      string `yaml:"feed_url"`
	BaselineOnly bool   `yaml:"baseline_only"`
}

// Collection holds per-collection bid parameters. Amounts are decimal strings
// in WETH; parsing to decimal happens in Params so a typo fails loudly at
// startup rather than silently at bid time.
type Collection struct {
	Address         string `yaml:"address"`
	MinBid          string `yaml:"min_bid"`
	MaxBid          string `yaml:"max_bid"`
	Margin          string `yaml:"margin"`
	TickSize        string `yaml:"tick_size"`
	OutbidIncrement string `yaml:"outbid_increment"`
	FeeRateBps      int    `yaml:"fee_rate_bps"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.overrideWithEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Environment variables take precedence over the file for everything secret
// or deployment-specific.
func (c *Config) overrideWithEnv() {
	if v := strings.TrimSpace(os.Getenv("PRIVATE_KEY")); v != "" {
		c.Signer.PrivateKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENSEA_API_KEY")); v != "" {
		c.Marketplaces.OpenSea.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LOOKSRARE_API_KEY")); v != "" {
		c.Marketplaces.LooksRare.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		c.Store.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		c.Chain.RPCURL = v
	}
}

func (c *Config) Validate() error {
	if len(c.Collections) == 0 {
		return fmt.Errorf("at least one collection is required")
	}
	seen := make(map[common.Address]bool, len(c.Collections))
	for i, coll := range c.Collections {
		addr := strings.TrimSpace(coll.Address)
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("collections[%d]: invalid address %q", i, coll.Address)
		}
		a := common.HexToAddress(addr)
		if seen[a] {
			return fmt.Errorf("collections[%d]: duplicate address %s", i, addr)
		}
		seen[a] = true
		if _, err := coll.params(); err != nil {
			return fmt.Errorf("collections[%d] (%s): %w", i, addr, err)
		}
	}
	for _, d := range []struct{ name, raw string }{
		{"engine.poll_interval", c.Engine.PollInterval},
		{"engine.fetch_timeout", c.Engine.FetchTimeout},
		{"engine.op_timeout", c.Engine.OpTimeout},
		{"engine.bid_ttl", c.Engine.BidTTL},
	} {
		if _, err := parseDuration(d.raw, 0); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	if c.Engine.Quantity < 0 {
		return fmt.Errorf("engine.quantity must be >= 0")
	}
	return nil
}

func (co Collection) params() (pricing.BidParams, error) {
	p := pricing.BidParams{FeeRateBps: co.FeeRateBps}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"min_bid", co.MinBid, &p.MinBid},
		{"max_bid", co.MaxBid, &p.MaxBid},
		{"margin", co.Margin, &p.Margin},
		{"tick_size", co.TickSize, &p.TickSize},
		{"outbid_increment", co.OutbidIncrement, &p.OutbidIncrement},
	} {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		d, err := pricing.ParsePrice(f.raw)
		if err != nil {
			return p, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Params returns the parsed per-collection bid parameters keyed by address.
func (c *Config) Params() (map[common.Address]pricing.BidParams, error) {
	out := make(map[common.Address]pricing.BidParams, len(c.Collections))
	for _, coll := range c.Collections {
		p, err := coll.params()
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", coll.Address, err)
		}
		out[common.HexToAddress(coll.Address)] = p
	}
	return out, nil
}

// Addresses returns every configured collection address.
func (c *Config) Addresses() []common.Address {
	out := make([]common.Address, 0, len(c.Collections))
	for _, coll := range c.Collections {
		out = append(out, common.HexToAddress(coll.Address))
	}
	return out
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("bad duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}

func (c *Config) PollInterval() time.Duration { return durationOr(c.Engine.PollInterval, 5*time.Second) }
func (c *Config) FetchTimeout() time.Duration { return durationOr(c.Engine.FetchTimeout, 10*time.Second) }
func (c *Config) OpTimeout() time.Duration    { return durationOr(c.Engine.OpTimeout, 30*time.Second) }
func (c *Config) BidTTL() time.Duration       { return durationOr(c.Engine.BidTTL, 15*time.Minute) }

// durationOr is only called after Validate, so the parse cannot fail.
func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := parseDuration(raw, fallback)
	if err != nil || d == 0 {
		return fallback
	}
	return d
}
