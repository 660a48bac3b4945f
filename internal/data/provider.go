package data

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Provider supplies option-chain snapshots.
type Provider interface {
	Secondary() Provider
	GetOptionChain(ctx context.Context, underlying string) (*Chain, error)
}

// RawQuote is one option row as the market-data source reports it.
// Absent prices are nil, never zero.
type RawQuote struct {
	Strike float64   `json:"strike"`
	Expiry time.Time `json:"expiry"`
	Kind   string    `json:"kind"` // "call" or "put"
	Bid    *float64  `json:"bid,omitempty"`
	Ask    *float64  `json:"ask,omitempty"`
	Last   *float64  `json:"last,omitempty"`
}

// Chain is a snapshot of every quoted option on one underlying, together
// with the single underlying reference price used for the whole batch.
type Chain struct {
	Underlying      string        `json:"underlying"`
	UnderlyingPrice float64       `json:"underlying_price"`
	AsOf            time.Time     `json:"as_of"`
	Source          string        `json:"source"`
	Quotes          []RawQuote    `json:"quotes"`
	Futures         []FuturePrice `json:"futures,omitempty"`
}

// FuturePrice is one point of the underlying's futures curve. Price is nil
// when the source lists the contract without a trade.
type FuturePrice struct {
	Expiry time.Time `json:"expiry"`
	Price  *float64  `json:"price,omitempty"`
}

// Config selects and parameterizes a provider chain.
type Config struct {
	Provider  string        `mapstructure:"provider"`  // massive, files or synthetic
	Secondary string        `mapstructure:"secondary"` // optional fallback, same values
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Dir       string        `mapstructure:"dir"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Retries   int           `mapstructure:"retries"`
	Seed      int64         `mapstructure:"seed"`
}

// New builds the configured provider, wiring the secondary as fallback.
func New(cfg Config) (Provider, error) {
	var secondary Provider
	if cfg.Secondary != "" && !strings.EqualFold(cfg.Secondary, cfg.Provider) {
		sec, err := build(cfg.Secondary, cfg, nil)
		if err != nil {
			return nil, fmt.Errorf("secondary provider: %w", err)
		}
		secondary = sec
	}
	return build(cfg.Provider, cfg, secondary)
}

func build(name string, cfg Config, secondary Provider) (Provider, error) {
	switch strings.ToLower(name) {
	case "massive", "polygon":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("MASSIVE_API_KEY")
		}
		if apiKey == "" {
			apiKey = os.Getenv("POLYGON_API_KEY")
		}
		prov := NewMassiveDataProvider(apiKey, secondary)
		if cfg.BaseURL != "" {
			prov.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		if cfg.Timeout > 0 {
			prov.Client.Timeout = cfg.Timeout
		}
		if cfg.Retries > 0 {
			prov.MaxRetries = cfg.Retries
		}
		return prov, nil
	case "files", "local":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("files provider needs a directory")
		}
		return NewLocalFileDataProvider(cfg.Dir, secondary), nil
	case "synthetic", "":
		return NewSyntheticProvider(cfg.Seed, secondary), nil
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// fallback delegates to the secondary provider after a primary failure.
func fallback(ctx context.Context, prov Provider, underlying string, cause error) (*Chain, error) {
	if prov.Secondary() == nil {
		return nil, cause
	}
	chain, err := prov.Secondary().GetOptionChain(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("%v; secondary: %w", cause, err)
	}
	return chain, nil
}

func floatPtr(v float64) *float64 { return &v }
