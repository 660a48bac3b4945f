// Package data provides market data provider implementations.
//
// This file contains a Massive-backed Provider implementation that retrieves
// the option-chain snapshot of an underlying via the Massive (formerly
// Polygon.io) HTTP API.
//
// Design notes:
//   - Uses raw HTTP calls instead of the official Massive SDK
//   - Supports pagination, rate-limiting retries, and fallback providers
//   - Logging is verbose at Debug/Trace levels for diagnostics
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/contactkeval/option-volsurface/internal/logger"
)

// massiveDataProvider implements the Provider interface using Massive APIs.
type massiveDataProvider struct {
	// APIKey used for authenticating requests with Massive.
	APIKey string

	// Client is the HTTP client used to make API requests.
	Client *http.Client

	// BaseURL is the root endpoint for Massive APIs
	// (e.g., https://api.massive.com).
	BaseURL string

	// MaxRetries bounds how many HTTP 429 responses are retried per page.
	MaxRetries int

	// RetryDelay is the wait after a 429. Zero waits until the next minute
	// boundary, which is when per-minute quotas reset.
	RetryDelay time.Duration

	// secondary is an optional fallback provider.
	secondary Provider
}

// massiveSnapshot is one contract of the options chain snapshot endpoint.
type massiveSnapshot struct {
	Details struct {
		ContractType   string  `json:"contract_type"`
		ExpirationDate string  `json:"expiration_date"`
		StrikePrice    float64 `json:"strike_price"`
		Ticker         string  `json:"ticker"`
	} `json:"details"`
	Day struct {
		Close float64 `json:"close"`
	} `json:"day"`
	LastQuote struct {
		Ask float64 `json:"ask"`
		Bid float64 `json:"bid"`
	} `json:"last_quote"`
	LastTrade struct {
		Price float64 `json:"price"`
	} `json:"last_trade"`
	UnderlyingAsset struct {
		Price  float64 `json:"price"`
		Ticker string  `json:"ticker"`
	} `json:"underlying_asset"`
}

// massiveSnapshotResp models the paginated response of the chain snapshot.
type massiveSnapshotResp struct {
	Results   []massiveSnapshot `json:"results"`
	Status    string            `json:"status"`
	RequestID string            `json:"request_id"`
	NextURL   string            `json:"next_url"`
}

// NewMassiveDataProvider constructs a Massive-backed data provider.
//
// It initializes an HTTP client with sensible defaults for:
//   - timeouts
//   - connection pooling
//   - HTTP/2 support
//   - gzip decompression
//
// Parameters:
//   - apiKey: Massive API key for authentication
//   - secondary: provider used when Massive fails, may be nil
func NewMassiveDataProvider(apiKey string, secondary Provider) *massiveDataProvider {
	logger.Infof("initializing Massive data provider")

	return &massiveDataProvider{
		APIKey: apiKey,
		Client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				DisableCompression:    false, // must be false to enable gzip auto-decompression
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		BaseURL:    "https://api.massive.com",
		MaxRetries: 5,
		secondary:  secondary,
	}
}

// Secondary returns the configured secondary Provider, if any.
func (massiveDataProv *massiveDataProvider) Secondary() Provider {
	return massiveDataProv.secondary
}

// GetOptionChain retrieves every contract of the underlying's option chain.
//
// Rows without a usable strike, expiry or contract type are skipped. The
// underlying reference price is the first non-zero underlying_asset.price
// of the snapshot.
//
// If the request fails and a secondary provider is configured, the request
// is delegated.
func (massiveDataProv *massiveDataProvider) GetOptionChain(
	ctx context.Context,
	underlying string,
) (*Chain, error) {

	chain, err := massiveDataProv.fetchChain(ctx, underlying)
	if err != nil {
		logger.Errorf("massive chain for %s: %v", underlying, err)
		return fallback(ctx, massiveDataProv, underlying, err)
	}
	return chain, nil
}

func (massiveDataProv *massiveDataProvider) fetchChain(
	ctx context.Context,
	underlying string,
) (*Chain, error) {

	logger.Debugf("fetching option chain snapshot for %s", underlying)

	u, err := url.Parse(massiveDataProv.BaseURL + "/v3/snapshot/options/" + url.PathEscape(strings.ToUpper(underlying)))
	if err != nil {
		return nil, err
	}
	query := u.Query()
	query.Set("limit", "250")
	u.RawQuery = query.Encode()
	reqURL := u.String()

	chain := &Chain{
		Underlying: strings.ToUpper(underlying),
		AsOf:       time.Now().UTC(),
		Source:     "massive",
	}

	// Handle pagination
	for reqURL != "" {
		logger.Tracef("snapshot request URL: %s", reqURL)

		resp, err := massiveDataProv.processGetRequest(ctx, reqURL)
		if err != nil {
			return nil, err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read snapshot body: %w", err)
		}

		var page massiveSnapshotResp
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}

		for _, r := range page.Results {
			if chain.UnderlyingPrice == 0 && r.UnderlyingAsset.Price > 0 {
				chain.UnderlyingPrice = r.UnderlyingAsset.Price
			}
			q, ok := snapshotToQuote(r)
			if !ok {
				logger.Tracef("skipping snapshot row %q", r.Details.Ticker)
				continue
			}
			chain.Quotes = append(chain.Quotes, q)
		}

		reqURL = page.NextURL
	}

	if len(chain.Quotes) == 0 {
		return nil, fmt.Errorf("no option contracts returned for %s", underlying)
	}
	if chain.UnderlyingPrice <= 0 {
		return nil, fmt.Errorf("no underlying price in snapshot for %s", underlying)
	}

	logger.Infof("massive returned %d contracts for %s (spot %.2f)", len(chain.Quotes), chain.Underlying, chain.UnderlyingPrice)
	return chain, nil
}

func snapshotToQuote(r massiveSnapshot) (RawQuote, bool) {
	if r.Details.StrikePrice <= 0 || r.Details.ContractType == "" {
		return RawQuote{}, false
	}
	expiry, err := time.Parse("2006-01-02", r.Details.ExpirationDate)
	if err != nil {
		return RawQuote{}, false
	}

	q := RawQuote{
		Strike: r.Details.StrikePrice,
		Expiry: expiry,
		Kind:   strings.ToLower(r.Details.ContractType),
	}
	if r.LastQuote.Bid > 0 {
		q.Bid = floatPtr(r.LastQuote.Bid)
	}
	if r.LastQuote.Ask > 0 {
		q.Ask = floatPtr(r.LastQuote.Ask)
	}
	switch {
	case r.LastTrade.Price > 0:
		q.Last = floatPtr(r.LastTrade.Price)
	case r.Day.Close > 0:
		q.Last = floatPtr(r.Day.Close)
	}
	return q, true
}

// processGetRequest executes an HTTP GET request with rate-limit handling.
//
// Behavior:
//   - Retries HTTP 429 up to MaxRetries times
//   - Waits RetryDelay, or until the next minute boundary when unset
//   - Returns immediately on success (<400)
//   - Returns an error for other status codes or a cancelled context
func (massiveDataProv *massiveDataProvider) processGetRequest(
	ctx context.Context,
	reqURL string,
) (*http.Response, error) {

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+massiveDataProv.APIKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "option-volsurface/1.0")

		resp, err := massiveDataProv.Client.Do(req)
		if err != nil {
			return nil, err
		}

		// Success
		if resp.StatusCode < 400 {
			return resp, nil
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		if attempt >= massiveDataProv.MaxRetries {
			return nil, fmt.Errorf("rate limited after %d retries", attempt)
		}

		wait := massiveDataProv.RetryDelay
		if wait <= 0 {
			now := time.Now()
			wait = time.Until(now.Truncate(time.Minute).Add(time.Minute))
		}
		logger.Infof("rate limit hit, sleeping for %s", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
