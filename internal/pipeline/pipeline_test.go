package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/option-volsurface/internal/data"
	"github.com/contactkeval/option-volsurface/internal/pricing"
	"github.com/contactkeval/option-volsurface/internal/storage"
	"github.com/contactkeval/option-volsurface/internal/volatility"
)

type stubProvider struct {
	chain *data.Chain
	err   error
}

func (s *stubProvider) Secondary() data.Provider { return nil }

func (s *stubProvider) GetOptionChain(ctx context.Context, underlying string) (*data.Chain, error) {
	return s.chain, s.err
}

var now = time.Date(2025, 1, 2, 16, 0, 0, 0, time.UTC)

func newTestPipeline(t *testing.T, prov data.Provider) (*Pipeline, *storage.Storage) {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := volatility.NewEngine(volatility.Config{Workers: 2, Solver: pricing.DefaultSolverConfig()})
	p := New(prov, engine, store, 0)
	p.Now = func() time.Time { return now }
	return p, store
}

func price(v float64) *float64 { return &v }

func TestRefresh(t *testing.T) {
	expiry := now.AddDate(0, 6, 0)
	years := volatility.TimeToMaturity(expiry, now)
	call := pricing.BlackScholesPrice(pricing.Call, 100, 100, years, 0, 0.2)
	put := pricing.BlackScholesPrice(pricing.Put, 100, 90, years, 0, 0.25)

	prov := &stubProvider{chain: &data.Chain{
		Underlying:      "SPY",
		UnderlyingPrice: 100,
		Source:          "stub",
		Quotes: []data.RawQuote{
			{Strike: 100, Expiry: expiry, Kind: "call", Last: price(call)},
			{Strike: 90, Expiry: expiry, Kind: "put", Bid: price(put - 0.01), Ask: price(put + 0.01)},
			{Strike: 90, Expiry: expiry, Kind: "call"},
			{Strike: 80, Expiry: now.AddDate(0, 0, -1), Kind: "put", Last: price(1)},
		},
		Futures: []data.FuturePrice{{Expiry: expiry, Price: price(100.4)}},
	}}
	p, store := newTestPipeline(t, prov)

	run, err := p.Refresh(context.Background(), " spy ")
	require.NoError(t, err)
	assert.Equal(t, "SPY", run.Underlying)
	assert.Equal(t, "stub", run.Source)
	assert.Equal(t, 4, run.Quotes)
	assert.Equal(t, 2, run.Available)
	assert.Equal(t, map[string]int{"no_usable_quote": 1, "expired": 1}, run.Unavailable)
	assert.True(t, now.Equal(run.ValuationTime))

	got, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, got.Records, 3)

	// sorted by expiry then strike: the expired put first
	assert.Equal(t, 80.0, got.Records[0].Strike)
	assert.Nil(t, got.Records[0].VolPut)
	assert.Equal(t, 90.0, got.Records[1].Strike)
	assert.Nil(t, got.Records[1].VolCall)
	require.NotNil(t, got.Records[1].VolPut)
	assert.InDelta(t, 0.25, *got.Records[1].VolPut, 1e-4)
	assert.Equal(t, 100.0, got.Records[2].Strike)
	require.NotNil(t, got.Records[2].VolCall)
	assert.InDelta(t, 0.2, *got.Records[2].VolCall, 1e-4)

	require.Len(t, got.Futures, 1)
	assert.Equal(t, expiry.Format(volatility.ExpiryLayout), got.Futures[0].Expiry.Format(volatility.ExpiryLayout))
	assert.Equal(t, 100.4, *got.Futures[0].Price)
}

func TestRefreshProviderError(t *testing.T) {
	p, _ := newTestPipeline(t, &stubProvider{err: errors.New("boom")})
	_, err := p.Refresh(context.Background(), "SPY")
	assert.ErrorContains(t, err, "boom")
}

func TestRefreshInvalidContext(t *testing.T) {
	p, store := newTestPipeline(t, &stubProvider{chain: &data.Chain{Underlying: "SPY"}})
	_, err := p.Refresh(context.Background(), "SPY")
	assert.ErrorIs(t, err, volatility.ErrInvalidContext)

	runs, err := store.ListRuns(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRefreshEmptyUnderlying(t *testing.T) {
	p, _ := newTestPipeline(t, &stubProvider{})
	_, err := p.Refresh(context.Background(), "  ")
	assert.Error(t, err)
}

func TestRefreshSynthetic(t *testing.T) {
	prov := data.NewSyntheticProvider(3, nil)
	p, store := newTestPipeline(t, prov)
	p.Now = time.Now

	run, err := p.Refresh(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Greater(t, run.Available, run.Quotes/2)

	latest, err := store.LatestRun(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
	assert.Len(t, latest.Records, len(run.Records))
}
