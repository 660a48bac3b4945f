package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMassive(srv *httptest.Server, secondary Provider) *massiveDataProvider {
	return &massiveDataProvider{
		APIKey:     "test",
		Client:     srv.Client(),
		BaseURL:    srv.URL, // IMPORTANT
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		secondary:  secondary,
	}
}

func TestMassiveProvider_HTTPError(t *testing.T) {
	// fake server returning 500
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"internal error"}`))
	}))
	defer srv.Close()

	_, err := newTestMassive(srv, nil).GetOptionChain(context.Background(), "SPY")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestMassiveProvider_FallsBackToSecondary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	chain, err := newTestMassive(srv, NewSyntheticProvider(1, nil)).GetOptionChain(context.Background(), "spy")
	require.NoError(t, err)
	assert.Equal(t, "synthetic", chain.Source)
}

func TestMassiveProvider_Pagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test", r.Header.Get("Authorization"))

		if r.URL.Path == "/v3/snapshot/options/SPY" {
			assert.Equal(t, "250", r.URL.Query().Get("limit"))
			w.Write([]byte(`{
				"status": "OK",
				"results": [
					{"details": {"contract_type": "call", "expiration_date": "2025-03-21", "strike_price": 580, "ticker": "O:SPY250321C00580000"},
					 "last_quote": {"bid": 12.1, "ask": 12.3},
					 "underlying_asset": {"price": 581.39, "ticker": "SPY"}},
					{"details": {"contract_type": "put", "expiration_date": "2025-03-21", "strike_price": 580, "ticker": "O:SPY250321P00580000"},
					 "day": {"close": 9.8},
					 "underlying_asset": {"price": 581.39, "ticker": "SPY"}}
				],
				"next_url": "` + srv.URL + `/page2"
			}`))
			return
		}

		w.Write([]byte(`{
			"status": "OK",
			"results": [
				{"details": {"contract_type": "call", "expiration_date": "not-a-date", "strike_price": 590}},
				{"details": {"contract_type": "call", "expiration_date": "2025-04-17", "strike_price": 600},
				 "last_trade": {"price": 4.4}}
			]
		}`))
	}))
	defer srv.Close()

	chain, err := newTestMassive(srv, nil).GetOptionChain(context.Background(), "spy")
	require.NoError(t, err)

	assert.Equal(t, "SPY", chain.Underlying)
	assert.Equal(t, 581.39, chain.UnderlyingPrice)
	require.Len(t, chain.Quotes, 3)

	first := chain.Quotes[0]
	assert.Equal(t, "call", first.Kind)
	assert.Equal(t, time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC), first.Expiry)
	require.NotNil(t, first.Bid)
	require.NotNil(t, first.Ask)
	assert.Nil(t, first.Last)

	put := chain.Quotes[1]
	assert.Nil(t, put.Bid)
	require.NotNil(t, put.Last)
	assert.Equal(t, 9.8, *put.Last)

	assert.Equal(t, 600.0, chain.Quotes[2].Strike)
	assert.Equal(t, 4.4, *chain.Quotes[2].Last)
}

func TestMassiveProvider_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"results": [{"details": {"contract_type": "put", "expiration_date": "2025-06-20", "strike_price": 100},
			"last_quote": {"bid": 1, "ask": 1.2}, "underlying_asset": {"price": 101}}]}`))
	}))
	defer srv.Close()

	chain, err := newTestMassive(srv, nil).GetOptionChain(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Len(t, chain.Quotes, 1)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestMassiveProvider_GivesUpOnPersistentRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestMassive(srv, nil).GetOptionChain(context.Background(), "XYZ")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "rate limited"))
}

func TestMassiveProvider_EmptyChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	_, err := newTestMassive(srv, nil).GetOptionChain(context.Background(), "XYZ")
	assert.Error(t, err)
}
