// Package pipeline runs one refresh of an underlying: fetch the chain,
// solve every quote, pivot into records and store the run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/contactkeval/option-volsurface/internal/data"
	"github.com/contactkeval/option-volsurface/internal/logger"
	"github.com/contactkeval/option-volsurface/internal/storage"
	"github.com/contactkeval/option-volsurface/internal/volatility"
)

// Store is the persistence the pipeline writes runs to.
type Store interface {
	SaveRun(ctx context.Context, run *storage.Run) error
}

// Pipeline wires a provider, the engine and a store together.
type Pipeline struct {
	prov         data.Provider
	engine       *volatility.Engine
	store        Store
	riskFreeRate float64

	// Now returns the valuation time of a refresh.
	Now func() time.Time
}

func New(prov data.Provider, engine *volatility.Engine, store Store, riskFreeRate float64) *Pipeline {
	return &Pipeline{
		prov:         prov,
		engine:       engine,
		store:        store,
		riskFreeRate: riskFreeRate,
		Now:          time.Now,
	}
}

// Refresh computes and stores a new run for the underlying. Individual
// quotes that cannot be solved are counted in the run, never fatal; a
// failed fetch, an invalid market context or a failed save are.
func (p *Pipeline) Refresh(ctx context.Context, underlying string) (*storage.Run, error) {
	underlying = strings.ToUpper(strings.TrimSpace(underlying))
	if underlying == "" {
		return nil, fmt.Errorf("refresh: underlying is empty")
	}

	chain, err := p.prov.GetOptionChain(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("fetch %s chain: %w", underlying, err)
	}
	logger.Infof("%s: %d raw quotes from %s, underlying %.2f",
		underlying, len(chain.Quotes), chain.Source, chain.UnderlyingPrice)

	valuation := p.Now().UTC()
	mctx := volatility.MarketContext{
		UnderlyingPrice: chain.UnderlyingPrice,
		RiskFreeRate:    p.riskFreeRate,
		ValuationTime:   valuation,
	}

	quotes := volatility.QuotesFromChain(chain)
	results, err := p.engine.Compute(ctx, quotes, mctx)
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", underlying, err)
	}
	summary := volatility.Summarize(results)

	run := &storage.Run{
		Underlying:      underlying,
		Source:          chain.Source,
		UnderlyingPrice: chain.UnderlyingPrice,
		RiskFreeRate:    p.riskFreeRate,
		ValuationTime:   valuation,
		CreatedAt:       valuation,
		Quotes:          summary.Total,
		Available:       summary.Available,
		Unavailable:     summary.Unavailable,
		Records:         volatility.Records(results),
		Futures:         chain.Futures,
	}
	if err := p.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("save %s run: %w", underlying, err)
	}

	logger.WithField("run", run.ID).Infof("%s: stored %d records (%d/%d quotes solved)",
		underlying, len(run.Records), run.Available, run.Quotes)
	return run, nil
}
