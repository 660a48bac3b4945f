// Package volatility applies the implied volatility solver to a whole
// option chain.
package volatility

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contactkeval/option-volsurface/internal/logger"
	"github.com/contactkeval/option-volsurface/internal/pricing"
)

// DaysPerYear converts calendar days to years for time to maturity.
const DaysPerYear = 365.25

// ErrInvalidContext rejects a whole batch before any quote is solved.
var ErrInvalidContext = errors.New("invalid market context")

// Quote is one observed option price. Price <= 0 means no usable quote.
type Quote struct {
	Strike float64      `json:"strike"`
	Expiry time.Time    `json:"expiry"`
	Kind   pricing.Kind `json:"kind"`
	Price  float64      `json:"price"`
}

// MarketContext is shared, read-only input for every quote of a batch.
type MarketContext struct {
	UnderlyingPrice float64   `json:"underlying_price"`
	RiskFreeRate    float64   `json:"risk_free_rate"`
	ValuationTime   time.Time `json:"valuation_time"`
}

// Validate reports a malformed context, which is fatal for the batch.
func (m MarketContext) Validate() error {
	if !(m.UnderlyingPrice > 0) || math.IsInf(m.UnderlyingPrice, 0) {
		return fmt.Errorf("%w: underlying price %g", ErrInvalidContext, m.UnderlyingPrice)
	}
	if math.IsNaN(m.RiskFreeRate) || math.IsInf(m.RiskFreeRate, 0) {
		return fmt.Errorf("%w: risk-free rate %g", ErrInvalidContext, m.RiskFreeRate)
	}
	if m.ValuationTime.IsZero() {
		return fmt.Errorf("%w: valuation time not set", ErrInvalidContext)
	}
	return nil
}

// Result is the implied volatility of one quote. ImpliedVol is nil when no
// volatility could be derived; Reason then names why.
type Result struct {
	Strike         float64      `json:"strike"`
	Expiry         time.Time    `json:"expiry"`
	Kind           pricing.Kind `json:"kind"`
	Price          float64      `json:"price"`
	TimeToMaturity float64      `json:"time_to_maturity"`
	ImpliedVol     *float64     `json:"implied_vol"`
	Vega           float64      `json:"vega,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	Err            error        `json:"-"`
}

// Available reports whether the result carries a volatility.
func (r Result) Available() bool {
	return r.ImpliedVol != nil
}

// Config tunes the engine.
type Config struct {
	Workers int                  `mapstructure:"workers"` // 0 means GOMAXPROCS
	Solver  pricing.SolverConfig `mapstructure:"solver"`
}

// solverFunc has the signature of pricing.ImpliedVolatility.
type solverFunc func(observedPrice, S, K, T, r float64, kind pricing.Kind, cfg pricing.SolverConfig) (float64, error)

// Engine computes implied volatilities for batches of quotes.
type Engine struct {
	cfg   Config
	solve solverFunc
}

func NewEngine(cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{cfg: cfg, solve: pricing.ImpliedVolatility}
}

// TimeToMaturity is the remaining life of a contract in years. It is
// negative once the expiry is behind the valuation time.
func TimeToMaturity(expiry, valuation time.Time) float64 {
	return expiry.Sub(valuation).Hours() / 24 / DaysPerYear
}

// Compute solves every quote against the shared market context.
//
// One result is returned per quote, in input order. A quote that cannot be
// inverted yields an unavailable result and never aborts the batch. Only an
// invalid market context (ErrInvalidContext) or a cancelled ctx fail the
// call as a whole.
func (e *Engine) Compute(ctx context.Context, quotes []Quote, mctx MarketContext) ([]Result, error) {
	if err := mctx.Validate(); err != nil {
		return nil, err
	}

	results := make([]Result, len(quotes))
	if len(quotes) == 0 {
		return results, nil
	}

	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range quotes {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = e.solveQuote(quotes[i], mctx)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := Summarize(results)
	logger.Infof("solved %d quotes in %s: %d available, %d unavailable",
		s.Total, time.Since(start).Round(time.Millisecond), s.Available, s.Total-s.Available)
	for reason, n := range s.Unavailable {
		logger.Debugf("  %s: %d", reason, n)
	}
	return results, nil
}

// solveQuote never panics: any runtime failure inside a row becomes an
// unavailable result.
func (e *Engine) solveQuote(q Quote, mctx MarketContext) (res Result) {
	res = Result{
		Strike:         q.Strike,
		Expiry:         q.Expiry,
		Kind:           q.Kind,
		Price:          q.Price,
		TimeToMaturity: TimeToMaturity(q.Expiry, mctx.ValuationTime),
	}

	defer func() {
		if r := recover(); r != nil {
			res.ImpliedVol = nil
			res.Err = fmt.Errorf("%w: %v", pricing.ErrNumericDomain, r)
			res.Reason = pricing.Reason(res.Err)
			logger.Errorf("recovered while solving K=%g %s: %v", q.Strike, q.Kind, r)
		}
	}()

	if q.Kind != pricing.Call && q.Kind != pricing.Put {
		res.Err = fmt.Errorf("%w: unknown kind %q", pricing.ErrNoUsableQuote, q.Kind)
		res.Reason = pricing.Reason(res.Err)
		return res
	}

	iv, err := e.solve(
		q.Price,
		mctx.UnderlyingPrice,
		q.Strike,
		res.TimeToMaturity,
		mctx.RiskFreeRate,
		q.Kind,
		e.cfg.Solver,
	)
	if err != nil {
		res.Err = err
		res.Reason = pricing.Reason(err)
		logger.Tracef("K=%g %s %s: %v", q.Strike, q.Kind, q.Expiry.Format("2006-01-02"), err)
		return res
	}

	res.ImpliedVol = &iv
	res.Vega = pricing.BlackScholesVega(mctx.UnderlyingPrice, q.Strike, res.TimeToMaturity, mctx.RiskFreeRate, iv)
	logger.Tracef("K=%g %s %s: iv=%.6f vega=%.4f", q.Strike, q.Kind, q.Expiry.Format("2006-01-02"), iv, res.Vega)
	return res
}

// Summary counts the outcome of a batch.
type Summary struct {
	Total       int            `json:"total"`
	Available   int            `json:"available"`
	Unavailable map[string]int `json:"unavailable"`
}

func Summarize(results []Result) Summary {
	s := Summary{Total: len(results), Unavailable: map[string]int{}}
	for _, r := range results {
		if r.Available() {
			s.Available++
			continue
		}
		s.Unavailable[r.Reason]++
	}
	return s
}
