package volatility

import (
	"github.com/contactkeval/option-volsurface/internal/data"
	"github.com/contactkeval/option-volsurface/internal/logger"
	"github.com/contactkeval/option-volsurface/internal/pricing"
)

// ObservedPrice picks the price a raw row is inverted at: the bid/ask mid
// when both sides are quoted, the single side otherwise, then the last
// price. Zero means there is nothing to invert.
func ObservedPrice(q data.RawQuote) float64 {
	bid, ask := q.Bid, q.Ask
	switch {
	case bid != nil && ask != nil:
		return (*bid + *ask) / 2
	case bid != nil:
		return *bid
	case ask != nil:
		return *ask
	case q.Last != nil:
		return *q.Last
	}
	return 0
}

// QuotesFromChain converts raw rows into solver quotes. Rows with an
// unknown option kind are dropped; everything else is kept, including rows
// without any price, so the batch reports them as unavailable.
func QuotesFromChain(chain *data.Chain) []Quote {
	out := make([]Quote, 0, len(chain.Quotes))
	for _, raw := range chain.Quotes {
		kind, err := pricing.ParseKind(raw.Kind)
		if err != nil {
			logger.Warnf("dropping %s quote K=%g: %v", chain.Underlying, raw.Strike, err)
			continue
		}
		out = append(out, Quote{
			Strike: raw.Strike,
			Expiry: raw.Expiry,
			Kind:   kind,
			Price:  ObservedPrice(raw),
		})
	}
	return out
}
