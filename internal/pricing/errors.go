package pricing

import "errors"

// Reasons an implied volatility can be unavailable. All of them are
// expected outcomes for real option chains and are reported per quote.
var (
	ErrNoUsableQuote   = errors.New("no usable quote")
	ErrExpired         = errors.New("expired or zero time to maturity")
	ErrNoRootInBracket = errors.New("no root in volatility bracket")
	ErrNumericDomain   = errors.New("numeric domain error")
	ErrNoConvergence   = errors.New("root finder did not converge")
)

// Reason maps an error returned by this package to a short stable label,
// used in logs, reports and the REST API.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoUsableQuote):
		return "no_usable_quote"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrNoRootInBracket):
		return "no_root_in_bracket"
	case errors.Is(err, ErrNoConvergence):
		return "no_convergence"
	default:
		return "numeric_domain"
	}
}
