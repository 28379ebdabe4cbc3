package market

import (
	"errors"
	"fmt"
)

var (
	errNilState    = errors.New("market engine: state not configured")
	errNilToken    = errors.New("market engine: token ledger not configured")
	errNilCerts    = errors.New("market engine: certificate registry not configured")
	errNilResolver = errors.New("market engine: resolver not configured")
)

// Validation errors: the caller supplied bad input. No state was touched.
var (
	ErrMarketExists   = errors.New("market: market already exists")
	ErrMarketNotFound = errors.New("market: market not found")
	ErrInvalidParams  = errors.New("market: invalid parameters")
	ErrInvalidSide    = errors.New("market: side not recognised")
	ErrInvalidStake   = errors.New("market: stake must be positive")
	ErrInvalidOdds    = errors.New("market: odds must exceed break-even")

	// ErrInsufficientFunds rejects a bet whose gross stake exceeds the
	// caller's balance before any funds move.
	ErrInsufficientFunds = errors.New("market: insufficient funds for stake")
)

// State errors: the operation is valid in general but not in the market's or
// bet's current lifecycle state. No state was touched.
var (
	ErrMarketNotOpen      = errors.New("market: market not open")
	ErrMarketNotResolved  = errors.New("market: market not resolved")
	ErrMarketNotCancelled = errors.New("market: market not cancelled")
	ErrNotWinningSide     = errors.New("market: bet is not on the winning side")
	ErrBetNotFound        = errors.New("market: bet not found")
	ErrAlreadySettled     = errors.New("market: bet already settled")
	ErrNotBetOwner        = errors.New("market: caller does not own the bet")
)

// InvariantError reports accounting corruption: a negative reserve release, a
// reserved total exceeding the pool balance, or similar. These are logic
// defects, never valid runtime states, and callers must treat them as fatal
// rather than clamping values and hiding insolvency.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "market: invariant violation: " + e.Msg
}

func invariantf(format string, args ...interface{}) error {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// IsInvariant reports whether err carries an InvariantError anywhere in its
// chain.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
