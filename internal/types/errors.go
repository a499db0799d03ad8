package types

import "errors"

// Error taxonomy surfaced at the API boundary. Services wrap these with
// fmt.Errorf("...: %w", Err...) so handlers can map them with errors.Is.
var (
	// ErrNotFound covers unknown contracts, orders, and users.
	ErrNotFound = errors.New("not found")

	// ErrValidation covers malformed input: bad side, non-positive
	// quantity, price outside (0, StandardPayout].
	ErrValidation = errors.New("validation failed")

	// ErrForbidden covers cancels by a non-owner and sides disallowed by
	// the LIVE trading rule.
	ErrForbidden = errors.New("forbidden")

	// ErrMarketClosed is returned for any order on a FINAL contract.
	ErrMarketClosed = errors.New("market closed")

	// ErrPortfolioLimit is returned when a fill or submission would push a
	// user past MaxPortfolioSize total contracts.
	ErrPortfolioLimit = errors.New("portfolio limit exceeded")

	// ErrInvalidTransition is returned for backward game status changes.
	ErrInvalidTransition = errors.New("invalid game status transition")

	// ErrAlreadySettled is returned when settlement is re-run on a settled
	// contract; callers treat it as a no-op.
	ErrAlreadySettled = errors.New("contract already settled")
)
