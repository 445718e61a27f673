package domain

import "errors"

var (
	// ErrDataUnavailable means the market-data collaborator returned no
	// usable snapshot. Evaluation for that symbol/tick is skipped and
	// retried next cycle; no trade record is mutated.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrInvalidTransition is returned when a lifecycle transition is
	// requested on a trade in the wrong state. A duplicate request that
	// matches the already-applied transition is a no-op instead.
	ErrInvalidTransition = errors.New("invalid trade transition")

	ErrTradeNotFound = errors.New("trade not found")

	// ErrDuplicateSetup means a setup for the same symbol, style and
	// minute is already tracked; the sweep skips the alert.
	ErrDuplicateSetup = errors.New("setup already tracked")

	ErrMarketClosed = errors.New("market closed")
)
