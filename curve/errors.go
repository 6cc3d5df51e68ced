package curve

import "errors"

var (
	// ErrInvalidTokenPrice is returned for a curve configured with a
	// non-positive initial price or base amount.
	ErrInvalidTokenPrice = errors.New("curve: invalid token price")

	// ErrAmountTooSmall is returned when a quote rounds to zero
	// tokens or zero counter-asset.
	ErrAmountTooSmall = errors.New("curve: amount too small")
)
