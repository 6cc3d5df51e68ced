package ledger

import "errors"

var (
	// ErrTokenNotFound is returned when a token id has no record.
	ErrTokenNotFound = errors.New("ledger: token not found")

	// ErrTokenExists is returned when creating a token id twice.
	ErrTokenExists = errors.New("ledger: token already exists")

	// ErrInvalidAmount is returned for zero or missing amounts.
	ErrInvalidAmount = errors.New("ledger: invalid amount")

	// ErrInsufficientBalance is returned when a debit exceeds the
	// holder's balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrExceedsMaxSupply is returned when a mint would push total
	// supply past the cap.
	ErrExceedsMaxSupply = errors.New("ledger: exceeds max supply")

	// ErrMintingDisabled is returned when minting a token whose
	// mintable gate is off.
	ErrMintingDisabled = errors.New("ledger: minting disabled")
)
