package engine

import (
	"errors"

	"github.com/tonpad-xyz/go-tonpad/access"
	"github.com/tonpad-xyz/go-tonpad/curve"
	"github.com/tonpad-xyz/go-tonpad/eventstore"
	"github.com/tonpad-xyz/go-tonpad/ledger"
	"github.com/tonpad-xyz/go-tonpad/pool"
)

var (
	// ErrUnknownAction is returned for a trade whose action the engine
	// does not recognize.
	ErrUnknownAction = errors.New("engine: unknown action")

	// ErrInvalidRecipient is returned when a mint or transfer names no
	// recipient.
	ErrInvalidRecipient = errors.New("engine: invalid recipient")
)

// Kind flattens a rejection into a stable string the API surfaces to
// clients. Unknown errors report as Internal.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, access.ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ledger.ErrTokenNotFound):
		return "TokenNotFound"
	case errors.Is(err, ledger.ErrTokenExists):
		return "TokenExists"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ledger.ErrExceedsMaxSupply):
		return "ExceedsMaxSupply"
	case errors.Is(err, ledger.ErrMintingDisabled):
		return "MintingDisabled"
	case errors.Is(err, curve.ErrInvalidTokenPrice):
		return "InvalidTokenPrice"
	case errors.Is(err, curve.ErrAmountTooSmall):
		return "AmountTooSmall"
	case errors.Is(err, pool.ErrPoolAlreadyExists):
		return "PoolAlreadyExists"
	case errors.Is(err, pool.ErrPoolDoesNotExist):
		return "PoolDoesNotExist"
	case errors.Is(err, pool.ErrPoolInactive):
		return "PoolInactive"
	case errors.Is(err, pool.ErrPoolMustBeEmpty):
		return "PoolMustBeEmpty"
	case errors.Is(err, pool.ErrInsufficientPoolBalance):
		return "InsufficientPoolBalance"
	case errors.Is(err, pool.ErrPendingSellAlreadyExists):
		return "PendingSellAlreadyExists"
	case errors.Is(err, pool.ErrNoPendingSellRequest):
		return "NoPendingSellRequest"
	case errors.Is(err, eventstore.ErrConcurrencyConflict):
		return "Conflict"
	case errors.Is(err, ErrUnknownAction):
		return "UnknownAction"
	case errors.Is(err, ErrInvalidRecipient):
		return "InvalidRecipient"
	}
	return "Internal"
}
