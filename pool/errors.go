package pool

import "errors"

var (
	// ErrPoolAlreadyExists is returned when adding a second pool for a
	// token.
	ErrPoolAlreadyExists = errors.New("pool: pool already exists")

	// ErrPoolDoesNotExist is returned for operations against a token
	// with no pool.
	ErrPoolDoesNotExist = errors.New("pool: pool does not exist")

	// ErrPoolInactive is returned for trades against a deactivated pool.
	ErrPoolInactive = errors.New("pool: pool inactive")

	// ErrPoolMustBeEmpty is returned when removing a pool that still
	// holds liquidity.
	ErrPoolMustBeEmpty = errors.New("pool: pool must be empty")

	// ErrInsufficientPoolBalance is returned when a withdrawal exceeds
	// pool liquidity.
	ErrInsufficientPoolBalance = errors.New("pool: insufficient pool balance")

	// ErrPendingSellAlreadyExists is returned when a (token, requester)
	// pair already has an outstanding sell request.
	ErrPendingSellAlreadyExists = errors.New("pool: pending sell already exists")

	// ErrNoPendingSellRequest is returned when settling or cancelling a
	// sell that was never requested.
	ErrNoPendingSellRequest = errors.New("pool: no pending sell request")
)
