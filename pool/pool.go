// Package pool tracks one liquidity pool per token plus the queue of
// pending sell requests awaiting two-phase settlement.
//
// A pending sell lives inside a single logical trade flow:
// NoRequest -> Pending (RequestSell) -> Settled|Cancelled (terminal).
// At most one request may be outstanding per (token, requester); expired
// requests are removed by the engine's periodic sweep so the counter-leg
// never arriving cannot orphan an entry.
//
// The registry locks internally because its maps span tokens; per-token
// trade serialization is the engine's job.
package pool

import (
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/tonpad-xyz/go-tonpad/ledger"
)

// Pool is the liquidity reservoir for one token.
type Pool struct {
	Token   ledger.TokenID
	Balance *uint256.Int
	Active  bool
}

// PendingSell is an in-flight, not-yet-settled sell request.
type PendingSell struct {
	Token     ledger.TokenID
	Requester ledger.Address
	Amount    *uint256.Int
	CreatedAt time.Time
}

type pendingKey struct {
	token     ledger.TokenID
	requester ledger.Address
}

// Registry holds all pools and pending sell requests.
type Registry struct {
	mu      sync.Mutex
	pools   map[ledger.TokenID]*Pool
	pending map[pendingKey]*PendingSell
	clock   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pools:   make(map[ledger.TokenID]*Pool),
		pending: make(map[pendingKey]*PendingSell),
		clock:   time.Now,
	}
}

// WithClock overrides the registry clock for deterministic tests.
func (r *Registry) WithClock(clock func() time.Time) {
	if clock != nil {
		r.clock = clock
	}
}

// Add creates an empty, active pool for the token.
func (r *Registry) Add(token ledger.TokenID) (*Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pools[token]; ok {
		return nil, ErrPoolAlreadyExists
	}
	p := &Pool{Token: token, Balance: uint256.NewInt(0), Active: true}
	r.pools[token] = p
	return p, nil
}

// Remove deletes the token's pool. The pool must be fully drained first.
func (r *Registry) Remove(token ledger.TokenID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[token]
	if !ok {
		return ErrPoolDoesNotExist
	}
	if !p.Balance.IsZero() {
		return ErrPoolMustBeEmpty
	}
	delete(r.pools, token)
	return nil
}

func (r *Registry) get(token ledger.TokenID) (*Pool, error) {
	p, ok := r.pools[token]
	if !ok {
		return nil, ErrPoolDoesNotExist
	}
	return p, nil
}

func (r *Registry) active(token ledger.TokenID) (*Pool, error) {
	p, err := r.get(token)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPoolInactive
	}
	return p, nil
}

// Balance returns the token's pool balance and active flag.
func (r *Registry) Balance(token ledger.TokenID) (*uint256.Int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.get(token)
	if err != nil {
		return nil, false, err
	}
	return new(uint256.Int).Set(p.Balance), p.Active, nil
}

// CheckTrade rejects tokens whose pool is missing or deactivated, and
// reports whether the pool can pay out the given amount. Trade paths call
// this before committing anything.
func (r *Registry) CheckTrade(token ledger.TokenID, payout *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.active(token)
	if err != nil {
		return err
	}
	if payout != nil && p.Balance.Cmp(payout) < 0 {
		return ErrInsufficientPoolBalance
	}
	return nil
}

// SetActive flips the pool's trading gate.
func (r *Registry) SetActive(token ledger.TokenID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.get(token)
	if err != nil {
		return err
	}
	p.Active = active
	return nil
}

// Deposit adds liquidity to the token's pool.
func (r *Registry) Deposit(token ledger.TokenID, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.get(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ledger.ErrInvalidAmount
	}
	p.Balance.Add(p.Balance, amount)
	return nil
}

// Withdraw removes liquidity from the token's pool.
func (r *Registry) Withdraw(token ledger.TokenID, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.get(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ledger.ErrInvalidAmount
	}
	if p.Balance.Cmp(amount) < 0 {
		return ErrInsufficientPoolBalance
	}
	p.Balance.Sub(p.Balance, amount)
	return nil
}

// RequestSell records a pending sell for (token, requester) created at
// the given time. A second request while one is outstanding is rejected,
// never overwritten.
func (r *Registry) RequestSell(token ledger.TokenID, requester ledger.Address, amount *uint256.Int, at time.Time) (*PendingSell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.active(token); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ledger.ErrInvalidAmount
	}
	key := pendingKey{token, requester}
	if _, ok := r.pending[key]; ok {
		return nil, ErrPendingSellAlreadyExists
	}
	ps := &PendingSell{
		Token:     token,
		Requester: requester,
		Amount:    new(uint256.Int).Set(amount),
		CreatedAt: at,
	}
	r.pending[key] = ps
	return ps, nil
}

// Pending returns the outstanding sell request for (token, requester),
// or nil if none.
func (r *Registry) Pending(token ledger.TokenID, requester ledger.Address) *PendingSell {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[pendingKey{token, requester}]
}

// TakeSell consumes the pending sell for (token, requester), removing the
// record. Used by both the settle and cancel paths; the record can be
// consumed exactly once.
func (r *Registry) TakeSell(token ledger.TokenID, requester ledger.Address) (*PendingSell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pendingKey{token, requester}
	ps, ok := r.pending[key]
	if !ok {
		return nil, ErrNoPendingSellRequest
	}
	delete(r.pending, key)
	return ps, nil
}

// Restore re-inserts a previously taken pending sell. The engine uses it
// to roll back when the settlement leg fails after the record was taken.
func (r *Registry) Restore(ps *PendingSell) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[pendingKey{ps.Token, ps.Requester}] = ps
}

// Expired returns all pending sells older than ttl without removing
// them. The engine cancels each through its normal trade path so the
// removal is recorded like any other mutation.
func (r *Registry) Expired(ttl time.Duration) []*PendingSell {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock().Add(-ttl)
	var expired []*PendingSell
	for _, ps := range r.pending {
		if ps.CreatedAt.Before(cutoff) {
			expired = append(expired, ps)
		}
	}
	return expired
}

// PendingCount returns the number of outstanding sell requests.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
