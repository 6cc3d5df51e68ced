// Package ledger tracks minted supply and per-holder balances for every
// launched token, and enforces the supply cap and the conservation law:
// the sum of wallet balances always equals total supply.
//
// Mutations validate fully before touching state, so a rejected call
// leaves the token byte-identical to its pre-call state. The ledger does
// no caller authorization and is not goroutine-safe on its own; the
// engine consults the access policy and serializes mutations per token.
package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/tonpad-xyz/go-tonpad/curve"
)

// Ledger is the supply and balance book for all tokens.
type Ledger struct {
	tokens map[TokenID]*Token
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{tokens: make(map[TokenID]*Token)}
}

// CreateToken registers a new token with frozen parameters and zero
// supply. The curve is validated here; parameters cannot change after
// creation.
func (l *Ledger) CreateToken(id TokenID, owner Address, maxSupply *uint256.Int, mintable bool, params curve.Params) (*Token, error) {
	if _, ok := l.tokens[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenExists, id)
	}
	if maxSupply == nil || maxSupply.IsZero() {
		return nil, ErrInvalidAmount
	}
	if err := params.CheckBounds(maxSupply); err != nil {
		return nil, err
	}

	t := &Token{
		ID:          id,
		Owner:       owner,
		MaxSupply:   new(uint256.Int).Set(maxSupply),
		Mintable:    mintable,
		Curve:       params.Clone(),
		TotalSupply: uint256.NewInt(0),
		balances:    make(map[Address]*uint256.Int),
		operators:   make(map[Address]bool),
	}
	l.tokens[id] = t
	return t, nil
}

// Token returns the token record for id.
func (l *Ledger) Token(id TokenID) (*Token, error) {
	t, ok := l.tokens[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, id)
	}
	return t, nil
}

// Tokens returns the ids of all registered tokens.
func (l *Ledger) Tokens() []TokenID {
	ids := make([]TokenID, 0, len(l.tokens))
	for id := range l.tokens {
		ids = append(ids, id)
	}
	return ids
}

// Mint increases total supply and the recipient's balance by amount.
// Direct mints are gated by the token's mintable flag.
func (l *Ledger) Mint(id TokenID, to Address, amount *uint256.Int) error {
	t, err := l.Token(id)
	if err != nil {
		return err
	}
	if !t.Mintable {
		return ErrMintingDisabled
	}
	return l.Issue(id, to, amount)
}

// Issue mints through the bonding-curve settlement path. The supply cap
// still applies; the mintable flag does not, it gates owner mints only.
func (l *Ledger) Issue(id TokenID, to Address, amount *uint256.Int) error {
	t, err := l.Token(id)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	next := new(uint256.Int).Add(t.TotalSupply, amount)
	if next.Cmp(t.MaxSupply) > 0 {
		return ErrExceedsMaxSupply
	}

	t.TotalSupply.Set(next)
	t.credit(to, amount)
	return nil
}

// Burn decreases total supply and the holder's balance by amount.
func (l *Ledger) Burn(id TokenID, from Address, amount *uint256.Int) error {
	t, err := l.Token(id)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if t.Balance(from).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	if !t.debit(from, amount) {
		return ErrInsufficientBalance
	}
	t.TotalSupply.Sub(t.TotalSupply, amount)
	return nil
}

// Transfer moves amount between holders without touching total supply.
func (l *Ledger) Transfer(id TokenID, from, to Address, amount *uint256.Int) error {
	t, err := l.Token(id)
	if err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if t.Balance(from).Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	if !t.debit(from, amount) {
		return ErrInsufficientBalance
	}
	t.credit(to, amount)
	return nil
}

// BalanceOf returns the holder's balance, zero for holders without a
// wallet record.
func (l *Ledger) BalanceOf(id TokenID, holder Address) (*uint256.Int, error) {
	t, err := l.Token(id)
	if err != nil {
		return nil, err
	}
	return t.Balance(holder), nil
}

// CheckConservation verifies sum(balances) == totalSupply for a token.
// Used by tests and the engine's post-replay sanity check.
func (l *Ledger) CheckConservation(id TokenID) error {
	t, err := l.Token(id)
	if err != nil {
		return err
	}
	sum := uint256.NewInt(0)
	for _, b := range t.balances {
		sum.Add(sum, b)
	}
	if !sum.Eq(t.TotalSupply) {
		return fmt.Errorf("ledger: conservation violated for %s: balances %s, supply %s", id, sum, t.TotalSupply)
	}
	return nil
}
