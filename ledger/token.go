package ledger

import (
	"github.com/holiman/uint256"

	"github.com/tonpad-xyz/go-tonpad/curve"
)

// Address is an opaque holder or contract identity. The engine trusts it
// as already resolved by the caller's identity layer.
type Address string

// TokenID identifies one token aggregate.
type TokenID string

// Token is a single launched token: immutable curve parameters and supply
// cap, a mutable total supply, and the per-holder balance book.
type Token struct {
	ID        TokenID
	Owner     Address
	MaxSupply *uint256.Int
	Mintable  bool
	Curve     curve.Params

	TotalSupply *uint256.Int

	// balances holds one entry per holder that has ever interacted with
	// the token. A zero balance is a valid resting state; entries are
	// never deleted.
	balances map[Address]*uint256.Int

	// operators are the token's designated operating contracts (its own
	// pool/factory), allowed to move third-party balances during trade
	// settlement.
	operators map[Address]bool
}

// Balance returns the holder's balance, zero for unknown holders.
func (t *Token) Balance(holder Address) *uint256.Int {
	if b, ok := t.balances[holder]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// IsOperator reports whether addr is a designated operating contract.
func (t *Token) IsOperator(addr Address) bool {
	return t.operators[addr]
}

// AddOperator registers a designated operating contract for the token.
func (t *Token) AddOperator(addr Address) {
	t.operators[addr] = true
}

// Holders returns the number of holder records, zero balances included.
func (t *Token) Holders() int {
	return len(t.balances)
}

// credit adds amount to a holder, creating the wallet record lazily.
func (t *Token) credit(holder Address, amount *uint256.Int) {
	b, ok := t.balances[holder]
	if !ok {
		b = uint256.NewInt(0)
		t.balances[holder] = b
	}
	b.Add(b, amount)
}

// debit subtracts amount from a holder. Callers must have verified the
// balance; debit still refuses to underflow.
func (t *Token) debit(holder Address, amount *uint256.Int) bool {
	b, ok := t.balances[holder]
	if !ok || b.Cmp(amount) < 0 {
		return false
	}
	b.Sub(b, amount)
	return true
}
