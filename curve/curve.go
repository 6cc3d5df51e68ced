// Package curve implements the deterministic bonding curve used to price
// primary-market buys and sells against a token's minted supply.
//
// The curve is linear in supply: the marginal price of the s-th unit is
//
//	price(s) = initialPrice + (steepness * s) / baseAmount
//
// All arithmetic is 256-bit unsigned integer math; there is no floating
// point anywhere, so two independent evaluations of the same quote agree
// bit for bit. Quotes round down, which makes an immediate buy-then-sell
// round trip at worst break even for the trader.
package curve

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Params are the immutable curve parameters fixed at token creation.
type Params struct {
	// InitialPrice is the price of the first unit, in counter-asset
	// base units (nanoton). Must be positive.
	InitialPrice *uint256.Int

	// Steepness scales how quickly the marginal price grows with supply.
	// Zero yields a flat curve at InitialPrice.
	Steepness *uint256.Int

	// BaseAmount is the supply denominator of the slope term. Must be
	// positive.
	BaseAmount *uint256.Int
}

// Validate checks the curve configuration.
// A non-positive initial price or base amount is rejected with
// ErrInvalidTokenPrice; nil fields count as zero.
func (p Params) Validate() error {
	if p.InitialPrice == nil || p.InitialPrice.IsZero() {
		return ErrInvalidTokenPrice
	}
	if p.BaseAmount == nil || p.BaseAmount.IsZero() {
		return ErrInvalidTokenPrice
	}
	return nil
}

// CheckBounds verifies that every quote the curve can produce for
// supplies up to maxSupply fits in 256 bits. Each runtime intermediate
// (the triangle product, the slope term, the base term and their sum,
// and the marginal price) is monotone in supply and amount, so checking
// the worst case at the cap makes wrap-around unreachable afterwards.
// Fails with ErrInvalidTokenPrice, like the other configuration checks.
func (p Params) CheckBounds(maxSupply *uint256.Int) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if maxSupply == nil || maxSupply.IsZero() {
		return nil
	}
	errOverflow := fmt.Errorf("%w: curve overflows 256 bits at max supply", ErrInvalidTokenPrice)
	steepness := clone(p.Steepness)

	// T(maxSupply) = maxSupply*(maxSupply-1)/2
	mm1 := new(uint256.Int).SubUint64(maxSupply, 1)
	tri, overflow := new(uint256.Int).MulOverflow(maxSupply, mm1)
	if overflow {
		return errOverflow
	}
	tri.Rsh(tri, 1)

	slope, overflow := new(uint256.Int).MulOverflow(steepness, tri)
	if overflow {
		return errOverflow
	}
	slope.Div(slope, p.BaseAmount)
	base, overflow := new(uint256.Int).MulOverflow(maxSupply, p.InitialPrice)
	if overflow {
		return errOverflow
	}
	if _, overflow = new(uint256.Int).AddOverflow(slope, base); overflow {
		return errOverflow
	}

	// Marginal price at the cap.
	lin, overflow := new(uint256.Int).MulOverflow(steepness, maxSupply)
	if overflow {
		return errOverflow
	}
	lin.Div(lin, p.BaseAmount)
	if _, overflow = new(uint256.Int).AddOverflow(lin, p.InitialPrice); overflow {
		return errOverflow
	}
	return nil
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	return Params{
		InitialPrice: clone(p.InitialPrice),
		Steepness:    clone(p.Steepness),
		BaseAmount:   clone(p.BaseAmount),
	}
}

func clone(x *uint256.Int) *uint256.Int {
	if x == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(x)
}

// MarginalPrice returns the price of the next unit at the given supply.
func MarginalPrice(p Params, supply *uint256.Int) *uint256.Int {
	// initialPrice + steepness*supply/baseAmount
	slope := new(uint256.Int).Mul(clone(p.Steepness), supply)
	slope.Div(slope, p.BaseAmount)
	return slope.Add(slope, p.InitialPrice)
}

// triangle returns x*(x-1)/2, the sum of 0..x-1.
func triangle(x *uint256.Int) *uint256.Int {
	if x.IsZero() {
		return uint256.NewInt(0)
	}
	xm1 := new(uint256.Int).SubUint64(x, 1)
	t := new(uint256.Int).Mul(x, xm1)
	return t.Rsh(t, 1)
}

// Cost returns the counter-asset cost of minting amount units starting at
// the given supply:
//
//	amount*initialPrice + steepness*(T(supply+amount) - T(supply))/baseAmount
//
// where T(x) = x*(x-1)/2. The single floor division keeps Cost symmetric:
// the proceeds of selling the same units back at the post-buy supply equal
// the cost exactly.
func Cost(p Params, supply, amount *uint256.Int) *uint256.Int {
	end := new(uint256.Int).Add(supply, amount)
	sum := new(uint256.Int).Sub(triangle(end), triangle(supply))
	sum.Mul(sum, clone(p.Steepness))
	sum.Div(sum, p.BaseAmount)
	base := new(uint256.Int).Mul(amount, p.InitialPrice)
	return sum.Add(sum, base)
}

// QuoteBuy returns the number of tokens a buyer receives for tonAmount at
// the given supply, never minting past maxSupply. The quote is the largest
// n with Cost(supply, n) <= tonAmount.
//
// Fails with ErrAmountTooSmall when the payment does not cover even one
// unit (dust is rejected rather than silently buying nothing).
func QuoteBuy(p Params, supply, maxSupply, tonAmount *uint256.Int) (*uint256.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if supply.Cmp(maxSupply) >= 0 {
		return nil, ErrAmountTooSmall
	}

	// Cost is strictly increasing in n (initialPrice > 0), so binary
	// search the largest affordable amount. Bounded by remaining supply.
	lo := uint256.NewInt(0)
	hi := new(uint256.Int).Sub(maxSupply, supply)
	for lo.Cmp(hi) < 0 {
		// mid = (lo+hi+1)/2, biased up so the loop terminates.
		mid := new(uint256.Int).Add(lo, hi)
		mid.AddUint64(mid, 1)
		mid.Rsh(mid, 1)
		if Cost(p, supply, mid).Cmp(tonAmount) <= 0 {
			lo = mid
		} else {
			hi = new(uint256.Int).SubUint64(mid, 1)
		}
	}
	if lo.IsZero() {
		return nil, ErrAmountTooSmall
	}
	return lo, nil
}

// QuoteSell returns the counter-asset proceeds of selling tokenAmount at
// the given supply. Proceeds mirror Cost: selling n units at supply s pays
// out Cost(s-n, n).
//
// Fails with ErrAmountTooSmall when the proceeds round to zero, and when
// tokenAmount exceeds the current supply (there is nothing on the curve to
// sell back).
func QuoteSell(p Params, supply, tokenAmount *uint256.Int) (*uint256.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if tokenAmount.IsZero() || tokenAmount.Cmp(supply) > 0 {
		return nil, ErrAmountTooSmall
	}
	from := new(uint256.Int).Sub(supply, tokenAmount)
	ton := Cost(p, from, tokenAmount)
	if ton.IsZero() {
		return nil, ErrAmountTooSmall
	}
	return ton, nil
}
