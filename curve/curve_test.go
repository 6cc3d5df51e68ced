package curve

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func testParams() Params {
	return Params{
		InitialPrice: uint256.NewInt(10),
		Steepness:    uint256.NewInt(5),
		BaseAmount:   uint256.NewInt(100),
	}
}

func TestValidate(t *testing.T) {
	p := testParams()
	if err := p.Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	p.InitialPrice = uint256.NewInt(0)
	if err := p.Validate(); !errors.Is(err, ErrInvalidTokenPrice) {
		t.Errorf("zero initial price: expected ErrInvalidTokenPrice, got %v", err)
	}

	p = testParams()
	p.BaseAmount = nil
	if err := p.Validate(); !errors.Is(err, ErrInvalidTokenPrice) {
		t.Errorf("nil base amount: expected ErrInvalidTokenPrice, got %v", err)
	}
}

func TestCheckBoundsRejectsOverflow(t *testing.T) {
	// steepness 2^128 with a cap near 2^129 pushes steepness*supply past
	// 256 bits, which would wrap the marginal price down toward zero.
	p := Params{
		InitialPrice: uint256.NewInt(1),
		Steepness:    new(uint256.Int).Lsh(uint256.NewInt(1), 128),
		BaseAmount:   uint256.NewInt(1),
	}
	maxSupply := new(uint256.Int).Lsh(uint256.NewInt(1), 129)
	if err := p.CheckBounds(maxSupply); !errors.Is(err, ErrInvalidTokenPrice) {
		t.Fatalf("overflowing configuration: expected ErrInvalidTokenPrice, got %v", err)
	}

	// The same parameters with a modest cap are fine.
	if err := p.CheckBounds(uint256.NewInt(1_000_000)); err != nil {
		t.Fatalf("bounded configuration rejected: %v", err)
	}
}

func TestMarginalPriceMonotonicWithinBounds(t *testing.T) {
	// A steep curve that passes CheckBounds must keep the marginal price
	// non-decreasing all the way up to its cap.
	p := Params{
		InitialPrice: uint256.NewInt(1),
		Steepness:    new(uint256.Int).Lsh(uint256.NewInt(1), 64),
		BaseAmount:   uint256.NewInt(1),
	}
	maxSupply := new(uint256.Int).Lsh(uint256.NewInt(1), 120)
	if err := p.CheckBounds(maxSupply); err != nil {
		t.Fatalf("CheckBounds: %v", err)
	}

	low := MarginalPrice(p, new(uint256.Int).Lsh(uint256.NewInt(1), 100))
	high := MarginalPrice(p, maxSupply)
	if high.Cmp(low) < 0 {
		t.Fatalf("marginal price decreased near the cap: %s -> %s", low, high)
	}
}

func TestMarginalPriceMonotonic(t *testing.T) {
	p := testParams()
	prev := MarginalPrice(p, uint256.NewInt(0))
	for s := uint64(1); s <= 5000; s++ {
		cur := MarginalPrice(p, uint256.NewInt(s))
		if cur.Cmp(prev) < 0 {
			t.Fatalf("marginal price decreased at supply %d: %s -> %s", s, prev, cur)
		}
		prev = cur
	}
}

func TestMarginalPriceFlatCurve(t *testing.T) {
	p := testParams()
	p.Steepness = uint256.NewInt(0)
	got := MarginalPrice(p, uint256.NewInt(123456))
	if !got.Eq(uint256.NewInt(10)) {
		t.Errorf("flat curve price = %s, want 10", got)
	}
}

func TestCostMatchesUnitSum(t *testing.T) {
	// Cost over a range must equal the sum of unit marginal prices when
	// baseAmount divides everything cleanly. Steepness 100, base 100
	// gives price(s) = 10 + s with no rounding.
	p := Params{
		InitialPrice: uint256.NewInt(10),
		Steepness:    uint256.NewInt(100),
		BaseAmount:   uint256.NewInt(100),
	}
	sum := uint256.NewInt(0)
	for s := uint64(7); s < 7+25; s++ {
		sum.Add(sum, MarginalPrice(p, uint256.NewInt(s)))
	}
	got := Cost(p, uint256.NewInt(7), uint256.NewInt(25))
	if !got.Eq(sum) {
		t.Errorf("Cost = %s, unit sum = %s", got, sum)
	}
}

func TestQuoteBuyFlatCurve(t *testing.T) {
	p := testParams()
	p.Steepness = uint256.NewInt(0)

	// 105 nanoton at price 10 buys exactly 10 units.
	n, err := QuoteBuy(p, uint256.NewInt(0), uint256.NewInt(1000), uint256.NewInt(105))
	if err != nil {
		t.Fatalf("QuoteBuy: %v", err)
	}
	if !n.Eq(uint256.NewInt(10)) {
		t.Errorf("flat buy = %s, want 10", n)
	}
}

func TestQuoteBuyRespectsMaxSupply(t *testing.T) {
	p := testParams()
	p.Steepness = uint256.NewInt(0)

	// Payment covers 1000 units but only 3 remain below the cap.
	n, err := QuoteBuy(p, uint256.NewInt(997), uint256.NewInt(1000), uint256.NewInt(10000))
	if err != nil {
		t.Fatalf("QuoteBuy: %v", err)
	}
	if !n.Eq(uint256.NewInt(3)) {
		t.Errorf("capped buy = %s, want 3", n)
	}

	// Sold out entirely.
	if _, err := QuoteBuy(p, uint256.NewInt(1000), uint256.NewInt(1000), uint256.NewInt(10000)); !errors.Is(err, ErrAmountTooSmall) {
		t.Errorf("sold out: expected ErrAmountTooSmall, got %v", err)
	}
}

func TestQuoteBuyDust(t *testing.T) {
	p := testParams()
	if _, err := QuoteBuy(p, uint256.NewInt(0), uint256.NewInt(1000), uint256.NewInt(9)); !errors.Is(err, ErrAmountTooSmall) {
		t.Errorf("dust buy: expected ErrAmountTooSmall, got %v", err)
	}
	if _, err := QuoteBuy(p, uint256.NewInt(0), uint256.NewInt(1000), uint256.NewInt(0)); !errors.Is(err, ErrAmountTooSmall) {
		t.Errorf("zero buy: expected ErrAmountTooSmall, got %v", err)
	}
}

func TestQuoteSellBounds(t *testing.T) {
	p := testParams()
	if _, err := QuoteSell(p, uint256.NewInt(5), uint256.NewInt(6)); !errors.Is(err, ErrAmountTooSmall) {
		t.Errorf("oversell: expected ErrAmountTooSmall, got %v", err)
	}
	if _, err := QuoteSell(p, uint256.NewInt(5), uint256.NewInt(0)); !errors.Is(err, ErrAmountTooSmall) {
		t.Errorf("zero sell: expected ErrAmountTooSmall, got %v", err)
	}
}

func TestBuySellRoundTripNeverProfits(t *testing.T) {
	p := testParams()
	maxSupply := uint256.NewInt(100000)

	payments := []uint64{10, 55, 137, 999, 12345, 7777777}
	supplies := []uint64{0, 1, 99, 4242, 50000}

	for _, s := range supplies {
		for _, pay := range payments {
			supply := uint256.NewInt(s)
			paid := uint256.NewInt(pay)

			n, err := QuoteBuy(p, supply, maxSupply, paid)
			if err != nil {
				continue
			}
			post := new(uint256.Int).Add(supply, n)
			proceeds, err := QuoteSell(p, post, n)
			if err != nil {
				t.Fatalf("QuoteSell after buy(supply=%d, pay=%d): %v", s, pay, err)
			}
			if proceeds.Cmp(paid) > 0 {
				t.Errorf("round trip profit at supply=%d pay=%d: paid %s, got back %s", s, pay, paid, proceeds)
			}
		}
	}
}

func TestQuoteDeterminism(t *testing.T) {
	p := testParams()
	a, err := QuoteBuy(p, uint256.NewInt(321), uint256.NewInt(100000), uint256.NewInt(98765))
	if err != nil {
		t.Fatalf("QuoteBuy: %v", err)
	}
	b, err := QuoteBuy(p.Clone(), uint256.NewInt(321), uint256.NewInt(100000), uint256.NewInt(98765))
	if err != nil {
		t.Fatalf("QuoteBuy (clone): %v", err)
	}
	if !a.Eq(b) {
		t.Errorf("quotes diverged: %s vs %s", a, b)
	}
}
