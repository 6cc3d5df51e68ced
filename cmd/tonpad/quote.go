package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/holiman/uint256"

	"github.com/tonpad-xyz/go-tonpad/curve"
)

func quote(args []string) error {
	fs := flag.NewFlagSet("quote", flag.ExitOnError)
	side := fs.String("side", "buy", "Quote side: buy or sell")
	amount := fs.String("amount", "", "TON paid (buy) or tokens sold (sell), required")
	supply := fs.String("supply", "0", "Current total supply")
	maxSupply := fs.String("max", "1000000000", "Max supply")
	price := fs.String("price", "1", "Initial price per unit, in nanoton")
	steepness := fs.String("steepness", "0", "Curve steepness")
	base := fs.String("base", "1000000", "Curve base amount")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tonpad quote [options]

Compute a bonding-curve quote offline, without a running server.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Tokens received for 50 TON at launch
  tonpad quote -side buy -amount 50000000000 -price 1000000

  # Proceeds of selling 1000 tokens at a supply of 50000
  tonpad quote -side sell -amount 1000 -supply 50000 -price 1000000 -steepness 500
`)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *amount == "" {
		fs.Usage()
		return fmt.Errorf("amount required")
	}

	dec := func(name, v string) (*uint256.Int, error) {
		x, err := uint256.FromDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("bad %s %q: %w", name, v, err)
		}
		return x, nil
	}

	amt, err := dec("amount", *amount)
	if err != nil {
		return err
	}
	sup, err := dec("supply", *supply)
	if err != nil {
		return err
	}
	max, err := dec("max", *maxSupply)
	if err != nil {
		return err
	}
	params := curve.Params{}
	if params.InitialPrice, err = dec("price", *price); err != nil {
		return err
	}
	if params.Steepness, err = dec("steepness", *steepness); err != nil {
		return err
	}
	if params.BaseAmount, err = dec("base", *base); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}

	switch *side {
	case "buy":
		units, err := curve.QuoteBuy(params, sup, max, amt)
		if err != nil {
			return err
		}
		cost := curve.Cost(params, sup, units)
		fmt.Printf("buy: %s tokens for %s nanoton (tendered %s)\n", units.Dec(), cost.Dec(), amt.Dec())
	case "sell":
		proceeds, err := curve.QuoteSell(params, sup, amt)
		if err != nil {
			return err
		}
		fmt.Printf("sell: %s tokens for %s nanoton\n", amt.Dec(), proceeds.Dec())
	default:
		return fmt.Errorf("side must be buy or sell, got %q", *side)
	}
	return nil
}
