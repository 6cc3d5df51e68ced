// Package access is the stateless caller-identity policy consulted before
// any mutation. A failed check never partially executes anything; callers
// run Authorize before touching ledger or pool state.
package access

import (
	"errors"
	"fmt"

	"github.com/tonpad-xyz/go-tonpad/ledger"
)

// ErrUnauthorized is returned for any caller the policy rejects.
var ErrUnauthorized = errors.New("access: unauthorized")

// Action classifies a requested mutation for policy purposes.
type Action int

const (
	// Owner actions: mint and pool administration.
	ActionMint Action = iota
	ActionAddPool
	ActionRemovePool
	ActionPoolWithdraw

	// Operator actions: internal transfers restricted to the token's
	// designated wallet/pool contracts.
	ActionInternalTransfer

	// Holder actions: ordinary transfer/burn/sell by the holder.
	ActionTransfer
	ActionBurn
	ActionSell
)

// Authorize checks whether caller may perform action against the token.
// holder is the balance owner the action touches (equal to caller for
// self-service actions). Rules, in precedence order:
//
//  1. mint and pool administration require caller == token owner
//     (pool withdrawals additionally admit designated operators, the
//     trade-settlement path);
//  2. internal transfers require caller to be a designated operator;
//  3. holder actions require caller == holder, or a designated operator
//     acting on the holder's behalf during settlement.
func Authorize(action Action, caller ledger.Address, token *ledger.Token, holder ledger.Address) error {
	switch action {
	case ActionMint, ActionAddPool, ActionRemovePool:
		if caller != token.Owner {
			return fmt.Errorf("%w: %s is not the owner of %s", ErrUnauthorized, caller, token.ID)
		}
		return nil

	case ActionPoolWithdraw:
		if caller != token.Owner && !token.IsOperator(caller) {
			return fmt.Errorf("%w: %s may not withdraw from the %s pool", ErrUnauthorized, caller, token.ID)
		}
		return nil

	case ActionInternalTransfer:
		if !token.IsOperator(caller) {
			return fmt.Errorf("%w: %s is not an operating contract of %s", ErrUnauthorized, caller, token.ID)
		}
		return nil

	case ActionTransfer, ActionBurn, ActionSell:
		if caller != holder && !token.IsOperator(caller) {
			return fmt.Errorf("%w: %s may not act for holder %s", ErrUnauthorized, caller, holder)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown action %d", ErrUnauthorized, action)
}
