package engine

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/tonpad-xyz/go-tonpad/ledger"
)

// Action names one kind of state transition the engine settles.
type Action string

const (
	ActionMint           Action = "mint"
	ActionBurn           Action = "burn"
	ActionTransfer       Action = "transfer"
	ActionBuy            Action = "buy"
	ActionSell           Action = "sell"
	ActionAddPool        Action = "addPool"
	ActionRemovePool     Action = "removePool"
	ActionActivatePool   Action = "activatePool"
	ActionDeactivatePool Action = "deactivatePool"
	ActionDeposit        Action = "deposit"
	ActionWithdraw       Action = "withdraw"
	ActionRequestSell    Action = "requestSell"
	ActionSettleSell     Action = "settleSell"
	ActionCancelSell     Action = "cancelSell"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionMint, ActionBurn, ActionTransfer, ActionBuy, ActionSell,
		ActionAddPool, ActionRemovePool, ActionActivatePool, ActionDeactivatePool,
		ActionDeposit, ActionWithdraw,
		ActionRequestSell, ActionSettleSell, ActionCancelSell:
		return true
	}
	return false
}

// Trade is a submitted intent against one token. Amount is TON for buy
// and deposit/withdraw, token units everywhere else. From defaults to
// the caller; To is the recipient for mint and transfer.
type Trade struct {
	Token  ledger.TokenID
	Caller ledger.Address
	Action Action
	Amount *uint256.Int
	From   ledger.Address
	To     ledger.Address
}

// Receipt describes one committed transition: the legs that moved and
// the token's supply after the move.
type Receipt struct {
	ID          string         `json:"id"`
	Token       ledger.TokenID `json:"token"`
	Action      Action         `json:"action"`
	Caller      ledger.Address `json:"caller"`
	TokenAmount *uint256.Int   `json:"tokenAmount,omitempty"`
	TonAmount   *uint256.Int   `json:"tonAmount,omitempty"`
	TotalSupply *uint256.Int   `json:"totalSupply"`
	Version     int            `json:"version"`
	Timestamp   time.Time      `json:"timestamp"`
}

// tradeRecord is the persisted event payload for a trade. Amounts are
// decimal strings so the history stays readable in sqlite.
type tradeRecord struct {
	Action Action `json:"action"`
	Caller string `json:"caller"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Amount string `json:"amount,omitempty"`
}

func newTradeRecord(t Trade) tradeRecord {
	rec := tradeRecord{
		Action: t.Action,
		Caller: string(t.Caller),
		From:   string(t.From),
		To:     string(t.To),
	}
	if t.Amount != nil {
		rec.Amount = t.Amount.Dec()
	}
	return rec
}

func (rec tradeRecord) trade(token ledger.TokenID) (Trade, error) {
	t := Trade{
		Token:  token,
		Caller: ledger.Address(rec.Caller),
		Action: rec.Action,
		From:   ledger.Address(rec.From),
		To:     ledger.Address(rec.To),
	}
	if rec.Amount != "" {
		amt, err := uint256.FromDecimal(rec.Amount)
		if err != nil {
			return Trade{}, err
		}
		t.Amount = amt
	}
	return t, nil
}

// createRecord is the persisted payload of a token's first event.
type createRecord struct {
	Owner        string   `json:"owner"`
	MaxSupply    string   `json:"maxSupply"`
	Mintable     bool     `json:"mintable"`
	InitialPrice string   `json:"initialPrice"`
	Steepness    string   `json:"steepness"`
	BaseAmount   string   `json:"baseAmount"`
	Operators    []string `json:"operators,omitempty"`
}
