// Package engine is the transactional core of the launchpad. It owns
// the ledger, the bonding curve quotes, the liquidity pools and the
// access policy, and settles every mutation as one atomic transition:
// validate, append to the event store, then apply. A rejected trade
// changes nothing; a committed one is durable before it is visible.
//
// Mutations are serialized per token. Trades against different tokens
// settle concurrently.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/tonpad-xyz/go-tonpad/access"
	"github.com/tonpad-xyz/go-tonpad/curve"
	"github.com/tonpad-xyz/go-tonpad/eventstore"
	"github.com/tonpad-xyz/go-tonpad/feed"
	"github.com/tonpad-xyz/go-tonpad/ledger"
	"github.com/tonpad-xyz/go-tonpad/pool"
)

const eventCreateToken = "createToken"

// tokenLock serializes settlement for one token and tracks the token's
// stream version under that same lock.
type tokenLock struct {
	sync.Mutex
	version int
}

// Engine settles trades against the ledger and liquidity pools, and
// records every committed transition in the event store.
type Engine struct {
	// mu guards the token registry itself. Token creation takes the
	// write side; settlement and reads share the read side and rely on
	// the per-token lock beyond that.
	mu    sync.RWMutex
	locks map[ledger.TokenID]*tokenLock

	book  *ledger.Ledger
	pools *pool.Registry
	store eventstore.Store
	bus   *feed.Bus[*Receipt]
	log   *slog.Logger
	clock func() time.Time
}

// New creates an engine backed by the given store. A nil store falls
// back to in-memory persistence, a nil logger to slog.Default.
func New(store eventstore.Store, logger *slog.Logger) *Engine {
	if store == nil {
		store = eventstore.NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		locks: make(map[ledger.TokenID]*tokenLock),
		book:  ledger.New(),
		pools: pool.NewRegistry(),
		store: store,
		bus:   feed.NewBus[*Receipt](64),
		log:   logger,
		clock: time.Now,
	}
}

// WithClock overrides the engine's time source. Used by tests.
func (e *Engine) WithClock(clock func() time.Time) {
	e.clock = clock
	e.pools.WithClock(clock)
}

// Subscribe registers a live receipt feed. The returned cancel func
// releases the subscription.
func (e *Engine) Subscribe() (<-chan *Receipt, func()) {
	return e.bus.Subscribe()
}

// Subscribers reports how many receipt feeds are attached.
func (e *Engine) Subscribers() int {
	return e.bus.Subscribers()
}

// Close shuts the feed and the backing store.
func (e *Engine) Close() error {
	e.bus.Close()
	return e.store.Close()
}

// TokenParams configures a new token. All fields are frozen at
// creation.
type TokenParams struct {
	ID        ledger.TokenID
	Owner     ledger.Address
	MaxSupply *uint256.Int
	Mintable  bool
	Curve     curve.Params
	// Operators are the token's designated operating contracts, allowed
	// to settle on holders' behalf.
	Operators []ledger.Address
}

// CreateToken registers a token and opens its event stream. The create
// event is appended before the token becomes visible.
func (e *Engine) CreateToken(ctx context.Context, p TokenParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.locks[p.ID]; ok {
		return fmt.Errorf("%w: %s", ledger.ErrTokenExists, p.ID)
	}
	if p.MaxSupply == nil || p.MaxSupply.IsZero() {
		return ledger.ErrInvalidAmount
	}
	if err := p.Curve.CheckBounds(p.MaxSupply); err != nil {
		return err
	}

	cc := p.Curve.Clone()
	rec := createRecord{
		Owner:        string(p.Owner),
		MaxSupply:    p.MaxSupply.Dec(),
		Mintable:     p.Mintable,
		InitialPrice: cc.InitialPrice.Dec(),
		Steepness:    cc.Steepness.Dec(),
		BaseAmount:   cc.BaseAmount.Dec(),
	}
	for _, op := range p.Operators {
		rec.Operators = append(rec.Operators, string(op))
	}
	ev, err := eventstore.NewEvent(string(p.ID), eventCreateToken, rec)
	if err != nil {
		return err
	}
	ev.Timestamp = e.clock().UTC()
	version, err := e.store.Append(ctx, string(p.ID), -1, []*eventstore.Event{ev})
	if err != nil {
		return err
	}

	if err := e.registerToken(p.ID, rec); err != nil {
		return err
	}
	e.locks[p.ID].version = version
	e.log.InfoContext(ctx, "token created",
		"token", p.ID, "owner", p.Owner, "maxSupply", p.MaxSupply.Dec(), "mintable", p.Mintable)
	return nil
}

// registerToken materializes a token from its create record. Caller
// holds the registry write lock.
func (e *Engine) registerToken(id ledger.TokenID, rec createRecord) error {
	maxSupply, err := uint256.FromDecimal(rec.MaxSupply)
	if err != nil {
		return fmt.Errorf("engine: bad create record for %s: %w", id, err)
	}
	initialPrice, err := uint256.FromDecimal(rec.InitialPrice)
	if err != nil {
		return fmt.Errorf("engine: bad create record for %s: %w", id, err)
	}
	steepness, err := uint256.FromDecimal(rec.Steepness)
	if err != nil {
		return fmt.Errorf("engine: bad create record for %s: %w", id, err)
	}
	baseAmount, err := uint256.FromDecimal(rec.BaseAmount)
	if err != nil {
		return fmt.Errorf("engine: bad create record for %s: %w", id, err)
	}

	tok, err := e.book.CreateToken(id, ledger.Address(rec.Owner), maxSupply, rec.Mintable, curve.Params{
		InitialPrice: initialPrice,
		Steepness:    steepness,
		BaseAmount:   baseAmount,
	})
	if err != nil {
		return err
	}
	for _, op := range rec.Operators {
		tok.AddOperator(ledger.Address(op))
	}
	e.locks[id] = &tokenLock{version: -1}
	return nil
}

// Submit settles one trade. On success the receipt has already been
// appended to the token's stream and published to the live feed.
func (e *Engine) Submit(ctx context.Context, trade Trade) (*Receipt, error) {
	if !trade.Action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, trade.Action)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	lk, ok := e.locks[trade.Token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTokenNotFound, trade.Token)
	}
	lk.Lock()
	defer lk.Unlock()

	rcpt, err := e.settle(ctx, trade, e.clock().UTC(), lk)
	if err != nil {
		e.log.DebugContext(ctx, "trade rejected",
			"token", trade.Token, "action", trade.Action, "caller", trade.Caller, "kind", Kind(err))
		return nil, err
	}
	e.bus.Publish(rcpt)
	e.log.InfoContext(ctx, "trade settled",
		"token", rcpt.Token, "action", rcpt.Action, "caller", rcpt.Caller, "version", rcpt.Version)
	return rcpt, nil
}

// settle validates a trade, commits it to the store when lk is given,
// and only then applies it. Validation never mutates, and the apply
// closures run only steps that validation already cleared, so a failed
// append leaves ledger and pools untouched.
func (e *Engine) settle(ctx context.Context, trade Trade, at time.Time, lk *tokenLock) (*Receipt, error) {
	tok, err := e.book.Token(trade.Token)
	if err != nil {
		return nil, err
	}

	rcpt := &Receipt{
		Token:     trade.Token,
		Action:    trade.Action,
		Caller:    trade.Caller,
		Timestamp: at,
	}
	var apply func() error

	switch trade.Action {
	case ActionMint:
		apply, err = e.prepareMint(trade, tok, rcpt)
	case ActionBurn:
		apply, err = e.prepareBurn(trade, tok, rcpt)
	case ActionTransfer:
		apply, err = e.prepareTransfer(trade, tok, rcpt)
	case ActionBuy:
		apply, err = e.prepareBuy(trade, tok, rcpt)
	case ActionSell:
		apply, err = e.prepareSell(trade, tok, rcpt)
	case ActionAddPool:
		apply, err = e.prepareAddPool(trade, tok)
	case ActionRemovePool:
		apply, err = e.prepareRemovePool(trade, tok)
	case ActionActivatePool:
		apply, err = e.prepareSetPoolActive(trade, tok, true)
	case ActionDeactivatePool:
		apply, err = e.prepareSetPoolActive(trade, tok, false)
	case ActionDeposit:
		apply, err = e.prepareDeposit(trade, rcpt)
	case ActionWithdraw:
		apply, err = e.prepareWithdraw(trade, tok, rcpt)
	case ActionRequestSell:
		apply, err = e.prepareRequestSell(trade, tok, at, rcpt)
	case ActionSettleSell:
		apply, err = e.prepareSettleSell(trade, tok, rcpt)
	case ActionCancelSell:
		apply, err = e.prepareCancelSell(trade, tok, rcpt)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, trade.Action)
	}
	if err != nil {
		return nil, err
	}

	if lk != nil {
		ev, err := eventstore.NewEvent(string(trade.Token), string(trade.Action), newTradeRecord(trade))
		if err != nil {
			return nil, err
		}
		ev.Timestamp = at
		version, err := e.store.Append(ctx, string(trade.Token), lk.version, []*eventstore.Event{ev})
		if err != nil {
			return nil, err
		}
		lk.version = version
		rcpt.ID = ev.ID
		rcpt.Version = version
	}

	if err := apply(); err != nil {
		// Unreachable when validation and apply agree; surfaced loudly
		// because it means the stream and the state have diverged.
		e.log.ErrorContext(ctx, "apply failed after commit",
			"token", trade.Token, "action", trade.Action, "err", err)
		return nil, fmt.Errorf("engine: apply after commit: %w", err)
	}
	rcpt.TotalSupply = new(uint256.Int).Set(tok.TotalSupply)
	return rcpt, nil
}

func validAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ledger.ErrInvalidAmount
	}
	return nil
}

// holderOf resolves the balance owner a trade acts on, defaulting to
// the caller.
func holderOf(trade Trade) ledger.Address {
	if trade.From != "" {
		return trade.From
	}
	return trade.Caller
}

func (e *Engine) prepareMint(trade Trade, tok *ledger.Token, rcpt *Receipt) (func() error, error) {
	to := trade.To
	if to == "" {
		to = trade.Caller
	}
	if err := access.Authorize(access.ActionMint, trade.Caller, tok, to); err != nil {
		return nil, err
	}
	if err := validAmount(trade.Amount); err != nil {
		return nil, err
	}
	if !tok.Mintable {
		return nil, ledger.ErrMintingDisabled
	}
	if next := new(uint256.Int).Add(tok.TotalSupply, trade.Amount); next.Cmp(tok.MaxSupply) > 0 {
		return nil, ledger.ErrExceedsMaxSupply
	}

	rcpt.TokenAmount = new(uint256.Int).Set(trade.Amount)
	return func() error {
		return e.book.Mint(trade.Token, to, trade.Amount)
	}, nil
}

func (e *Engine) prepareBurn(trade Trade, tok *ledger.Token, rcpt *Receipt) (func() error, error) {
	holder := holderOf(trade)
	if err := access.Authorize(access.ActionBurn, trade.Caller, tok, holder); err != nil {
		return nil, err
	}
	if err := validAmount(trade.Amount); err != nil {
		return nil, err
	}
	if tok.Balance(holder).Cmp(trade.Amount) < 0 {
		return nil, ledger.ErrInsufficientBalance
	}

	rcpt.TokenAmount = new(uint256.Int).Set(trade.Amount)
	return func() error {
		return e.book.Burn(trade.Token, holder, trade.Amount)
	}, nil
}

func (e *Engine) prepareTransfer(trade Trade, tok *ledger.Token, rcpt *Receipt) (func() error, error) {
	from := holderOf(trade)
	if trade.To == "" {
		return nil, ErrInvalidRecipient
	}
	if err := access.Authorize(access.ActionTransfer, trade.Caller, tok, from); err != nil {
		return nil, err
	}
	if err := validAmount(trade.Amount); err != nil {
		return nil, err
	}
	if tok.Balance(from).Cmp(trade.Amount) < 0 {
		return nil, ledger.ErrInsufficientBalance
	}

	rcpt.TokenAmount = new(uint256.Int).Set(trade.Amount)
	return func() error {
		return e.book.Transfer(trade.Token, from, trade.To, trade.Amount)
	}, nil
}

// prepareBuy quotes a primary-market buy. Amount is the TON tendered;
// the buyer receives the largest unit count the payment covers and the
// pool is credited with the exact curve cost of those units.
func (e *Engine) prepareBuy(trade Trade, tok *ledger.Token, rcpt *Receipt) (func() error, error) {
	buyer := trade.To
	if buyer == "" {
		buyer = trade.Caller
	}
	if err := validAmount(trade.Amount); err != nil {
		return nil, err
	}
	if err := e.pools.CheckTrade(trade.Token, nil); err != nil {
		return nil, err
	}
	units, err := curve.QuoteBuy(tok.Curve, tok.TotalSupply, tok.MaxSupply, trade.Amount)
	if err != nil {
		return nil, err
	}
	cost := curve.Cost(tok.Curve, tok.TotalSupply, units)

	rcpt.TokenAmount = units
	rcpt.TonAmount = cost
	return func() error {
		if err := e.book.Issue(trade.Token, buyer, units); err != nil {
			return err
		}
		return e.pools.Deposit(trade.Token, cost)
	}, nil
}

// prepareSell quotes and settles an immediate sell back to the curve.
func (e *Engine) prepareSell(trade Trade, tok *ledger.Token, rcpt *Receipt) (func() error, error) {
	holder := holderOf(trade)
	if err := access.Authorize(access.ActionSell, trade.Caller, tok, holder); err != nil {
		return nil, err
	}
	if err := validAmount(trade.Amount); err != nil {
		return nil, err
	}
	if tok.Balance(holder).Cmp(trade.Amount) < 0 {
		return nil, ledger.ErrInsufficientBalance
	}
	ton, err := curve.QuoteSell(tok.Curve, tok.TotalSupply, trade.Amount)
	if err != nil {
		return nil, err
	}
	if err := e.pools.CheckTrade(trade.Token, ton); err != nil {
		return nil, err
	}

	rcpt.TokenAmount = new(uint256.Int).Set(trade.Amount)
	rcpt.TonAmount = ton
	return func() error {
		if err := e.book.Burn(trade.Token, holder, trade.Amount); err != nil {
			return err
		}
		return e.pools.Withdraw(trade.Token, ton)
	}, nil
}

func (e *Engine) prepareAddPool(trade Trade, tok *ledger.Token) (func() error, error) {
	if err := access.Authorize(access.ActionAddPool, trade.Caller, tok, trade.Caller); err != nil {
		return nil, err
	}
	if _, _, err := e.pools.Balance(trade.Token); err == nil {
		return nil, fmt.Errorf("%w: %s", pool.ErrPoolAlreadyExists, trade.Token)
	}
	return func() error {
		_, err := e.pools.Add(trade.Token)
		return err
	}, nil
}

func (e *Engine) prepareRemovePool(trade Trade, tok *ledger.Token) (func() error, error) {
	if err := access.Authorize(access.ActionRemovePool, trade.Caller, tok, trade.Caller); err != nil {
		return nil, err
	}
	balance, _, err := e.pools.Balance(trade.Token)
	if err != nil {
		return nil, err
	}
	if !balance.IsZero() {
		return nil, fmt.Errorf("%w: %s holds %s", pool.ErrPoolMustBeEmpty, trade.Token, balance.Dec())
	}
	return func() error {
		return e.pools.Remove(trade.Token)
	}, nil
}

// prepareSetPoolActive flips the pool's trading gate. Pool
// administration is owner-only, same as adding the pool.
func (e *Engine) prepareSetPoolActive(trade Trade, tok *ledger.Token, active bool) (func() error, error) {
	if err := access.Authorize(access.ActionAddPool, trade.Caller, tok, trade.Caller); err != nil {
		return nil, err
	}
	if _, _, err := e.pools.Balance(trade.Token); err != nil {
		return nil, err
	}
	return func() error {
		return e.pools.SetActive(trade.Token, active)
	}, nil
}

func (e *Engine) prepareDeposit(trade Trade, rcpt *Receipt) (func() error, error) {
	if err := validAmount(trade.Amount); err != nil {
		return nil, err
	}
	if _, _, err := e.pools.Balance(trade.Token); err != nil {
		return nil, err
	}
	rcpt.TonAmount = new(uint256.Int).Set(trade.Amount)
	return func() error {
		return e.pools.Deposit(trade.Token, trade.Amount)
	}, nil
}

func (e *Engine) prepareWithdraw(trade Trade, tok *ledger.Token, rcpt *Receipt) (func() error, error) {
	if err := access.Authorize(access.ActionPoolWithdraw, trade.Caller, tok, trade.Caller); err != nil {
		return nil, err
	}
	if err := validAmount(trade.Amount); err != nil {
		return nil, err
	}
	balance, _, err := e.pools.Balance(trade.Token)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(trade.Amount) < 0 {
		return nil, pool.ErrInsufficientPoolBalance
	}
	rcpt.TonAmount = new(uint256.Int).Set(trade.Amount)
	return func() error {
		return e.pools.Withdraw(trade.Token, trade.Amount)
	}, nil
}

// prepareRequestSell parks a sell for deferred settlement. The request
// must be settleable right now; it is validated again at settlement
// because balances and pool liquidity move in between.
func (e *Engine) prepareRequestSell(trade Trade, tok *ledger.Token, at time.Time, rcpt *Receipt) (func() error, error) {
	holder := holderOf(trade)
	if err := access.Authorize(access.ActionSell, trade.Caller, tok, holder); err != nil {
		return nil, err
	}
	if err := validAmount(trade.Amount); err != nil {
		return nil, err
	}
	if err := e.pools.CheckTrade(trade.Token, nil); err != nil {
		return nil, err
	}
	if tok.Balance(holder).Cmp(trade.Amount) < 0 {
		return nil, ledger.ErrInsufficientBalance
	}
	if e.pools.Pending(trade.Token, holder) != nil {
		return nil, fmt.Errorf("%w: %s by %s", pool.ErrPendingSellAlreadyExists, trade.Token, holder)
	}

	rcpt.TokenAmount = new(uint256.Int).Set(trade.Amount)
	return func() error {
		_, err := e.pools.RequestSell(trade.Token, holder, trade.Amount, at)
		return err
	}, nil
}

// prepareSettleSell completes a pending sell at the quote current at
// settlement time, not at request time. A failed settlement leaves the
// request pending.
func (e *Engine) prepareSettleSell(trade Trade, tok *ledger.Token, rcpt *Receipt) (func() error, error) {
	requester := holderOf(trade)
	if err := access.Authorize(access.ActionSell, trade.Caller, tok, requester); err != nil {
		return nil, err
	}
	ps := e.pools.Pending(trade.Token, requester)
	if ps == nil {
		return nil, fmt.Errorf("%w: %s by %s", pool.ErrNoPendingSellRequest, trade.Token, requester)
	}
	if tok.Balance(requester).Cmp(ps.Amount) < 0 {
		return nil, ledger.ErrInsufficientBalance
	}
	ton, err := curve.QuoteSell(tok.Curve, tok.TotalSupply, ps.Amount)
	if err != nil {
		return nil, err
	}
	if err := e.pools.CheckTrade(trade.Token, ton); err != nil {
		return nil, err
	}

	rcpt.TokenAmount = new(uint256.Int).Set(ps.Amount)
	rcpt.TonAmount = ton
	return func() error {
		taken, err := e.pools.TakeSell(trade.Token, requester)
		if err != nil {
			return err
		}
		if err := e.book.Burn(trade.Token, requester, taken.Amount); err != nil {
			e.pools.Restore(taken)
			return err
		}
		return e.pools.Withdraw(trade.Token, ton)
	}, nil
}

func (e *Engine) prepareCancelSell(trade Trade, tok *ledger.Token, rcpt *Receipt) (func() error, error) {
	requester := holderOf(trade)
	if err := access.Authorize(access.ActionSell, trade.Caller, tok, requester); err != nil {
		return nil, err
	}
	ps := e.pools.Pending(trade.Token, requester)
	if ps == nil {
		return nil, fmt.Errorf("%w: %s by %s", pool.ErrNoPendingSellRequest, trade.Token, requester)
	}

	rcpt.TokenAmount = new(uint256.Int).Set(ps.Amount)
	return func() error {
		_, err := e.pools.TakeSell(trade.Token, requester)
		return err
	}, nil
}

// TokenState is a read-model snapshot of one token.
type TokenState struct {
	ID          ledger.TokenID `json:"id"`
	Owner       ledger.Address `json:"owner"`
	TotalSupply *uint256.Int   `json:"totalSupply"`
	MaxSupply   *uint256.Int   `json:"maxSupply"`
	Mintable    bool           `json:"mintable"`
	Price       *uint256.Int   `json:"price"`
	PoolBalance *uint256.Int   `json:"poolBalance,omitempty"`
	PoolActive  bool           `json:"poolActive"`
	Holders     int            `json:"holders"`
	Version     int            `json:"version"`
}

// WalletState is a read-model snapshot of one holder's position.
type WalletState struct {
	Token   ledger.TokenID `json:"token"`
	Holder  ledger.Address `json:"holder"`
	Balance *uint256.Int   `json:"balance"`
}

// TokenState snapshots a token under its settlement lock.
func (e *Engine) TokenState(id ledger.TokenID) (*TokenState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lk, ok := e.locks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTokenNotFound, id)
	}
	lk.Lock()
	defer lk.Unlock()

	tok, err := e.book.Token(id)
	if err != nil {
		return nil, err
	}
	st := &TokenState{
		ID:          tok.ID,
		Owner:       tok.Owner,
		TotalSupply: new(uint256.Int).Set(tok.TotalSupply),
		MaxSupply:   new(uint256.Int).Set(tok.MaxSupply),
		Mintable:    tok.Mintable,
		Price:       curve.MarginalPrice(tok.Curve, tok.TotalSupply),
		Holders:     tok.Holders(),
		Version:     lk.version,
	}
	if balance, active, err := e.pools.Balance(id); err == nil {
		st.PoolBalance = balance
		st.PoolActive = active
	}
	return st, nil
}

// WalletState snapshots a holder's balance. Unknown holders report a
// zero balance, not an error.
func (e *Engine) WalletState(id ledger.TokenID, holder ledger.Address) (*WalletState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lk, ok := e.locks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTokenNotFound, id)
	}
	lk.Lock()
	defer lk.Unlock()

	balance, err := e.book.BalanceOf(id, holder)
	if err != nil {
		return nil, err
	}
	return &WalletState{Token: id, Holder: holder, Balance: balance}, nil
}

// Tokens lists all token ids, sorted.
func (e *Engine) Tokens() []ledger.TokenID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.book.Tokens()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// QuoteBuy previews a buy without settling it: the units tonAmount
// purchases at the current supply and their exact curve cost.
func (e *Engine) QuoteBuy(id ledger.TokenID, tonAmount *uint256.Int) (units, cost *uint256.Int, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lk, ok := e.locks[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ledger.ErrTokenNotFound, id)
	}
	lk.Lock()
	defer lk.Unlock()

	tok, err := e.book.Token(id)
	if err != nil {
		return nil, nil, err
	}
	if err := validAmount(tonAmount); err != nil {
		return nil, nil, err
	}
	units, err = curve.QuoteBuy(tok.Curve, tok.TotalSupply, tok.MaxSupply, tonAmount)
	if err != nil {
		return nil, nil, err
	}
	return units, curve.Cost(tok.Curve, tok.TotalSupply, units), nil
}

// QuoteSell previews the proceeds of selling tokenAmount at the
// current supply.
func (e *Engine) QuoteSell(id ledger.TokenID, tokenAmount *uint256.Int) (*uint256.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lk, ok := e.locks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTokenNotFound, id)
	}
	lk.Lock()
	defer lk.Unlock()

	tok, err := e.book.Token(id)
	if err != nil {
		return nil, err
	}
	if err := validAmount(tokenAmount); err != nil {
		return nil, err
	}
	return curve.QuoteSell(tok.Curve, tok.TotalSupply, tokenAmount)
}

// History returns a token's committed events from the store.
func (e *Engine) History(ctx context.Context, id ledger.TokenID) ([]*eventstore.Event, error) {
	e.mu.RLock()
	_, ok := e.locks[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrTokenNotFound, id)
	}
	return e.store.Read(ctx, string(id), 0)
}

// Replay rebuilds ledger and pool state from the event store. Called
// once at startup, before the engine accepts traffic.
func (e *Engine) Replay(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	streams, err := e.store.Streams(ctx)
	if err != nil {
		return err
	}
	for _, stream := range streams {
		events, err := e.store.Read(ctx, stream, 0)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			continue
		}
		id := ledger.TokenID(stream)
		if events[0].Type != eventCreateToken {
			return fmt.Errorf("engine: stream %s does not start with a create event", stream)
		}
		var rec createRecord
		if err := events[0].Decode(&rec); err != nil {
			return fmt.Errorf("engine: stream %s: %w", stream, err)
		}
		if err := e.registerToken(id, rec); err != nil {
			return err
		}

		for _, ev := range events[1:] {
			var tr tradeRecord
			if err := ev.Decode(&tr); err != nil {
				return fmt.Errorf("engine: stream %s version %d: %w", stream, ev.Version, err)
			}
			trade, err := tr.trade(id)
			if err != nil {
				return fmt.Errorf("engine: stream %s version %d: %w", stream, ev.Version, err)
			}
			if _, err := e.settle(ctx, trade, ev.Timestamp, nil); err != nil {
				return fmt.Errorf("engine: replay %s version %d: %w", stream, ev.Version, err)
			}
		}
		e.locks[id].version = events[len(events)-1].Version

		if err := e.book.CheckConservation(id); err != nil {
			return err
		}
		e.log.InfoContext(ctx, "stream replayed", "token", id, "events", len(events))
	}
	return nil
}
