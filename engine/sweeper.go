package engine

import (
	"context"
	"errors"
	"time"

	"github.com/tonpad-xyz/go-tonpad/pool"
)

// Run drives the engine's background sweep until ctx is cancelled:
// every interval, pending sell requests older than ttl are cancelled
// through the normal trade path, so each expiry is recorded and fed to
// subscribers like any other transition.
func (e *Engine) Run(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.InfoContext(ctx, "sweeper started", "interval", interval, "ttl", ttl)
	for {
		select {
		case <-ctx.Done():
			e.log.InfoContext(ctx, "sweeper stopped")
			return
		case <-ticker.C:
			e.sweep(ctx, ttl)
		}
	}
}

// sweep cancels every expired pending sell. Losing a race with a
// concurrent settle or cancel is fine; the request is simply gone.
func (e *Engine) sweep(ctx context.Context, ttl time.Duration) {
	for _, ps := range e.pools.Expired(ttl) {
		_, err := e.Submit(ctx, Trade{
			Token:  ps.Token,
			Caller: ps.Requester,
			Action: ActionCancelSell,
		})
		switch {
		case err == nil:
			e.log.InfoContext(ctx, "expired sell request cancelled",
				"token", ps.Token, "requester", ps.Requester, "amount", ps.Amount.Dec())
		case errors.Is(err, pool.ErrNoPendingSellRequest):
			// Settled or cancelled after we listed it.
		default:
			e.log.WarnContext(ctx, "sweep cancel failed",
				"token", ps.Token, "requester", ps.Requester, "err", err)
		}
	}
}
