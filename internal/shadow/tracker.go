package shadow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quorum/internal/decision"
	"quorum/internal/logger"
	"quorum/internal/market"
	"quorum/internal/store"
	storemodel "quorum/internal/store/model"

	"github.com/google/uuid"
)

// OpenRequest describes the counterfactual position to start tracking.
// A non-empty RejectionReason marks the decision as vetoed.
type OpenRequest struct {
	Instrument      string
	Action          decision.Action
	EntryPrice      float64
	Quantity        float64
	RejectionCode   string
	RejectionReason string
}

// Tracker opens one shadow trade per decision cycle and scores it later.
// Refresh passes may run concurrently with new cycles and with each other;
// the store's conditional updates make the CLOSED transition write-once.
type Tracker struct {
	store  store.Store
	source market.Source
	window time.Duration
	nowFn  func() time.Time
}

func NewTracker(st store.Store, source market.Source, window time.Duration) *Tracker {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Tracker{store: st, source: source, window: window, nowFn: time.Now}
}

// Open records the counterfactual entry. Vetoed proposals track the size the
// gate refused, so the shield report prices the decision that was not taken.
func (t *Tracker) Open(ctx context.Context, req OpenRequest) (*store.ShadowTradeRecord, error) {
	if req.EntryPrice <= 0 {
		return nil, fmt.Errorf("shadow open %s: entry price required", req.Instrument)
	}
	rec := &store.ShadowTradeRecord{
		ID:             uuid.NewString(),
		Instrument:     req.Instrument,
		Action:         req.Action,
		EntryPrice:     req.EntryPrice,
		Quantity:       req.Quantity,
		RejectionCode:  req.RejectionCode,
		TrackingWindow: t.window,
		Status:         storemodel.ShadowStatusTracking,
		ExitPrice:      req.EntryPrice,
		CreatedAt:      t.nowFn(),
	}
	if reason := strings.TrimSpace(req.RejectionReason); reason != "" {
		rec.RejectionReason = &reason
	}
	if err := t.store.CreateShadowTrade(ctx, rec); err != nil {
		return nil, fmt.Errorf("shadow open %s: %w", req.Instrument, err)
	}
	kind := "executed"
	if rec.Vetoed() {
		kind = "vetoed"
	}
	logger.Infof("shadow trade opened id=%s instrument=%s action=%s kind=%s entry=%.4f qty=%.2f window=%s",
		rec.ID, rec.Instrument, rec.Action, kind, rec.EntryPrice, rec.Quantity, t.window)
	return rec, nil
}

// RefreshAll marks every TRACKING trade to market and closes those whose
// window has elapsed. Idempotent: re-running it with the same prices changes
// nothing, and trades another pass already closed are skipped as no-ops.
func (t *Tracker) RefreshAll(ctx context.Context) error {
	open, err := t.store.ListShadowTrades(ctx, store.ShadowQuery{Status: storemodel.ShadowStatusTracking})
	if err != nil {
		return fmt.Errorf("shadow refresh: list tracking: %w", err)
	}
	now := t.nowFn()
	var firstErr error
	for i := range open {
		if err := t.refreshOne(ctx, &open[i], now); err != nil {
			logger.Warnf("shadow refresh id=%s: %v", open[i].ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (t *Tracker) refreshOne(ctx context.Context, rec *store.ShadowTradeRecord, now time.Time) error {
	price, err := t.source.CurrentPrice(ctx, rec.Instrument)
	if err != nil {
		return err
	}
	pnl, pnlPct := VirtualPnL(rec.Action, rec.EntryPrice, price, rec.Quantity)

	if now.Sub(rec.CreatedAt) >= rec.TrackingWindow {
		closed, err := t.store.CloseShadowTrade(ctx, rec.ID, price, pnl, pnlPct, now)
		if err != nil {
			return err
		}
		if !closed {
			logger.Debugf("shadow close id=%s: already CLOSED, skipping", rec.ID)
			return nil
		}
		logger.Infof("shadow trade closed id=%s instrument=%s pnl=%.2f (%.2f%%)", rec.ID, rec.Instrument, pnl, pnlPct)
		return nil
	}

	updated, err := t.store.UpdateShadowTracking(ctx, rec.ID, price, pnl, pnlPct, now)
	if err != nil {
		return err
	}
	if !updated {
		// Lost the race against a concurrent closer; the row is terminal now.
		logger.Debugf("shadow refresh id=%s: row already CLOSED, no-op", rec.ID)
	}
	return nil
}

// CloseNow force-closes one trade at the current market price. Closing an
// already-CLOSED trade is a logged no-op, not an error.
func (t *Tracker) CloseNow(ctx context.Context, id string) (*store.ShadowTradeRecord, error) {
	rec, err := t.store.GetShadowTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("shadow close: trade %s not found", id)
	}
	if rec.Status == storemodel.ShadowStatusClosed {
		logger.Debugf("shadow close id=%s: already CLOSED, no-op", id)
		return rec, nil
	}
	price, err := t.source.CurrentPrice(ctx, rec.Instrument)
	if err != nil {
		return nil, err
	}
	pnl, pnlPct := VirtualPnL(rec.Action, rec.EntryPrice, price, rec.Quantity)
	closed, err := t.store.CloseShadowTrade(ctx, id, price, pnl, pnlPct, t.nowFn())
	if err != nil {
		return nil, err
	}
	if !closed {
		logger.Debugf("shadow close id=%s: lost race to concurrent closer, no-op", id)
	}
	return t.store.GetShadowTrade(ctx, id)
}

// VirtualPnL prices the counterfactual. Long-side actions profit when price
// rises, short/exit-side when it falls; HOLD has no direction and scores 0.
func VirtualPnL(action decision.Action, entry, exit, qty float64) (pnl, pnlPct float64) {
	dir := float64(action.Direction())
	if dir == 0 || entry <= 0 || qty <= 0 {
		return 0, 0
	}
	pnl = (exit - entry) * dir * qty
	pnlPct = (exit - entry) * dir / entry * 100
	return pnl, pnlPct
}
