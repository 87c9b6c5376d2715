package shadow

import (
	"context"
	"testing"
	"time"

	"quorum/internal/decision"
	"quorum/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedTrade(pnl, pnlPct float64, rejection string) store.ShadowTradeRecord {
	rec := store.ShadowTradeRecord{
		Instrument:    "BTCUSDT",
		Action:        decision.ActionBuy,
		EntryPrice:    100,
		Quantity:      10,
		VirtualPnL:    pnl,
		VirtualPnLPct: pnlPct,
		Status:        "CLOSED",
	}
	if rejection != "" {
		rec.RejectionReason = &rejection
		rec.RejectionCode = "daily_loss_limit"
	}
	return rec
}

func TestAvoidedLoss(t *testing.T) {
	assert.Equal(t, 500.0, AvoidedLoss(-500))
	assert.Equal(t, 0.0, AvoidedLoss(300))
	assert.Equal(t, 0.0, AvoidedLoss(0))
}

func TestShieldReport(t *testing.T) {
	vetoes := []store.ShadowTradeRecord{
		closedTrade(-500, -5, "daily loss exceeds safety limit"),
		closedTrade(300, 3, "order notional exceeds limit"),
		closedTrade(-200, -2, "spread too wide"),
	}
	r := Shield(vetoes)
	assert.Equal(t, 3, r.TotalVetoes)
	assert.Equal(t, 2, r.CorrectVetoes)
	assert.InDelta(t, 2.0/3.0, r.DefensiveWinRate, 1e-9)
	assert.InDelta(t, 700.0, r.TotalAvoidedLoss, 1e-9)
	assert.InDelta(t, 300.0, r.MissedProfit, 1e-9)
	assert.Equal(t, 3, r.VetoesByCode["daily_loss_limit"])
}

func TestShieldEmpty(t *testing.T) {
	r := Shield(nil)
	assert.Zero(t, r.TotalVetoes)
	assert.Zero(t, r.DefensiveWinRate)
}

func TestOffensiveStats(t *testing.T) {
	trades := []store.ShadowTradeRecord{
		closedTrade(100, 1.0, ""),
		closedTrade(-50, -0.5, ""),
		closedTrade(200, 2.0, ""),
		closedTrade(-100, -1.0, ""),
	}
	s := Offensive(trades)
	assert.Equal(t, 4, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.InDelta(t, 0.5, s.WinRate, 1e-9)
	assert.InDelta(t, 150.0, s.AvgWin, 1e-9)
	assert.InDelta(t, 75.0, s.AvgLoss, 1e-9)
	assert.InDelta(t, 2.0, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 150.0, s.TotalPnL, 1e-9)
	// Equity path: 100, 50, 250, 150 → worst drop from a peak is 100.
	assert.InDelta(t, 100.0, s.MaxDrawdown, 1e-9)
	assert.NotZero(t, s.Sharpe)
}

func TestOffensiveEmpty(t *testing.T) {
	s := Offensive(nil)
	assert.Zero(t, s.Trades)
	assert.Zero(t, s.WinRate)
}

func TestBuildReportSplitsSides(t *testing.T) {
	tr, _, src := newTestTracker(time.Hour)
	ctx := context.Background()

	a, err := tr.Open(ctx, OpenRequest{Instrument: "BTCUSDT", Action: decision.ActionBuy, EntryPrice: 100, Quantity: 10})
	require.NoError(t, err)
	b, err := tr.Open(ctx, OpenRequest{
		Instrument: "BTCUSDT", Action: decision.ActionBuy, EntryPrice: 100, Quantity: 10,
		RejectionCode: "position_size_limit", RejectionReason: "position size exceeds max",
	})
	require.NoError(t, err)
	_, err = tr.Open(ctx, OpenRequest{Instrument: "ETHUSDT", Action: decision.ActionBuy, EntryPrice: 50, Quantity: 1})
	require.NoError(t, err)

	src.set(90) // both BTC trades lose 100
	_, err = tr.CloseNow(ctx, a.ID)
	require.NoError(t, err)
	_, err = tr.CloseNow(ctx, b.ID)
	require.NoError(t, err)

	rep, err := tr.BuildReport(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Offensive.Trades)
	assert.Equal(t, 1, rep.Shield.TotalVetoes)
	assert.Equal(t, 1, rep.Shield.CorrectVetoes)
	assert.InDelta(t, 100.0, rep.Shield.TotalAvoidedLoss, 1e-9)
	assert.Equal(t, 1, rep.Tracking)
}
