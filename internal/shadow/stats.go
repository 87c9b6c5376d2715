package shadow

import (
	"context"
	"math"
	"time"

	"quorum/internal/store"
	storemodel "quorum/internal/store/model"
)

// OffensiveStats scores the executed side of the book over closed trades.
type OffensiveStats struct {
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	Sharpe       float64 `json:"sharpe"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalPnL     float64 `json:"total_pnl"`
}

// ShieldReport scores the vetoed side: what the gate saved (or cost) by
// saying no. A veto is a defensive win iff the hypothetical pnl is negative.
type ShieldReport struct {
	TotalVetoes      int                `json:"total_vetoes"`
	CorrectVetoes    int                `json:"correct_vetoes"`
	DefensiveWinRate float64            `json:"defensive_win_rate"`
	TotalAvoidedLoss float64            `json:"total_avoided_loss"`
	MissedProfit     float64            `json:"missed_profit"`
	VetoesByCode     map[string]int     `json:"vetoes_by_code,omitempty"`
	AvoidedByCode    map[string]float64 `json:"avoided_by_code,omitempty"`
}

// Report is the full shadow view for a period.
type Report struct {
	Period    string         `json:"period"`
	Offensive OffensiveStats `json:"offensive_stats"`
	Shield    ShieldReport   `json:"shield_report"`
	Tracking  int            `json:"tracking"`
}

// BuildReport assembles offensive and defensive views over the period ending
// now. Only CLOSED trades enter the stats; TRACKING rows are counted.
func (t *Tracker) BuildReport(ctx context.Context, period time.Duration) (*Report, error) {
	q := store.ShadowQuery{Status: storemodel.ShadowStatusClosed}
	if period > 0 {
		q.Since = t.nowFn().Add(-period)
	}
	closed, err := t.store.ListShadowTrades(ctx, q)
	if err != nil {
		return nil, err
	}
	tracking, err := t.store.ListShadowTrades(ctx, store.ShadowQuery{Status: storemodel.ShadowStatusTracking})
	if err != nil {
		return nil, err
	}

	executed := make([]store.ShadowTradeRecord, 0, len(closed))
	vetoed := make([]store.ShadowTradeRecord, 0, len(closed))
	for _, rec := range closed {
		if rec.Vetoed() {
			vetoed = append(vetoed, rec)
		} else {
			executed = append(executed, rec)
		}
	}
	return &Report{
		Period:    period.String(),
		Offensive: Offensive(executed),
		Shield:    Shield(vetoed),
		Tracking:  len(tracking),
	}, nil
}

// Offensive computes the trailing-window performance of executed decisions.
func Offensive(trades []store.ShadowTradeRecord) OffensiveStats {
	s := OffensiveStats{Trades: len(trades)}
	if len(trades) == 0 {
		return s
	}
	grossWin, grossLoss := 0.0, 0.0
	returns := make([]float64, 0, len(trades))
	equity, peak, maxDD := 0.0, 0.0, 0.0
	for _, tr := range trades {
		pnl := tr.VirtualPnL
		s.TotalPnL += pnl
		returns = append(returns, tr.VirtualPnLPct)
		if pnl > 0 {
			s.Wins++
			grossWin += pnl
		} else if pnl < 0 {
			s.Losses++
			grossLoss += -pnl
		}
		equity += pnl
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}
	}
	s.WinRate = float64(s.Wins) / float64(len(trades))
	if s.Wins > 0 {
		s.AvgWin = grossWin / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = grossLoss / float64(s.Losses)
	}
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		s.ProfitFactor = math.Inf(1)
	}
	s.Sharpe = sharpeRatio(returns)
	s.MaxDrawdown = maxDD
	return s
}

// Shield computes the defensive ledger. avoided_loss = max(0, −pnl) per veto.
func Shield(vetoes []store.ShadowTradeRecord) ShieldReport {
	r := ShieldReport{
		TotalVetoes:   len(vetoes),
		VetoesByCode:  map[string]int{},
		AvoidedByCode: map[string]float64{},
	}
	if len(vetoes) == 0 {
		return r
	}
	for _, v := range vetoes {
		avoided := math.Max(0, -v.VirtualPnL)
		if v.VirtualPnL < 0 {
			r.CorrectVetoes++
			r.TotalAvoidedLoss += avoided
		} else {
			r.MissedProfit += v.VirtualPnL
		}
		code := v.RejectionCode
		if code == "" {
			code = "unknown"
		}
		r.VetoesByCode[code]++
		r.AvoidedByCode[code] += avoided
	}
	r.DefensiveWinRate = float64(r.CorrectVetoes) / float64(r.TotalVetoes)
	return r
}

// AvoidedLoss is the per-trade defensive score.
func AvoidedLoss(hypotheticalPnL float64) float64 {
	return math.Max(0, -hypotheticalPnL)
}

// sharpeRatio is mean over stddev of per-trade percentage returns. Not
// annualized; the report compares panels, not funds.
func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}
