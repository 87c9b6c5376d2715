package provider

import (
	"context"
	"fmt"

	"quorum/internal/decision"
	"quorum/internal/market"

	talib "github.com/markcheno/go-talib"
)

// momentumProvider votes on RSI extremes: oversold leans BUY, overbought
// leans SELL, anything in between is a low-conviction HOLD.
type momentumProvider struct {
	id         string
	weight     float64
	period     int
	oversold   float64
	overbought float64
}

func newMomentumProvider(id string, weight float64, params map[string]float64) *momentumProvider {
	return &momentumProvider{
		id:         id,
		weight:     weight,
		period:     int(paramOr(params, "period", 14)),
		oversold:   paramOr(params, "oversold", 30),
		overbought: paramOr(params, "overbought", 70),
	}
}

func (p *momentumProvider) ID() string      { return p.id }
func (p *momentumProvider) Weight() float64 { return p.weight }

func (p *momentumProvider) Analyze(_ context.Context, snap *Snapshot) (decision.Vote, error) {
	if snap == nil || len(snap.Candles) < p.period+5 {
		return decision.Vote{}, fmt.Errorf("momentum: need at least %d candles, have %d", p.period+5, candleCount(snap))
	}
	rsi := talib.Rsi(market.Closes(snap.Candles), p.period)
	last := rsi[len(rsi)-1]

	switch {
	case last <= p.oversold:
		// Depth below the band drives conviction.
		conf := clampConf(0.5 + (p.oversold-last)/p.oversold)
		return decision.Vote{
			Action:     decision.ActionBuy,
			Confidence: conf,
			Reasoning:  fmt.Sprintf("RSI%d at %.1f, below oversold band %.0f", p.period, last, p.oversold),
		}, nil
	case last >= p.overbought:
		conf := clampConf(0.5 + (last-p.overbought)/(100-p.overbought))
		return decision.Vote{
			Action:     decision.ActionSell,
			Confidence: conf,
			Reasoning:  fmt.Sprintf("RSI%d at %.1f, above overbought band %.0f", p.period, last, p.overbought),
		}, nil
	default:
		return decision.Vote{
			Action:     decision.ActionHold,
			Confidence: 0.3,
			Reasoning:  fmt.Sprintf("RSI%d at %.1f, inside neutral band", p.period, last),
		}, nil
	}
}

func clampConf(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
