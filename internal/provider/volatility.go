package provider

import (
	"context"
	"fmt"

	"quorum/internal/decision"
	"quorum/internal/market"

	talib "github.com/markcheno/go-talib"
)

// volatilityProvider is the defensive seat on the panel: when the ATR/price
// ratio runs hot it votes REDUCE, otherwise it holds with low conviction. It
// never votes for entries.
type volatilityProvider struct {
	id      string
	weight  float64
	period  int
	elevate float64
	extreme float64
}

func newVolatilityProvider(id string, weight float64, params map[string]float64) *volatilityProvider {
	return &volatilityProvider{
		id:      id,
		weight:  weight,
		period:  int(paramOr(params, "period", 14)),
		elevate: paramOr(params, "elevated", 0.03),
		extreme: paramOr(params, "extreme", 0.06),
	}
}

func (p *volatilityProvider) ID() string      { return p.id }
func (p *volatilityProvider) Weight() float64 { return p.weight }

func (p *volatilityProvider) Analyze(_ context.Context, snap *Snapshot) (decision.Vote, error) {
	if snap == nil || len(snap.Candles) < p.period+5 {
		return decision.Vote{}, fmt.Errorf("volatility: need at least %d candles, have %d", p.period+5, candleCount(snap))
	}
	ratio, err := ATRRatio(snap.Candles, p.period)
	if err != nil {
		return decision.Vote{}, err
	}
	meta := map[string]string{"atr_ratio": fmt.Sprintf("%.4f", ratio)}

	switch {
	case ratio >= p.extreme:
		return decision.Vote{
			Action:     decision.ActionReduce,
			Confidence: 0.9,
			Reasoning:  fmt.Sprintf("ATR/price %.2f%% at extreme level, de-risk", ratio*100),
			Metadata:   meta,
		}, nil
	case ratio >= p.elevate:
		return decision.Vote{
			Action:     decision.ActionReduce,
			Confidence: clampConf((ratio - p.elevate) / (p.extreme - p.elevate) * 0.6),
			Reasoning:  fmt.Sprintf("ATR/price %.2f%% elevated", ratio*100),
			Metadata:   meta,
		}, nil
	default:
		return decision.Vote{
			Action:     decision.ActionHold,
			Confidence: 0.2,
			Reasoning:  fmt.Sprintf("ATR/price %.2f%% in normal range", ratio*100),
			Metadata:   meta,
		}, nil
	}
}

// ATRRatio returns ATR(period) over the latest close. The execution router
// reuses it as its volatility proxy, so routing and the defensive vote read
// the same number.
func ATRRatio(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		period = 14
	}
	if len(candles) < period+2 {
		return 0, fmt.Errorf("atr: need at least %d candles, have %d", period+2, len(candles))
	}
	atr := talib.Atr(market.Highs(candles), market.Lows(candles), market.Closes(candles), period)
	last := len(candles) - 1
	if candles[last].Close <= 0 {
		return 0, fmt.Errorf("atr: non-positive close")
	}
	return atr[last] / candles[last].Close, nil
}
