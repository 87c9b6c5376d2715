package provider

import (
	"context"
	"fmt"
	"math"

	"quorum/internal/decision"
	"quorum/internal/market"

	talib "github.com/markcheno/go-talib"
)

// trendProvider votes from an EMA cross confirmed by the MACD histogram.
type trendProvider struct {
	id     string
	weight float64
	fast   int
	slow   int
}

func newTrendProvider(id string, weight float64, params map[string]float64) *trendProvider {
	return &trendProvider{
		id:     id,
		weight: weight,
		fast:   int(paramOr(params, "fast", 12)),
		slow:   int(paramOr(params, "slow", 26)),
	}
}

func (p *trendProvider) ID() string      { return p.id }
func (p *trendProvider) Weight() float64 { return p.weight }

func (p *trendProvider) Analyze(_ context.Context, snap *Snapshot) (decision.Vote, error) {
	if snap == nil || len(snap.Candles) < p.slow+10 {
		return decision.Vote{}, fmt.Errorf("trend: need at least %d candles, have %d", p.slow+10, candleCount(snap))
	}
	closes := market.Closes(snap.Candles)
	fast := talib.Ema(closes, p.fast)
	slow := talib.Ema(closes, p.slow)
	_, _, hist := talib.Macd(closes, p.fast, p.slow, 9)

	last := len(closes) - 1
	sep := (fast[last] - slow[last]) / slow[last]
	histUp := hist[last] > 0 && hist[last] >= hist[last-1]
	histDown := hist[last] < 0 && hist[last] <= hist[last-1]

	// Confidence scales with EMA separation, saturating at 2%.
	conf := math.Min(math.Abs(sep)/0.02, 1)

	v := decision.Vote{Action: decision.ActionHold, Confidence: 0.3}
	switch {
	case sep > 0 && histUp:
		v = decision.Vote{
			Action:     decision.ActionBuy,
			Confidence: conf,
			Reasoning:  fmt.Sprintf("EMA%d above EMA%d by %.2f%% with rising MACD histogram", p.fast, p.slow, sep*100),
		}
	case sep < 0 && histDown:
		v = decision.Vote{
			Action:     decision.ActionSell,
			Confidence: conf,
			Reasoning:  fmt.Sprintf("EMA%d below EMA%d by %.2f%% with falling MACD histogram", p.fast, p.slow, -sep*100),
		}
	default:
		v.Reasoning = "EMA cross and MACD histogram disagree"
	}
	return v, nil
}

func candleCount(snap *Snapshot) int {
	if snap == nil {
		return 0
	}
	return len(snap.Candles)
}
