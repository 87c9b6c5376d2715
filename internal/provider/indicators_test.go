package provider

import (
	"context"
	"math"
	"testing"
	"time"

	"quorum/internal/decision"
	"quorum/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticCandles(n int, fn func(i int) float64) []market.Candle {
	out := make([]market.Candle, 0, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := fn(i)
		out = append(out, market.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     c * 0.999,
			High:     c * 1.004,
			Low:      c * 0.996,
			Close:    c,
			Volume:   1000,
		})
	}
	return out
}

func TestTrendProviderUptrend(t *testing.T) {
	p := newTrendProvider("trend", 0.4, nil)
	snap := &Snapshot{
		Instrument: "BTCUSDT",
		Candles:    syntheticCandles(120, func(i int) float64 { return 100 * math.Pow(1.01, float64(i)) }),
	}
	v, err := p.Analyze(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionBuy, v.Action)
	assert.Greater(t, v.Confidence, 0.5)
	assert.NotEmpty(t, v.Reasoning)
}

func TestTrendProviderDowntrend(t *testing.T) {
	p := newTrendProvider("trend", 0.4, nil)
	snap := &Snapshot{
		Candles: syntheticCandles(120, func(i int) float64 { return 100 * math.Pow(0.99, float64(i)) }),
	}
	v, err := p.Analyze(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSell, v.Action)
}

func TestTrendProviderInsufficientData(t *testing.T) {
	p := newTrendProvider("trend", 0.4, nil)
	_, err := p.Analyze(context.Background(), &Snapshot{Candles: syntheticCandles(10, func(i int) float64 { return 100 })})
	assert.Error(t, err)
}

func TestMomentumProviderOversold(t *testing.T) {
	p := newMomentumProvider("momentum", 0.3, nil)
	snap := &Snapshot{
		Candles: syntheticCandles(60, func(i int) float64 { return 200 - float64(i)*2 }),
	}
	v, err := p.Analyze(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionBuy, v.Action)
}

func TestMomentumProviderOverbought(t *testing.T) {
	p := newMomentumProvider("momentum", 0.3, nil)
	snap := &Snapshot{
		Candles: syntheticCandles(60, func(i int) float64 { return 100 + float64(i)*2 }),
	}
	v, err := p.Analyze(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionSell, v.Action)
}

func TestVolatilityProviderCalmMarket(t *testing.T) {
	p := newVolatilityProvider("vol", 0.3, nil)
	snap := &Snapshot{
		Candles: syntheticCandles(60, func(i int) float64 { return 100 }),
	}
	v, err := p.Analyze(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, decision.ActionHold, v.Action)
	assert.Contains(t, v.Metadata, "atr_ratio")
}

func TestVolatilityProviderNeverVotesEntry(t *testing.T) {
	p := newVolatilityProvider("vol", 0.3, nil)
	for _, fn := range []func(int) float64{
		func(i int) float64 { return 100 },
		func(i int) float64 { return 100 + 30*math.Sin(float64(i)) },
	} {
		v, err := p.Analyze(context.Background(), &Snapshot{Candles: syntheticCandles(80, fn)})
		require.NoError(t, err)
		assert.False(t, v.Action.IsEntry(), "volatility provider voted %s", v.Action)
	}
}

func TestATRRatioErrors(t *testing.T) {
	_, err := ATRRatio(nil, 14)
	assert.Error(t, err)
}
