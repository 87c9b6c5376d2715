package market

import (
	"context"
	"time"
)

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Microstructure is the optional short-horizon liquidity view the safety gate
// consumes. Sources that cannot provide it return (nil, nil).
type Microstructure struct {
	Volume5m float64 `json:"volume_5m"`
	Bid      float64 `json:"bid"`
	Ask      float64 `json:"ask"`
}

// SpreadPct returns the bid/ask spread relative to the mid price, in percent.
func (m Microstructure) SpreadPct() float64 {
	if m.Bid <= 0 || m.Ask <= 0 || m.Ask < m.Bid {
		return 0
	}
	mid := (m.Bid + m.Ask) / 2
	if mid <= 0 {
		return 0
	}
	return (m.Ask - m.Bid) / mid * 100
}

// Source is the market-data dependency of the decision core.
type Source interface {
	CurrentPrice(ctx context.Context, instrument string) (float64, error)
	Microstructure(ctx context.Context, instrument string) (*Microstructure, error)
	Klines(ctx context.Context, instrument, interval string, limit int) ([]Candle, error)
}

// Closes extracts the close series, oldest first, for indicator input.
func Closes(candles []Candle) []float64 {
	out := make([]float64, 0, len(candles))
	for _, c := range candles {
		out = append(out, c.Close)
	}
	return out
}

// Highs extracts the high series.
func Highs(candles []Candle) []float64 {
	out := make([]float64, 0, len(candles))
	for _, c := range candles {
		out = append(out, c.High)
	}
	return out
}

// Lows extracts the low series.
func Lows(candles []Candle) []float64 {
	out := make([]float64, 0, len(candles))
	for _, c := range candles {
		out = append(out, c.Low)
	}
	return out
}
