package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
)

// BinanceSource reads spot prices, order-book top and klines from Binance.
// Public market endpoints only, so empty credentials are fine.
type BinanceSource struct {
	client *binance.Client
}

func NewBinanceSource(apiKey, secretKey string) *BinanceSource {
	return &BinanceSource{client: binance.NewClient(apiKey, secretKey)}
}

var _ Source = (*BinanceSource)(nil)

func (s *BinanceSource) CurrentPrice(ctx context.Context, instrument string) (float64, error) {
	prices, err := s.client.NewListPricesService().Symbol(instrument).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance price %s: %w", instrument, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("binance price %s: empty response", instrument)
	}
	p, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance price %s: parse %q: %w", instrument, prices[0].Price, err)
	}
	return p, nil
}

func (s *BinanceSource) Microstructure(ctx context.Context, instrument string) (*Microstructure, error) {
	depth, err := s.client.NewDepthService().Symbol(instrument).Limit(5).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance depth %s: %w", instrument, err)
	}
	if len(depth.Bids) == 0 || len(depth.Asks) == 0 {
		return nil, fmt.Errorf("binance depth %s: empty book", instrument)
	}
	bid, err := strconv.ParseFloat(depth.Bids[0].Price, 64)
	if err != nil {
		return nil, fmt.Errorf("binance depth %s: parse bid: %w", instrument, err)
	}
	ask, err := strconv.ParseFloat(depth.Asks[0].Price, 64)
	if err != nil {
		return nil, fmt.Errorf("binance depth %s: parse ask: %w", instrument, err)
	}

	// Quote-asset turnover over the last five 1m bars approximates the 5m
	// traded volume the gate's liquidity floor is expressed in.
	klines, err := s.client.NewKlinesService().Symbol(instrument).Interval("1m").Limit(5).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance 1m klines %s: %w", instrument, err)
	}
	vol := 0.0
	for _, k := range klines {
		v, err := strconv.ParseFloat(k.QuoteAssetVolume, 64)
		if err != nil {
			continue
		}
		vol += v
	}
	return &Microstructure{Volume5m: vol, Bid: bid, Ask: ask}, nil
}

func (s *BinanceSource) Klines(ctx context.Context, instrument, interval string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 200
	}
	klines, err := s.client.NewKlinesService().Symbol(instrument).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", instrument, interval, err)
	}
	out := make([]Candle, 0, len(klines))
	for _, k := range klines {
		c := Candle{OpenTime: time.UnixMilli(k.OpenTime)}
		var perr error
		if c.Open, perr = strconv.ParseFloat(k.Open, 64); perr != nil {
			continue
		}
		if c.High, perr = strconv.ParseFloat(k.High, 64); perr != nil {
			continue
		}
		if c.Low, perr = strconv.ParseFloat(k.Low, 64); perr != nil {
			continue
		}
		if c.Close, perr = strconv.ParseFloat(k.Close, 64); perr != nil {
			continue
		}
		if c.Volume, perr = strconv.ParseFloat(k.Volume, 64); perr != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
