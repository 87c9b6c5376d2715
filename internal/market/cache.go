package market

import (
	"context"
	"sync"
	"time"
)

// CachedSource wraps a Source with a short TTL cache. Decision cycles hit the
// price several times (routing, sizing, shadow entry) within a second or two;
// one upstream call per window is enough.
type CachedSource struct {
	inner Source
	ttl   time.Duration

	mu     sync.RWMutex
	prices map[string]cachedPrice
	micro  map[string]cachedMicro
	nowFn  func() time.Time
}

type cachedPrice struct {
	price float64
	at    time.Time
}

type cachedMicro struct {
	micro Microstructure
	at    time.Time
}

func NewCachedSource(inner Source, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &CachedSource{
		inner:  inner,
		ttl:    ttl,
		prices: make(map[string]cachedPrice),
		micro:  make(map[string]cachedMicro),
		nowFn:  time.Now,
	}
}

var _ Source = (*CachedSource)(nil)

func (s *CachedSource) CurrentPrice(ctx context.Context, instrument string) (float64, error) {
	now := s.nowFn()
	s.mu.RLock()
	hit, ok := s.prices[instrument]
	s.mu.RUnlock()
	if ok && now.Sub(hit.at) < s.ttl {
		return hit.price, nil
	}
	price, err := s.inner.CurrentPrice(ctx, instrument)
	if err != nil {
		// Serve a stale hit over a hard failure so refresh passes degrade
		// instead of aborting.
		if ok {
			return hit.price, nil
		}
		return 0, err
	}
	s.mu.Lock()
	s.prices[instrument] = cachedPrice{price: price, at: now}
	s.mu.Unlock()
	return price, nil
}

func (s *CachedSource) Microstructure(ctx context.Context, instrument string) (*Microstructure, error) {
	now := s.nowFn()
	s.mu.RLock()
	hit, ok := s.micro[instrument]
	s.mu.RUnlock()
	if ok && now.Sub(hit.at) < s.ttl {
		m := hit.micro
		return &m, nil
	}
	micro, err := s.inner.Microstructure(ctx, instrument)
	if err != nil || micro == nil {
		return micro, err
	}
	s.mu.Lock()
	s.micro[instrument] = cachedMicro{micro: *micro, at: now}
	s.mu.Unlock()
	return micro, nil
}

// Klines pass through uncached; providers pull them once per cycle.
func (s *CachedSource) Klines(ctx context.Context, instrument, interval string, limit int) ([]Candle, error) {
	return s.inner.Klines(ctx, instrument, interval, limit)
}
