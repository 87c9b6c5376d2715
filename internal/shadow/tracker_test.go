package shadow

import (
	"context"
	"sync"
	"testing"
	"time"

	"quorum/internal/decision"
	"quorum/internal/market"
	"quorum/internal/store"
	storemodel "quorum/internal/store/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory store.Store with the same conditional-update
// semantics as the gorm implementation.
type memStore struct {
	mu     sync.Mutex
	trades map[string]*store.ShadowTradeRecord
}

func newMemStore() *memStore {
	return &memStore{trades: map[string]*store.ShadowTradeRecord{}}
}

func (m *memStore) SaveDecision(context.Context, *store.DecisionRecord) error { return nil }
func (m *memStore) ListDecisions(context.Context, store.DecisionQuery) ([]store.DecisionRecord, error) {
	return nil, nil
}
func (m *memStore) Close() error { return nil }

func (m *memStore) CreateShadowTrade(_ context.Context, rec *store.ShadowTradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.trades[rec.ID] = &cp
	return nil
}

func (m *memStore) UpdateShadowTracking(_ context.Context, id string, exitPrice, pnl, pnlPct float64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.trades[id]
	if !ok || rec.Status != storemodel.ShadowStatusTracking {
		return false, nil
	}
	rec.ExitPrice, rec.VirtualPnL, rec.VirtualPnLPct, rec.LastRefreshAt = exitPrice, pnl, pnlPct, at
	return true, nil
}

func (m *memStore) CloseShadowTrade(_ context.Context, id string, exitPrice, pnl, pnlPct float64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.trades[id]
	if !ok || rec.Status != storemodel.ShadowStatusTracking {
		return false, nil
	}
	rec.Status = storemodel.ShadowStatusClosed
	rec.ExitPrice, rec.VirtualPnL, rec.VirtualPnLPct = exitPrice, pnl, pnlPct
	closedAt := at
	rec.ClosedAt = &closedAt
	return true, nil
}

func (m *memStore) GetShadowTrade(_ context.Context, id string) (*store.ShadowTradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.trades[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) ListShadowTrades(_ context.Context, q store.ShadowQuery) ([]store.ShadowTradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.ShadowTradeRecord, 0, len(m.trades))
	for _, rec := range m.trades {
		if q.Status != "" && rec.Status != q.Status {
			continue
		}
		if q.Instrument != "" && rec.Instrument != q.Instrument {
			continue
		}
		if !q.Since.IsZero() && rec.CreatedAt.Before(q.Since) {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

type fixedPrice struct {
	mu    sync.Mutex
	price float64
}

func (f *fixedPrice) set(p float64) {
	f.mu.Lock()
	f.price = p
	f.mu.Unlock()
}

func (f *fixedPrice) CurrentPrice(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, nil
}

func (f *fixedPrice) Microstructure(context.Context, string) (*market.Microstructure, error) {
	return nil, nil
}

func (f *fixedPrice) Klines(context.Context, string, string, int) ([]market.Candle, error) {
	return nil, nil
}

func newTestTracker(window time.Duration) (*Tracker, *memStore, *fixedPrice) {
	st := newMemStore()
	src := &fixedPrice{price: 100}
	return NewTracker(st, src, window), st, src
}

func TestOpenExecutedAndVetoed(t *testing.T) {
	tr, st, _ := newTestTracker(time.Hour)
	ctx := context.Background()

	exec, err := tr.Open(ctx, OpenRequest{Instrument: "BTCUSDT", Action: decision.ActionBuy, EntryPrice: 100, Quantity: 10})
	require.NoError(t, err)
	assert.False(t, exec.Vetoed())
	assert.Equal(t, storemodel.ShadowStatusTracking, exec.Status)

	veto, err := tr.Open(ctx, OpenRequest{
		Instrument: "BTCUSDT", Action: decision.ActionBuy, EntryPrice: 100, Quantity: 10,
		RejectionCode: "daily_loss_limit", RejectionReason: "daily loss exceeds safety limit",
	})
	require.NoError(t, err)
	assert.True(t, veto.Vetoed())
	assert.NotEqual(t, exec.ID, veto.ID)

	open, err := st.ListShadowTrades(ctx, store.ShadowQuery{Status: storemodel.ShadowStatusTracking})
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestOpenRequiresEntryPrice(t *testing.T) {
	tr, _, _ := newTestTracker(time.Hour)
	_, err := tr.Open(context.Background(), OpenRequest{Instrument: "BTCUSDT", Action: decision.ActionBuy})
	assert.Error(t, err)
}

func TestRefreshMarksToMarket(t *testing.T) {
	tr, st, src := newTestTracker(time.Hour)
	ctx := context.Background()
	rec, err := tr.Open(ctx, OpenRequest{Instrument: "BTCUSDT", Action: decision.ActionBuy, EntryPrice: 100, Quantity: 10})
	require.NoError(t, err)

	src.set(105)
	require.NoError(t, tr.RefreshAll(ctx))

	got, err := st.GetShadowTrade(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, storemodel.ShadowStatusTracking, got.Status)
	assert.Equal(t, 105.0, got.ExitPrice)
	assert.InDelta(t, 50.0, got.VirtualPnL, 1e-9)
	assert.InDelta(t, 5.0, got.VirtualPnLPct, 1e-9)

	// Refresh is idempotent at the same price.
	require.NoError(t, tr.RefreshAll(ctx))
	again, err := st.GetShadowTrade(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ExitPrice, again.ExitPrice)
	assert.Equal(t, got.VirtualPnL, again.VirtualPnL)
}

func TestRefreshClosesElapsedWindow(t *testing.T) {
	tr, st, src := newTestTracker(time.Hour)
	ctx := context.Background()
	rec, err := tr.Open(ctx, OpenRequest{Instrument: "BTCUSDT", Action: decision.ActionSell, EntryPrice: 100, Quantity: 5})
	require.NoError(t, err)

	tr.nowFn = func() time.Time { return rec.CreatedAt.Add(2 * time.Hour) }
	src.set(90)
	require.NoError(t, tr.RefreshAll(ctx))

	got, err := st.GetShadowTrade(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, storemodel.ShadowStatusClosed, got.Status)
	// SELL profits when price falls.
	assert.InDelta(t, 50.0, got.VirtualPnL, 1e-9)
	require.NotNil(t, got.ClosedAt)
}

func TestClosedTradeIsImmutable(t *testing.T) {
	tr, st, src := newTestTracker(time.Hour)
	ctx := context.Background()
	rec, err := tr.Open(ctx, OpenRequest{Instrument: "BTCUSDT", Action: decision.ActionBuy, EntryPrice: 100, Quantity: 10})
	require.NoError(t, err)

	src.set(110)
	closed, err := tr.CloseNow(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, storemodel.ShadowStatusClosed, closed.Status)
	assert.Equal(t, 110.0, closed.ExitPrice)

	// Later refresh passes and close attempts must not touch the row.
	src.set(50)
	require.NoError(t, tr.RefreshAll(ctx))
	again, err := tr.CloseNow(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 110.0, again.ExitPrice)
	assert.Equal(t, closed.VirtualPnL, again.VirtualPnL)

	got, err := st.GetShadowTrade(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 110.0, got.ExitPrice)
}

func TestConcurrentRefreshAndClose(t *testing.T) {
	tr, st, src := newTestTracker(time.Hour)
	ctx := context.Background()
	rec, err := tr.Open(ctx, OpenRequest{Instrument: "BTCUSDT", Action: decision.ActionBuy, EntryPrice: 100, Quantity: 10})
	require.NoError(t, err)
	src.set(120)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				_, _ = tr.CloseNow(ctx, rec.ID)
			} else {
				_ = tr.RefreshAll(ctx)
			}
		}(i)
	}
	wg.Wait()

	got, err := st.GetShadowTrade(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, storemodel.ShadowStatusClosed, got.Status)
	assert.Equal(t, 120.0, got.ExitPrice)
}

func TestVirtualPnL(t *testing.T) {
	pnl, pct := VirtualPnL(decision.ActionBuy, 100, 110, 10)
	assert.InDelta(t, 100.0, pnl, 1e-9)
	assert.InDelta(t, 10.0, pct, 1e-9)

	pnl, _ = VirtualPnL(decision.ActionSell, 100, 110, 10)
	assert.InDelta(t, -100.0, pnl, 1e-9)

	pnl, pct = VirtualPnL(decision.ActionHold, 100, 110, 10)
	assert.Zero(t, pnl)
	assert.Zero(t, pct)
}
