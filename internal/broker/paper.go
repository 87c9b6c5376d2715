package broker

import (
	"context"
	"fmt"
	"sync"

	"quorum/internal/decision"
	"quorum/internal/logger"
	"quorum/internal/portfolio"
	"quorum/internal/risk"

	"github.com/google/uuid"
)

// Paper is an in-memory fill-at-touch broker for live-shadow and dev runs.
// Every order fills in full at the proposal price; realized pnl accrues into
// the daily counter the safety gate reads.
type Paper struct {
	mu        sync.Mutex
	cash      float64
	initial   float64
	positions map[string]*portfolio.Position
	dailyPnL  float64
	fills     int
}

func NewPaper(startingCash float64) *Paper {
	return &Paper{
		cash:      startingCash,
		initial:   startingCash,
		positions: map[string]*portfolio.Position{},
	}
}

var _ Broker = (*Paper)(nil)

func (b *Paper) SubmitOrder(_ context.Context, p risk.Proposal) (string, error) {
	if p.Quantity <= 0 || p.Price <= 0 {
		return "", fmt.Errorf("paper broker: degenerate order qty=%.4f price=%.4f", p.Quantity, p.Price)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case p.Action.IsEntry():
		cost := p.Notional()
		if cost > b.cash {
			return "", fmt.Errorf("paper broker: insufficient cash %.2f for notional %.2f", b.cash, cost)
		}
		b.cash -= cost
		pos, ok := b.positions[p.Instrument]
		if !ok {
			stop := p.Price * (1 - p.StopLossPct)
			b.positions[p.Instrument] = &portfolio.Position{
				Instrument:    p.Instrument,
				Quantity:      p.Quantity,
				EntryPrice:    p.Price,
				CurrentPrice:  p.Price,
				StopLossPrice: stop,
			}
		} else {
			total := pos.Quantity + p.Quantity
			pos.EntryPrice = (pos.EntryPrice*pos.Quantity + p.Price*p.Quantity) / total
			pos.Quantity = total
			pos.CurrentPrice = p.Price
		}
	case p.Action == decision.ActionSell, p.Action == decision.ActionReduce:
		pos, ok := b.positions[p.Instrument]
		if !ok || pos.Quantity <= 0 {
			return "", fmt.Errorf("paper broker: no position in %s to %s", p.Instrument, p.Action)
		}
		qty := p.Quantity
		if qty > pos.Quantity {
			qty = pos.Quantity
		}
		proceeds := qty * p.Price
		b.cash += proceeds
		b.dailyPnL += (p.Price - pos.EntryPrice) * qty
		pos.Quantity -= qty
		pos.CurrentPrice = p.Price
		if pos.Quantity <= 0 {
			delete(b.positions, p.Instrument)
		}
	default:
		return "", fmt.Errorf("paper broker: unsupported action %s", p.Action)
	}

	b.fills++
	orderID := uuid.NewString()
	logger.Infof("paper fill order=%s %s %s qty=%.2f @ %.4f cash=%.2f", orderID, p.Action, p.Instrument, p.Quantity, p.Price, b.cash)
	return orderID, nil
}

// MarkToMarket updates open positions with fresh prices.
func (b *Paper) MarkToMarket(prices map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for inst, pos := range b.positions {
		if price, ok := prices[inst]; ok && price > 0 {
			pos.CurrentPrice = price
		}
	}
}

// Portfolio snapshots the account in the read-only shape the decision core
// consumes.
func (b *Paper) Portfolio() portfolio.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := portfolio.State{
		AvailableCash:  b.cash,
		DailyPnL:       b.dailyPnL,
		InitialCapital: b.initial,
	}
	total := b.cash
	for _, pos := range b.positions {
		cp := *pos
		st.OpenPositions = append(st.OpenPositions, cp)
		price := cp.CurrentPrice
		if price <= 0 {
			price = cp.EntryPrice
		}
		total += price * cp.Quantity
	}
	st.TotalValue = total
	return st
}

// ResetDaily zeroes the realized daily pnl counter (midnight rollover).
func (b *Paper) ResetDaily() {
	b.mu.Lock()
	b.dailyPnL = 0
	b.mu.Unlock()
}

// Fills returns the number of executed orders, for status endpoints.
func (b *Paper) Fills() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fills
}
