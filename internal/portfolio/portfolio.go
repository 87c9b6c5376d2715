package portfolio

// Position is one open holding marked to the latest known price.
type Position struct {
	Instrument    string  `json:"instrument"`
	Quantity      float64 `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	StopLossPrice float64 `json:"stop_loss_price"`
	Short         bool    `json:"short,omitempty"`
}

// StopBreached reports whether the latest price has crossed the position's
// stop-loss level. Positions without a stop never breach.
func (p Position) StopBreached() bool {
	if p.StopLossPrice <= 0 || p.CurrentPrice <= 0 {
		return false
	}
	if p.Short {
		return p.CurrentPrice >= p.StopLossPrice
	}
	return p.CurrentPrice <= p.StopLossPrice
}

func (p Position) UnrealizedPnL() float64 {
	if p.CurrentPrice <= 0 {
		return 0
	}
	diff := p.CurrentPrice - p.EntryPrice
	if p.Short {
		diff = -diff
	}
	return diff * p.Quantity
}

// State is the caller-owned account view. The decision core only reads it;
// mutation happens in the broker layer and in mark-to-market passes.
type State struct {
	TotalValue     float64    `json:"total_value"`
	AvailableCash  float64    `json:"available_cash"`
	OpenPositions  []Position `json:"open_positions,omitempty"`
	DailyPnL       float64    `json:"daily_pnl"`
	InitialCapital float64    `json:"initial_capital"`
}

// DailyLossPct returns today's realized loss as a percentage of initial
// capital. Gains return 0; the safety gate only cares about losses.
func (s State) DailyLossPct() float64 {
	if s.InitialCapital <= 0 || s.DailyPnL >= 0 {
		return 0
	}
	return -s.DailyPnL / s.InitialCapital * 100
}

// FindPosition returns the open position for an instrument, if any.
func (s State) FindPosition(instrument string) (Position, bool) {
	for _, p := range s.OpenPositions {
		if p.Instrument == instrument {
			return p, true
		}
	}
	return Position{}, false
}
