package risk

import (
	"math"

	"quorum/internal/decision"
	"quorum/internal/portfolio"

	"github.com/shopspring/decimal"
)

// Level grades how hostile the current environment is. It comes from the
// caller (volatility, drawdown, operator override), not from the vote panel.
type Level string

const (
	LevelLow     Level = "low"
	LevelMedium  Level = "medium"
	LevelHigh    Level = "high"
	LevelExtreme Level = "extreme"
)

// NormalizeLevel defaults unknown input to the most cautious non-zero grade.
func NormalizeLevel(s string) Level {
	switch Level(s) {
	case LevelLow, LevelMedium, LevelHigh, LevelExtreme:
		return Level(s)
	default:
		return LevelHigh
	}
}

// Config carries the sizing knobs. All percentages are fractions (0.01 = 1%).
type Config struct {
	AccountRiskPerTrade    float64
	MaxPositionSizePct     float64
	AbsoluteMaxPositionPct float64
	StopLossFloor          float64
	Multipliers            map[Level]float64
}

func DefaultConfig() Config {
	return Config{
		AccountRiskPerTrade:    0.01,
		MaxPositionSizePct:     0.25,
		AbsoluteMaxPositionPct: 0.50,
		StopLossFloor:          0.005,
		Multipliers:            DefaultMultipliers(),
	}
}

func DefaultMultipliers() map[Level]float64 {
	return map[Level]float64{
		LevelLow:     1.0,
		LevelMedium:  0.7,
		LevelHigh:    0.4,
		LevelExtreme: 0.0,
	}
}

// Breakdown records every intermediate of the sizing formula for the audit
// trail. Identical inputs always produce an identical breakdown.
type Breakdown struct {
	BasePct         float64 `json:"base_pct"`
	ConfAdjustedPct float64 `json:"conf_adjusted_pct"`
	RiskAdjustedPct float64 `json:"risk_adjusted_pct"`
	FinalPct        float64 `json:"final_pct"`
	FinalNotional   float64 `json:"final_notional"`
	RiskMultiplier  float64 `json:"risk_multiplier"`
}

// Proposal is the sized order handed to the safety gate.
type Proposal struct {
	Instrument      string          `json:"instrument"`
	Action          decision.Action `json:"action"`
	Price           float64         `json:"price"`
	Quantity        float64         `json:"quantity"`
	PositionSizePct float64         `json:"position_size_pct"`
	StopLossPct     float64         `json:"stop_loss_pct"`
	Breakdown       Breakdown       `json:"breakdown"`
}

// Notional is the order value at the proposal price.
func (p Proposal) Notional() float64 {
	return p.Price * p.Quantity
}

// Sizer turns a consensus decision plus portfolio state into a bounded
// position size. Pure: no clock, no randomness, no I/O.
type Sizer struct {
	cfg Config
}

func NewSizer(cfg Config) *Sizer {
	if cfg.AccountRiskPerTrade <= 0 {
		cfg.AccountRiskPerTrade = DefaultConfig().AccountRiskPerTrade
	}
	if cfg.MaxPositionSizePct <= 0 {
		cfg.MaxPositionSizePct = DefaultConfig().MaxPositionSizePct
	}
	if cfg.AbsoluteMaxPositionPct <= 0 {
		cfg.AbsoluteMaxPositionPct = DefaultConfig().AbsoluteMaxPositionPct
	}
	if cfg.StopLossFloor <= 0 {
		cfg.StopLossFloor = DefaultConfig().StopLossFloor
	}
	if cfg.Multipliers == nil {
		cfg.Multipliers = DefaultMultipliers()
	}
	return &Sizer{cfg: cfg}
}

// Propose sizes an order for the decision. stopLossPct is the planned stop
// distance as a fraction of entry; level scales exposure down to zero at
// extreme. Monotonic: a stricter level never yields a larger size.
func (s *Sizer) Propose(d decision.ConsensusDecision, price, stopLossPct float64, level Level, ps portfolio.State) Proposal {
	p := Proposal{
		Instrument:  d.Instrument,
		Action:      d.Action,
		Price:       price,
		StopLossPct: stopLossPct,
	}
	if price <= 0 {
		return p
	}

	mult, ok := s.cfg.Multipliers[level]
	if !ok {
		mult = s.cfg.Multipliers[LevelHigh]
	}

	basePct := s.cfg.AccountRiskPerTrade / math.Max(stopLossPct, s.cfg.StopLossFloor)
	confAdj := basePct * clamp01(d.Confidence)
	riskAdj := confAdj * mult
	finalPct := math.Min(riskAdj, math.Min(s.cfg.MaxPositionSizePct, s.cfg.AbsoluteMaxPositionPct))
	notional := math.Min(ps.TotalValue*finalPct, ps.AvailableCash)
	if notional < 0 {
		notional = 0
	}

	// Whole-unit quantity via decimal floor division keeps the result exact
	// and reproducible across platforms.
	qty := decimal.NewFromFloat(notional).
		Div(decimal.NewFromFloat(price)).
		Floor()

	p.Quantity = float64(qty.IntPart())
	p.PositionSizePct = finalPct
	p.Breakdown = Breakdown{
		BasePct:         basePct,
		ConfAdjustedPct: confAdj,
		RiskAdjustedPct: riskAdj,
		FinalPct:        finalPct,
		FinalNotional:   notional,
		RiskMultiplier:  mult,
	}
	return p
}

// ProposeExit sizes an order that unwinds an open position. The quantity
// comes from the holding, not the entry formula: the risk level can zero out
// new exposure, but an exit must always be able to fire, and a stop-loss
// breach coincides with exactly the regimes the multiplier suppresses.
func (s *Sizer) ProposeExit(d decision.ConsensusDecision, price, stopLossPct float64, pos portfolio.Position, ps portfolio.State) Proposal {
	p := Proposal{
		Instrument:  d.Instrument,
		Action:      d.Action,
		Price:       price,
		StopLossPct: stopLossPct,
	}
	if price <= 0 || pos.Quantity <= 0 {
		return p
	}

	qty := pos.Quantity
	if d.Action == decision.ActionReduce {
		// Trim half the holding in whole units; tiny positions close fully.
		qty = math.Floor(pos.Quantity / 2)
		if qty < 1 {
			qty = pos.Quantity
		}
	}

	notional := qty * price
	pct := 0.0
	if ps.TotalValue > 0 {
		pct = notional / ps.TotalValue
	}
	p.Quantity = qty
	p.PositionSizePct = pct
	p.Breakdown = Breakdown{
		FinalPct:       pct,
		FinalNotional:  notional,
		RiskMultiplier: 1.0,
	}
	return p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
