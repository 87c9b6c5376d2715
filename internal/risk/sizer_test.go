package risk

import (
	"testing"

	"quorum/internal/decision"
	"quorum/internal/portfolio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState() portfolio.State {
	return portfolio.State{
		TotalValue:     100000,
		AvailableCash:  100000,
		InitialCapital: 100000,
	}
}

func testDecision(conf float64) decision.ConsensusDecision {
	return decision.ConsensusDecision{Instrument: "BTCUSDT", Action: decision.ActionBuy, Confidence: conf}
}

func TestProposeBreakdownScenario(t *testing.T) {
	s := NewSizer(Config{
		AccountRiskPerTrade:    0.01,
		MaxPositionSizePct:     0.25,
		AbsoluteMaxPositionPct: 0.50,
		StopLossFloor:          0.005,
	})
	p := s.Propose(testDecision(0.75), 100, 0.02, LevelMedium, testState())

	assert.InDelta(t, 0.5, p.Breakdown.BasePct, 1e-9)
	assert.InDelta(t, 0.375, p.Breakdown.ConfAdjustedPct, 1e-9)
	assert.InDelta(t, 0.2625, p.Breakdown.RiskAdjustedPct, 1e-9)
	// capped by max_position_size_pct = 0.25
	assert.InDelta(t, 0.25, p.Breakdown.FinalPct, 1e-9)
	assert.InDelta(t, 25000, p.Breakdown.FinalNotional, 1e-6)
	assert.Equal(t, 250.0, p.Quantity)
}

func TestProposeIdempotent(t *testing.T) {
	s := NewSizer(DefaultConfig())
	d := testDecision(0.6)
	ps := testState()
	a := s.Propose(d, 123.45, 0.02, LevelMedium, ps)
	b := s.Propose(d, 123.45, 0.02, LevelMedium, ps)
	assert.Equal(t, a, b)
}

func TestProposeMonotonicInRiskLevel(t *testing.T) {
	s := NewSizer(DefaultConfig())
	d := testDecision(0.8)
	ps := testState()
	levels := []Level{LevelLow, LevelMedium, LevelHigh, LevelExtreme}
	prev := -1.0
	for i := len(levels) - 1; i >= 0; i-- {
		p := s.Propose(d, 100, 0.02, levels[i], ps)
		require.GreaterOrEqual(t, p.Breakdown.FinalNotional, prev,
			"level %s must not size below the stricter level", levels[i])
		prev = p.Breakdown.FinalNotional
	}
}

func TestProposeExtremeForcesZero(t *testing.T) {
	s := NewSizer(DefaultConfig())
	p := s.Propose(testDecision(1.0), 100, 0.02, LevelExtreme, testState())
	assert.Zero(t, p.Quantity)
	assert.Zero(t, p.Breakdown.FinalNotional)
}

func TestProposeClampedByAvailableCash(t *testing.T) {
	s := NewSizer(DefaultConfig())
	ps := testState()
	ps.AvailableCash = 1500
	p := s.Propose(testDecision(1.0), 100, 0.02, LevelLow, ps)
	assert.LessOrEqual(t, p.Breakdown.FinalNotional, 1500.0)
	assert.Equal(t, 15.0, p.Quantity)
}

func TestProposeStopLossFloor(t *testing.T) {
	s := NewSizer(Config{
		AccountRiskPerTrade:    0.01,
		MaxPositionSizePct:     1,
		AbsoluteMaxPositionPct: 1,
		StopLossFloor:          0.005,
	})
	// A zero stop distance must not blow up the base percentage.
	p := s.Propose(testDecision(1.0), 100, 0, LevelLow, testState())
	assert.InDelta(t, 2.0, p.Breakdown.BasePct, 1e-9)
}

func TestProposeQuantityFloors(t *testing.T) {
	s := NewSizer(DefaultConfig())
	ps := portfolio.State{TotalValue: 1000, AvailableCash: 1000, InitialCapital: 1000}
	p := s.Propose(testDecision(1.0), 333, 0.02, LevelLow, ps)
	// 1000 * min(0.5, caps...) leaves fractional units; quantity floors.
	assert.Equal(t, p.Quantity, float64(int64(p.Quantity)))
	assert.LessOrEqual(t, p.Notional(), p.Breakdown.FinalNotional+1e-9)
}

func TestProposeZeroPrice(t *testing.T) {
	s := NewSizer(DefaultConfig())
	p := s.Propose(testDecision(0.9), 0, 0.02, LevelLow, testState())
	assert.Zero(t, p.Quantity)
}

func TestProposeExitUsesHeldQuantity(t *testing.T) {
	s := NewSizer(DefaultConfig())
	d := decision.ConsensusDecision{Instrument: "BTCUSDT", Action: decision.ActionSell, Confidence: 0.9}
	pos := portfolio.Position{Instrument: "BTCUSDT", Quantity: 100, EntryPrice: 120}
	p := s.ProposeExit(d, 100, 0.02, pos, testState())

	// The exit closes the holding regardless of the entry-formula inputs.
	assert.Equal(t, 100.0, p.Quantity)
	assert.InDelta(t, 10000, p.Breakdown.FinalNotional, 1e-6)
	assert.InDelta(t, 0.1, p.PositionSizePct, 1e-9)
}

func TestProposeExitReduceTrimsHalf(t *testing.T) {
	s := NewSizer(DefaultConfig())
	d := decision.ConsensusDecision{Instrument: "BTCUSDT", Action: decision.ActionReduce, Confidence: 0.5}
	pos := portfolio.Position{Instrument: "BTCUSDT", Quantity: 101, EntryPrice: 120}
	p := s.ProposeExit(d, 100, 0.02, pos, testState())
	assert.Equal(t, 50.0, p.Quantity)

	// A single-unit holding cannot be halved; it closes fully.
	pos.Quantity = 1
	p = s.ProposeExit(d, 100, 0.02, pos, testState())
	assert.Equal(t, 1.0, p.Quantity)
}

func TestProposeExitEmptyPosition(t *testing.T) {
	s := NewSizer(DefaultConfig())
	d := decision.ConsensusDecision{Instrument: "BTCUSDT", Action: decision.ActionSell}
	p := s.ProposeExit(d, 100, 0.02, portfolio.Position{}, testState())
	assert.Zero(t, p.Quantity)
}

func TestNormalizeLevel(t *testing.T) {
	assert.Equal(t, LevelMedium, NormalizeLevel("medium"))
	assert.Equal(t, LevelHigh, NormalizeLevel("??"))
}
