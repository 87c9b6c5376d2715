package safety

import (
	"fmt"

	"quorum/internal/logger"
	"quorum/internal/market"
	"quorum/internal/pkg/circuit"
	"quorum/internal/portfolio"
	"quorum/internal/risk"
)

// ReasonCode is the typed cause of a gate rejection. The shadow tracker keys
// its defensive ledger on these, so the set is stable.
type ReasonCode string

const (
	ReasonCircuitBreakerActive ReasonCode = "circuit_breaker_active"
	ReasonDailyLossLimit       ReasonCode = "daily_loss_limit"
	ReasonOrderNotionalLimit   ReasonCode = "order_notional_limit"
	ReasonPositionSizeLimit    ReasonCode = "position_size_limit"
	ReasonMissingStopLoss      ReasonCode = "missing_stop_loss"
	ReasonLowLiquidity         ReasonCode = "insufficient_liquidity"
	ReasonWideSpread           ReasonCode = "spread_too_wide"
	// ReasonRiskSizedZero comes from the sizing stage, not a gate check: the
	// risk multiplier suppressed the whole order before it reached the gate.
	ReasonRiskSizedZero ReasonCode = "risk_sized_zero"
)

// Verdict is the gate's answer for one proposal. Rejections are ordinary
// business outcomes, never errors.
type Verdict struct {
	Approved bool       `json:"approved"`
	Code     ReasonCode `json:"code,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

func approve() Verdict { return Verdict{Approved: true} }

func reject(code ReasonCode, format string, args ...any) Verdict {
	return Verdict{Approved: false, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Limits holds the hard boundaries. DailyLossLimitPct is in percent of
// initial capital; the position caps are fractions of total value.
type Limits struct {
	DailyLossLimitPct      float64
	MaxOrderNotional       float64
	MaxPositionSizePct     float64
	AbsoluteMaxPositionPct float64
	MinLiquidityVolume     float64
	MaxSpreadPct           float64
}

// Gate validates sized proposals against the hard limits and owns the trip
// side of the process-wide circuit breaker. Checks short-circuit on the first
// failure, in a fixed order, and fail closed whenever the breaker is ACTIVE.
type Gate struct {
	limits  Limits
	breaker *circuit.Breaker
}

func NewGate(limits Limits, breaker *circuit.Breaker) *Gate {
	if breaker == nil {
		breaker = circuit.NewBreaker("orders")
	}
	return &Gate{limits: limits, breaker: breaker}
}

// Breaker exposes the shared breaker for reset endpoints and status views.
func (g *Gate) Breaker() *circuit.Breaker { return g.breaker }

// CheckOrder validates one proposal. micro may be nil when the market source
// has no microstructure view; those checks are then skipped.
func (g *Gate) CheckOrder(p risk.Proposal, ps portfolio.State, micro *market.Microstructure) Verdict {
	if g.breaker.Active() {
		snap := g.breaker.Snapshot()
		return reject(ReasonCircuitBreakerActive, "circuit breaker active since %s: %s",
			snap.TriggeredAt.Format("15:04:05"), snap.Reason)
	}

	if g.limits.DailyLossLimitPct > 0 {
		lossPct := ps.DailyLossPct()
		if lossPct >= g.limits.DailyLossLimitPct {
			reason := fmt.Sprintf("daily loss exceeds safety limit: %.2f%% >= %.2f%%", lossPct, g.limits.DailyLossLimitPct)
			if g.breaker.Trip(reason) {
				logger.Errorf("safety gate tripped circuit breaker: %s", reason)
			}
			return reject(ReasonDailyLossLimit, "%s", reason)
		}
	}

	if g.limits.MaxOrderNotional > 0 && p.Notional() > g.limits.MaxOrderNotional {
		return reject(ReasonOrderNotionalLimit, "order notional %.2f exceeds limit %.2f", p.Notional(), g.limits.MaxOrderNotional)
	}

	if g.limits.MaxPositionSizePct > 0 && p.PositionSizePct > g.limits.MaxPositionSizePct {
		return reject(ReasonPositionSizeLimit, "position size %.2f%% exceeds max %.2f%%",
			p.PositionSizePct*100, g.limits.MaxPositionSizePct*100)
	}
	if g.limits.AbsoluteMaxPositionPct > 0 && p.PositionSizePct > g.limits.AbsoluteMaxPositionPct {
		return reject(ReasonPositionSizeLimit, "position size %.2f%% exceeds absolute cap %.2f%%",
			p.PositionSizePct*100, g.limits.AbsoluteMaxPositionPct*100)
	}

	if p.StopLossPct <= 0 {
		return reject(ReasonMissingStopLoss, "proposal carries no stop-loss")
	}

	if micro != nil {
		if g.limits.MinLiquidityVolume > 0 && micro.Volume5m < g.limits.MinLiquidityVolume {
			return reject(ReasonLowLiquidity, "5m volume %.0f below floor %.0f", micro.Volume5m, g.limits.MinLiquidityVolume)
		}
		if g.limits.MaxSpreadPct > 0 && micro.SpreadPct() > g.limits.MaxSpreadPct {
			return reject(ReasonWideSpread, "spread %.3f%% above ceiling %.3f%%", micro.SpreadPct(), g.limits.MaxSpreadPct)
		}
	}

	return approve()
}
