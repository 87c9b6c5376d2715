package decision

import (
	"fmt"
	"time"

	"quorum/internal/portfolio"
)

// ExecMode selects how much deliberation a trigger gets.
type ExecMode string

const (
	// ModeFastTrack bypasses the provider panel for urgent triggers.
	ModeFastTrack ExecMode = "FAST_TRACK"
	// ModeDeepDive runs the full pool → aggregator → sizing → gate pipeline.
	ModeDeepDive ExecMode = "DEEP_DIVE"
)

// Trigger is the event that starts a decision cycle.
type Trigger struct {
	Instrument string
	Price      float64
	// Volatility is a dimensionless proxy (ATR / price); the router only
	// compares it against the configured extreme threshold.
	Volatility float64
	Position   *portfolio.Position
	Manual     bool
}

// Route is the router's verdict for one trigger.
type Route struct {
	Mode     ExecMode `json:"mode"`
	Urgent   bool     `json:"urgent"`
	BypassAI bool     `json:"bypass_ai"`
	Reason   string   `json:"reason"`
}

// RouterConfig holds the fast-track thresholds.
type RouterConfig struct {
	ExtremeVolatility float64
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{ExtremeVolatility: 0.08}
}

// Router decides, per trigger, between the fast and the full deliberation
// path. Priority order is fixed: stop-loss breach, extreme volatility, new
// entry, default.
type Router struct {
	cfg RouterConfig
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.ExtremeVolatility <= 0 {
		cfg.ExtremeVolatility = DefaultRouterConfig().ExtremeVolatility
	}
	return &Router{cfg: cfg}
}

func (r *Router) Route(t Trigger) Route {
	if t.Position != nil {
		pos := *t.Position
		if pos.CurrentPrice <= 0 {
			pos.CurrentPrice = t.Price
		}
		if pos.StopBreached() {
			return Route{
				Mode:     ModeFastTrack,
				Urgent:   true,
				BypassAI: true,
				Reason:   fmt.Sprintf("stop-loss breached: price %.4f crossed stop %.4f", pos.CurrentPrice, pos.StopLossPrice),
			}
		}
	}
	if t.Volatility >= r.cfg.ExtremeVolatility {
		return Route{
			Mode:     ModeFastTrack,
			Urgent:   true,
			BypassAI: true,
			Reason:   fmt.Sprintf("extreme volatility: %.4f >= %.4f", t.Volatility, r.cfg.ExtremeVolatility),
		}
	}
	if t.Position == nil {
		return Route{Mode: ModeDeepDive, Reason: "new entry requires full deliberation"}
	}
	return Route{Mode: ModeDeepDive, Reason: "default route"}
}

// FastTrackDecision synthesizes the consensus record for a bypassed cycle so
// downstream stages (gate, shadow tracker, persistence) see one uniform shape.
func FastTrackDecision(t Trigger, route Route) ConsensusDecision {
	d := ConsensusDecision{
		Instrument:     t.Instrument,
		Action:         ActionHold,
		Confidence:     1.0,
		WeightedScores: map[Action]float64{},
		ConsensusLevel: ConsensusStrong,
		BypassAI:       true,
		Reasoning:      route.Reason,
		CreatedAt:      time.Now(),
	}
	if t.Position != nil {
		// Urgent exits unwind the open position regardless of direction.
		d.Action = ActionSell
		if t.Position.Short {
			d.Action = ActionBuy
		}
	}
	d.WeightedScores[d.Action] = 1.0
	return d
}
