package decision

import (
	"strings"
	"time"
)

// Action is the closed set of recommendations a provider may emit.
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionHold     Action = "HOLD"
	ActionReduce   Action = "REDUCE"
	ActionIncrease Action = "INCREASE"
	ActionDCA      Action = "DCA"
)

// Actions lists every valid action in a stable order.
func Actions() []Action {
	return []Action{ActionBuy, ActionSell, ActionHold, ActionReduce, ActionIncrease, ActionDCA}
}

// NormalizeAction maps free-form provider output onto the closed action set.
// Unknown input yields the empty Action.
func NormalizeAction(s string) Action {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG", "OPEN_LONG", "ENTER":
		return ActionBuy
	case "SELL", "SHORT", "OPEN_SHORT", "EXIT", "CLOSE":
		return ActionSell
	case "HOLD", "WAIT", "NEUTRAL":
		return ActionHold
	case "REDUCE", "TRIM", "PARTIAL_CLOSE":
		return ActionReduce
	case "INCREASE", "ADD", "SCALE_IN":
		return ActionIncrease
	case "DCA":
		return ActionDCA
	default:
		return ""
	}
}

// IsEntry reports whether the action opens or grows exposure.
func (a Action) IsEntry() bool {
	switch a {
	case ActionBuy, ActionIncrease, ActionDCA:
		return true
	default:
		return false
	}
}

// Direction returns +1 for long-side actions, -1 for short/exit-side actions
// and 0 for HOLD.
func (a Action) Direction() int {
	switch a {
	case ActionBuy, ActionIncrease, ActionDCA:
		return 1
	case ActionSell, ActionReduce:
		return -1
	default:
		return 0
	}
}

// Vote is one provider's opinion for a single decision cycle. Votes are value
// types and never mutated after the provider returns them.
type Vote struct {
	ProviderID string            `json:"provider_id"`
	Action     Action            `json:"action"`
	Confidence float64           `json:"confidence"`
	Weight     float64           `json:"weight"`
	Reasoning  string            `json:"reasoning,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	// Fallback marks a vote synthesized at the pool boundary after a provider
	// failure or timeout, so degraded panels stay observable downstream.
	Fallback bool `json:"fallback,omitempty"`
}

// ConsensusLevel buckets how strongly the panel agreed.
type ConsensusLevel string

const (
	ConsensusStrong   ConsensusLevel = "STRONG"
	ConsensusModerate ConsensusLevel = "MODERATE"
	ConsensusWeak     ConsensusLevel = "WEAK"
)

// ConsensusDecision is the aggregator's single outcome for one cycle.
type ConsensusDecision struct {
	Instrument        string             `json:"instrument"`
	Action            Action             `json:"action"`
	Confidence        float64            `json:"confidence"`
	WeightedScores    map[Action]float64 `json:"weighted_scores"`
	DisagreementScore float64            `json:"disagreement_score"`
	ConsensusLevel    ConsensusLevel     `json:"consensus_level"`
	Votes             []Vote             `json:"votes,omitempty"`
	Reasoning         string             `json:"reasoning,omitempty"`
	// BypassAI is set when the execution router short-circuited the panel.
	BypassAI  bool      `json:"bypass_ai,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
