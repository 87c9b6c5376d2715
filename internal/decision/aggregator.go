package decision

import (
	"sort"
	"time"

	"quorum/internal/logger"
)

// AggregatorConfig carries the consensus-level buckets. The thresholds are
// agreement ratios over vote counts, not weights.
type AggregatorConfig struct {
	StrongThreshold   float64
	ModerateThreshold float64
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{StrongThreshold: 0.75, ModerateThreshold: 0.60}
}

// Aggregator combines weighted votes into one ConsensusDecision.
//
// Scoring: weighted_score[a] = Σ weight·confidence over votes for action a.
// The final action is the argmax; ties resolve toward HOLD, then by the fixed
// action order, so identical panels always produce identical output. The
// final confidence is normalized by the weight actually present, which keeps
// partial panels comparable with full ones.
type Aggregator struct {
	cfg AggregatorConfig
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.StrongThreshold <= 0 {
		cfg.StrongThreshold = DefaultAggregatorConfig().StrongThreshold
	}
	if cfg.ModerateThreshold <= 0 {
		cfg.ModerateThreshold = DefaultAggregatorConfig().ModerateThreshold
	}
	return &Aggregator{cfg: cfg}
}

// Aggregate never fails: an empty panel is a defined outcome (HOLD, zero
// confidence), not an error.
func (a *Aggregator) Aggregate(instrument string, votes []Vote) ConsensusDecision {
	d := ConsensusDecision{
		Instrument:     instrument,
		Action:         ActionHold,
		WeightedScores: map[Action]float64{},
		ConsensusLevel: ConsensusWeak,
		Votes:          votes,
		CreatedAt:      time.Now(),
	}

	valid := make([]Vote, 0, len(votes))
	for _, v := range votes {
		if v.Action == "" || v.Weight <= 0 {
			logger.Debugf("aggregator: dropping malformed vote provider=%s action=%q weight=%.3f", v.ProviderID, v.Action, v.Weight)
			continue
		}
		valid = append(valid, v)
	}
	if len(valid) == 0 {
		return d
	}

	totalWeight := 0.0
	counts := map[Action]int{}
	for _, v := range valid {
		conf := clamp01(v.Confidence)
		d.WeightedScores[v.Action] += v.Weight * conf
		counts[v.Action]++
		totalWeight += v.Weight
	}

	d.Action = argmaxAction(d.WeightedScores)
	d.Confidence = clamp01(d.WeightedScores[d.Action] / totalWeight)

	majority := 0
	for _, n := range counts {
		if n > majority {
			majority = n
		}
	}
	agreement := float64(majority) / float64(len(valid))
	d.DisagreementScore = 1 - agreement
	switch {
	case agreement >= a.cfg.StrongThreshold:
		d.ConsensusLevel = ConsensusStrong
	case agreement >= a.cfg.ModerateThreshold:
		d.ConsensusLevel = ConsensusModerate
	default:
		d.ConsensusLevel = ConsensusWeak
	}
	d.Reasoning = dominantReasoning(valid, d.Action)
	return d
}

// argmaxAction picks the highest-scoring action. HOLD wins any exact tie with
// the top score; remaining ties resolve by the declared action order.
func argmaxAction(scores map[Action]float64) Action {
	best := ActionHold
	bestScore := -1.0
	for _, act := range Actions() {
		s, ok := scores[act]
		if !ok {
			continue
		}
		switch {
		case s > bestScore:
			best = act
			bestScore = s
		case s == bestScore && act == ActionHold:
			best = ActionHold
		}
	}
	if bestScore < 0 {
		return ActionHold
	}
	return best
}

// dominantReasoning picks the reasoning of the heaviest vote backing the
// winning action, for the audit trail.
func dominantReasoning(votes []Vote, winner Action) string {
	backing := make([]Vote, 0, len(votes))
	for _, v := range votes {
		if v.Action == winner && v.Reasoning != "" {
			backing = append(backing, v)
		}
	}
	if len(backing) == 0 {
		return ""
	}
	sort.SliceStable(backing, func(i, j int) bool {
		wi := backing[i].Weight * backing[i].Confidence
		wj := backing[j].Weight * backing[j].Confidence
		if wi != wj {
			return wi > wj
		}
		return backing[i].ProviderID < backing[j].ProviderID
	})
	return backing[0].Reasoning
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
