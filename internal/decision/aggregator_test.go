package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateWeightedScores(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())
	votes := []Vote{
		{ProviderID: "trader", Action: ActionBuy, Confidence: 0.8, Weight: 0.4},
		{ProviderID: "risk", Action: ActionSell, Confidence: 0.6, Weight: 0.3},
		{ProviderID: "analyst", Action: ActionHold, Confidence: 0.5, Weight: 0.3},
	}
	d := agg.Aggregate("BTCUSDT", votes)

	assert.InDelta(t, 0.32, d.WeightedScores[ActionBuy], 1e-9)
	assert.InDelta(t, 0.18, d.WeightedScores[ActionSell], 1e-9)
	assert.InDelta(t, 0.15, d.WeightedScores[ActionHold], 1e-9)
	assert.Equal(t, ActionBuy, d.Action)
	assert.InDelta(t, 0.32, d.Confidence, 1e-9)
	assert.Equal(t, ConsensusWeak, d.ConsensusLevel)
}

func TestAggregateChosenActionDominates(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())
	panels := [][]Vote{
		{
			{ProviderID: "a", Action: ActionBuy, Confidence: 0.9, Weight: 0.5},
			{ProviderID: "b", Action: ActionBuy, Confidence: 0.4, Weight: 0.2},
			{ProviderID: "c", Action: ActionReduce, Confidence: 0.7, Weight: 0.3},
		},
		{
			{ProviderID: "a", Action: ActionDCA, Confidence: 0.3, Weight: 1.0},
			{ProviderID: "b", Action: ActionSell, Confidence: 0.2, Weight: 0.9},
		},
		{
			{ProviderID: "solo", Action: ActionIncrease, Confidence: 1.0, Weight: 0.1},
		},
	}
	for _, votes := range panels {
		d := agg.Aggregate("ETHUSDT", votes)
		winning := d.WeightedScores[d.Action]
		for act, score := range d.WeightedScores {
			assert.GreaterOrEqualf(t, winning, score, "action %s must not outscore winner %s", act, d.Action)
		}
		assert.GreaterOrEqual(t, d.Confidence, 0.0)
		assert.LessOrEqual(t, d.Confidence, 1.0)
	}
}

func TestAggregateTieFavorsHold(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())
	votes := []Vote{
		{ProviderID: "a", Action: ActionBuy, Confidence: 0.5, Weight: 0.5},
		{ProviderID: "b", Action: ActionHold, Confidence: 0.5, Weight: 0.5},
	}
	d := agg.Aggregate("BTCUSDT", votes)
	assert.Equal(t, ActionHold, d.Action)
}

func TestAggregateZeroVotes(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())
	d := agg.Aggregate("BTCUSDT", nil)
	assert.Equal(t, ActionHold, d.Action)
	assert.Zero(t, d.Confidence)
	assert.Zero(t, d.DisagreementScore)
}

func TestAggregateConsensusLevels(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{StrongThreshold: 0.75, ModerateThreshold: 0.60})

	unanimous := []Vote{
		{ProviderID: "a", Action: ActionBuy, Confidence: 0.6, Weight: 1},
		{ProviderID: "b", Action: ActionBuy, Confidence: 0.7, Weight: 1},
		{ProviderID: "c", Action: ActionBuy, Confidence: 0.8, Weight: 1},
	}
	assert.Equal(t, ConsensusStrong, agg.Aggregate("X", unanimous).ConsensusLevel)

	twoOfThree := []Vote{
		{ProviderID: "a", Action: ActionBuy, Confidence: 0.6, Weight: 1},
		{ProviderID: "b", Action: ActionBuy, Confidence: 0.7, Weight: 1},
		{ProviderID: "c", Action: ActionSell, Confidence: 0.8, Weight: 1},
	}
	assert.Equal(t, ConsensusModerate, agg.Aggregate("X", twoOfThree).ConsensusLevel)

	split := []Vote{
		{ProviderID: "a", Action: ActionBuy, Confidence: 0.6, Weight: 1},
		{ProviderID: "b", Action: ActionSell, Confidence: 0.7, Weight: 1},
		{ProviderID: "c", Action: ActionHold, Confidence: 0.8, Weight: 1},
	}
	d := agg.Aggregate("X", split)
	assert.Equal(t, ConsensusWeak, d.ConsensusLevel)
	assert.InDelta(t, 1.0-1.0/3.0, d.DisagreementScore, 1e-9)
}

func TestAggregateRenormalizesPartialPanel(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())
	// Two of four configured providers answered; confidence is normalized by
	// the weight actually present.
	votes := []Vote{
		{ProviderID: "a", Action: ActionBuy, Confidence: 1.0, Weight: 0.25},
		{ProviderID: "b", Action: ActionBuy, Confidence: 1.0, Weight: 0.25},
	}
	d := agg.Aggregate("BTCUSDT", votes)
	require.Equal(t, ActionBuy, d.Action)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)
}

func TestAggregateDropsMalformedVotes(t *testing.T) {
	agg := NewAggregator(DefaultAggregatorConfig())
	votes := []Vote{
		{ProviderID: "bad", Action: "", Confidence: 0.9, Weight: 0.5},
		{ProviderID: "zero", Action: ActionBuy, Confidence: 0.9, Weight: 0},
		{ProviderID: "ok", Action: ActionSell, Confidence: 0.4, Weight: 0.5},
	}
	d := agg.Aggregate("BTCUSDT", votes)
	assert.Equal(t, ActionSell, d.Action)
	assert.InDelta(t, 0.4, d.Confidence, 1e-9)
}

func TestNormalizeAction(t *testing.T) {
	assert.Equal(t, ActionBuy, NormalizeAction(" buy "))
	assert.Equal(t, ActionSell, NormalizeAction("SHORT"))
	assert.Equal(t, ActionHold, NormalizeAction("wait"))
	assert.Equal(t, ActionDCA, NormalizeAction("dca"))
	assert.Equal(t, Action(""), NormalizeAction("yolo"))
}
