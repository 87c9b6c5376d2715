package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"quorum/internal/decision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	id     string
	weight float64
	vote   decision.Vote
	err    error
	delay  time.Duration
	panics bool
}

func (s *stubProvider) ID() string      { return s.id }
func (s *stubProvider) Weight() float64 { return s.weight }

func (s *stubProvider) Analyze(ctx context.Context, _ *Snapshot) (decision.Vote, error) {
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return decision.Vote{}, ctx.Err()
		}
	}
	return s.vote, s.err
}

func TestCollectFanOut(t *testing.T) {
	pool := NewPool([]Provider{
		&stubProvider{id: "trend", weight: 0.4, vote: decision.Vote{Action: decision.ActionBuy, Confidence: 0.8}},
		&stubProvider{id: "momentum", weight: 0.3, vote: decision.Vote{Action: decision.ActionSell, Confidence: 0.6}},
		&stubProvider{id: "vol", weight: 0.3, vote: decision.Vote{Action: decision.ActionHold, Confidence: 0.5}},
	}, time.Second)

	votes := pool.Collect(context.Background(), &Snapshot{Instrument: "BTCUSDT"})
	require.Len(t, votes, 3)
	assert.Equal(t, "trend", votes[0].ProviderID)
	assert.Equal(t, 0.4, votes[0].Weight)
	assert.Equal(t, decision.ActionBuy, votes[0].Action)
	for _, v := range votes {
		assert.False(t, v.Fallback)
	}
}

func TestCollectDegradesFailedProvider(t *testing.T) {
	pool := NewPool([]Provider{
		&stubProvider{id: "ok", weight: 0.5, vote: decision.Vote{Action: decision.ActionBuy, Confidence: 0.9}},
		&stubProvider{id: "broken", weight: 0.5, err: errors.New("no data")},
	}, time.Second)

	votes := pool.Collect(context.Background(), &Snapshot{})
	require.Len(t, votes, 2)
	assert.False(t, votes[0].Fallback)
	assert.True(t, votes[1].Fallback)
	assert.Equal(t, decision.ActionHold, votes[1].Action)
	assert.Equal(t, 0.1, votes[1].Confidence)
	assert.Equal(t, 0.5, votes[1].Weight)
}

func TestCollectTimeoutDegrades(t *testing.T) {
	pool := NewPool([]Provider{
		&stubProvider{id: "slow", weight: 1, delay: time.Second, vote: decision.Vote{Action: decision.ActionBuy}},
	}, 20*time.Millisecond)

	start := time.Now()
	votes := pool.Collect(context.Background(), &Snapshot{})
	require.Len(t, votes, 1)
	assert.True(t, votes[0].Fallback)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestCollectSurvivesPanic(t *testing.T) {
	pool := NewPool([]Provider{
		&stubProvider{id: "wild", weight: 1, panics: true},
	}, time.Second)
	votes := pool.Collect(context.Background(), &Snapshot{})
	require.Len(t, votes, 1)
	assert.True(t, votes[0].Fallback)
}

func TestCollectClampsConfidence(t *testing.T) {
	pool := NewPool([]Provider{
		&stubProvider{id: "hot", weight: 1, vote: decision.Vote{Action: decision.ActionBuy, Confidence: 3.5}},
	}, time.Second)
	votes := pool.Collect(context.Background(), &Snapshot{})
	assert.Equal(t, 1.0, votes[0].Confidence)
}

func TestSetWeights(t *testing.T) {
	pool := NewPool([]Provider{
		&stubProvider{id: "trend", weight: 0.4, vote: decision.Vote{Action: decision.ActionBuy, Confidence: 1}},
	}, time.Second)
	pool.SetWeights(map[string]float64{"trend": 0.9, "ghost": 0.5, "trend-bad": 2})
	votes := pool.Collect(context.Background(), &Snapshot{})
	assert.Equal(t, 0.9, votes[0].Weight)
}

func TestFactoryClosedKindSet(t *testing.T) {
	_, err := New(Spec{ID: "x", Kind: "astrology", Weight: 0.5})
	assert.Error(t, err)

	_, err = New(Spec{ID: "x", Kind: "trend", Weight: 0})
	assert.Error(t, err)

	set, err := NewSet([]Spec{
		{ID: "trend", Kind: "trend", Weight: 0.4},
		{ID: "momentum", Kind: "momentum", Weight: 0.3},
		{ID: "vol", Kind: "volatility", Weight: 0.2},
		{ID: "crowd", Kind: "sentiment", Weight: 0.1},
	})
	require.NoError(t, err)
	assert.Len(t, set, 4)

	_, err = NewSet([]Spec{
		{ID: "dup", Kind: "trend", Weight: 0.4},
		{ID: "dup", Kind: "momentum", Weight: 0.3},
	})
	assert.Error(t, err)
}
