package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quorum/internal/decision"
	"quorum/internal/logger"

	"golang.org/x/sync/errgroup"
)

const fallbackConfidence = 0.1

// Pool fans a snapshot out to every provider concurrently and collects one
// vote per provider. A provider that errors or overruns the per-call timeout
// contributes its fallback vote instead; the cycle never aborts because one
// unit misbehaved.
type Pool struct {
	mu        sync.RWMutex
	providers []Provider
	timeout   time.Duration
}

func NewPool(providers []Provider, timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pool{providers: providers, timeout: timeout}
}

// SetWeights swaps per-provider weights at runtime (profile hot reload).
// Providers not named keep their weight; the active panel is untouched.
func (p *Pool) SetWeights(weights map[string]float64) {
	if len(weights) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, prov := range p.providers {
		w, ok := weights[prov.ID()]
		if !ok || w <= 0 || w > 1 {
			continue
		}
		p.providers[i] = reweighted{Provider: prov, weight: w}
	}
}

// Providers returns the current panel.
func (p *Pool) Providers() []Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Provider, len(p.providers))
	copy(out, p.providers)
	return out
}

// Collect runs the fan-out and acts as the synchronization barrier: it
// returns once every provider call has returned or timed out. Order of the
// result matches the configured panel order.
func (p *Pool) Collect(ctx context.Context, snap *Snapshot) []decision.Vote {
	panel := p.Providers()
	votes := make([]decision.Vote, len(panel))
	if ctx == nil {
		ctx = context.Background()
	}
	// Plain errgroup, no WithContext: a failed provider must not cancel its
	// peers mid-cycle.
	var eg errgroup.Group
	for i, prov := range panel {
		i, prov := i, prov
		eg.Go(func() error {
			votes[i] = p.analyzeOne(ctx, prov, snap)
			return nil
		})
	}
	_ = eg.Wait()
	return votes
}

func (p *Pool) analyzeOne(ctx context.Context, prov Provider, snap *Snapshot) decision.Vote {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		vote decision.Vote
		err  error
	}
	ch := make(chan result, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		v, err := prov.Analyze(callCtx, snap)
		ch <- result{vote: v, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			logger.Warnf("provider %s failed after %s, degrading to fallback: %v",
				prov.ID(), time.Since(start).Truncate(time.Millisecond), res.err)
			return FallbackVote(prov, res.err.Error())
		}
		v := res.vote
		v.ProviderID = prov.ID()
		v.Weight = prov.Weight()
		if v.Action == "" {
			v.Action = decision.ActionHold
		}
		if v.Confidence < 0 {
			v.Confidence = 0
		}
		if v.Confidence > 1 {
			v.Confidence = 1
		}
		return v
	case <-callCtx.Done():
		logger.Warnf("provider %s timed out after %s, degrading to fallback", prov.ID(), p.timeout)
		return FallbackVote(prov, "timeout")
	}
}

// FallbackVote is the conservative stand-in for a failed or timed-out
// provider: HOLD with low confidence, flagged so metrics can count it.
func FallbackVote(prov Provider, cause string) decision.Vote {
	return decision.Vote{
		ProviderID: prov.ID(),
		Action:     decision.ActionHold,
		Confidence: fallbackConfidence,
		Weight:     prov.Weight(),
		Reasoning:  "provider degraded: " + cause,
		Fallback:   true,
	}
}

type reweighted struct {
	Provider
	weight float64
}

func (r reweighted) Weight() float64 { return r.weight }
