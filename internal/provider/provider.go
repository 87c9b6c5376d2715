package provider

import (
	"context"
	"fmt"
	"strings"

	"quorum/internal/decision"
	"quorum/internal/market"
)

// Snapshot is the per-cycle market context handed to every provider. Building
// it once keeps the panel consistent: all providers reason over the same bars.
type Snapshot struct {
	Instrument string
	Price      float64
	Candles    []market.Candle
	Micro      *market.Microstructure
}

// Provider is one opinion unit. Analyze may fail or time out; the
// pool degrades those cases to a fallback vote, so implementations should just
// return their error instead of hiding it.
type Provider interface {
	ID() string
	Weight() float64
	Analyze(ctx context.Context, snap *Snapshot) (decision.Vote, error)
}

// Spec describes one configured provider instance.
type Spec struct {
	ID     string
	Kind   string
	Weight float64
	Params map[string]float64
}

// New builds a provider from its spec. The kind set is closed; adding a
// provider means adding a case here, not probing for capabilities at runtime.
func New(spec Spec) (Provider, error) {
	id := strings.TrimSpace(spec.ID)
	if id == "" {
		id = spec.Kind
	}
	if spec.Weight <= 0 || spec.Weight > 1 {
		return nil, fmt.Errorf("provider %s: weight must be in (0,1], got %v", id, spec.Weight)
	}
	switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
	case "trend":
		return newTrendProvider(id, spec.Weight, spec.Params), nil
	case "momentum":
		return newMomentumProvider(id, spec.Weight, spec.Params), nil
	case "volatility":
		return newVolatilityProvider(id, spec.Weight, spec.Params), nil
	case "sentiment":
		return newSentimentProvider(id, spec.Weight), nil
	default:
		return nil, fmt.Errorf("provider %s: unknown kind %q", id, spec.Kind)
	}
}

// NewSet builds the full panel, failing fast on any bad spec.
func NewSet(specs []Spec) ([]Provider, error) {
	out := make([]Provider, 0, len(specs))
	seen := map[string]bool{}
	for _, spec := range specs {
		p, err := New(spec)
		if err != nil {
			return nil, err
		}
		if seen[p.ID()] {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID())
		}
		seen[p.ID()] = true
		out = append(out, p)
	}
	return out, nil
}

func paramOr(params map[string]float64, key string, def float64) float64 {
	if params == nil {
		return def
	}
	if v, ok := params[key]; ok && v > 0 {
		return v
	}
	return def
}
