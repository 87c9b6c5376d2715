package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"quorum/internal/decision"

	"github.com/tidwall/gjson"
)

const (
	sentimentEndpoint     = "https://api.alternative.me/fng/?limit=1"
	sentimentErrorBackoff = 2 * time.Minute
	sentimentMaxAge       = 2 * time.Hour
)

// sentimentProvider votes contrarian on the crowd: extreme fear leans BUY,
// extreme greed leans REDUCE. The index updates a few times a day, so the
// value is cached and refreshed under a staleness guard rather than per cycle.
type sentimentProvider struct {
	id       string
	weight   float64
	endpoint string
	client   *http.Client

	mu         sync.Mutex
	value      int
	label      string
	fetchedAt  time.Time
	nextUpdate time.Time
}

func newSentimentProvider(id string, weight float64) *sentimentProvider {
	return &sentimentProvider{
		id:       id,
		weight:   weight,
		endpoint: sentimentEndpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *sentimentProvider) ID() string      { return p.id }
func (p *sentimentProvider) Weight() float64 { return p.weight }

func (p *sentimentProvider) Analyze(ctx context.Context, _ *Snapshot) (decision.Vote, error) {
	value, label, err := p.currentIndex(ctx)
	if err != nil {
		return decision.Vote{}, err
	}
	meta := map[string]string{"fear_greed": fmt.Sprintf("%d", value), "classification": label}
	switch {
	case value <= 20:
		return decision.Vote{
			Action:     decision.ActionBuy,
			Confidence: clampConf(0.4 + float64(20-value)/40),
			Reasoning:  fmt.Sprintf("fear & greed at %d (%s), contrarian long bias", value, label),
			Metadata:   meta,
		}, nil
	case value >= 80:
		return decision.Vote{
			Action:     decision.ActionReduce,
			Confidence: clampConf(0.4 + float64(value-80)/40),
			Reasoning:  fmt.Sprintf("fear & greed at %d (%s), crowd euphoric", value, label),
			Metadata:   meta,
		}, nil
	default:
		return decision.Vote{
			Action:     decision.ActionHold,
			Confidence: 0.25,
			Reasoning:  fmt.Sprintf("fear & greed at %d (%s), no edge", value, label),
			Metadata:   meta,
		}, nil
	}
}

func (p *sentimentProvider) currentIndex(ctx context.Context) (int, string, error) {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	fresh := !p.fetchedAt.IsZero() && now.Sub(p.fetchedAt) < sentimentMaxAge
	if fresh && now.Before(p.nextUpdate) {
		return p.value, p.label, nil
	}
	if err := p.refreshLocked(ctx); err != nil {
		if fresh {
			// Stale-but-recent beats failing the whole vote.
			return p.value, p.label, nil
		}
		return 0, "", err
	}
	return p.value, p.label, nil
}

func (p *sentimentProvider) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.nextUpdate = time.Now().Add(sentimentErrorBackoff)
		return fmt.Errorf("sentiment fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.nextUpdate = time.Now().Add(sentimentErrorBackoff)
		return fmt.Errorf("sentiment fetch: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	value := gjson.GetBytes(body, "data.0.value")
	label := gjson.GetBytes(body, "data.0.value_classification")
	if !value.Exists() {
		return fmt.Errorf("sentiment fetch: missing data.0.value")
	}
	p.value = int(value.Int())
	p.label = label.String()
	p.fetchedAt = time.Now()
	until := gjson.GetBytes(body, "data.0.time_until_update").Int()
	if until <= 0 {
		until = int64(time.Hour / time.Second)
	}
	p.nextUpdate = p.fetchedAt.Add(time.Duration(until) * time.Second)
	return nil
}
