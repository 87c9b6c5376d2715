package store

import (
	"context"
	"time"

	"quorum/internal/decision"
)

// DecisionRecord is the storage-facing view of a consensus decision.
type DecisionRecord struct {
	ID                uint
	Instrument        string
	Action            decision.Action
	Confidence        float64
	WeightedScores    map[decision.Action]float64
	DisagreementScore float64
	ConsensusLevel    decision.ConsensusLevel
	BypassAI          bool
	Reasoning         string
	Votes             []decision.Vote
	CreatedAt         time.Time
}

// ShadowTradeRecord mirrors one shadow_trades row.
type ShadowTradeRecord struct {
	ID              string
	Instrument      string
	Action          decision.Action
	EntryPrice      float64
	Quantity        float64
	RejectionReason *string
	RejectionCode   string
	TrackingWindow  time.Duration
	Status          string
	ExitPrice       float64
	VirtualPnL      float64
	VirtualPnLPct   float64
	CreatedAt       time.Time
	LastRefreshAt   time.Time
	ClosedAt        *time.Time
}

// Vetoed reports whether this trade came from a gate rejection.
func (r ShadowTradeRecord) Vetoed() bool { return r.RejectionReason != nil }

// DecisionQuery filters the decision log.
type DecisionQuery struct {
	Instrument string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// ShadowQuery filters shadow trades.
type ShadowQuery struct {
	Instrument string
	Status     string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Store is the durable home of decisions and shadow trades. Implementations
// must make CloseShadowTrade conditional on status so a concurrent refresh
// cannot resurrect a CLOSED row.
type Store interface {
	SaveDecision(ctx context.Context, rec *DecisionRecord) error
	ListDecisions(ctx context.Context, q DecisionQuery) ([]DecisionRecord, error)

	CreateShadowTrade(ctx context.Context, rec *ShadowTradeRecord) error
	// UpdateShadowTracking refreshes price/pnl on a TRACKING row. Returns
	// false when the row was already CLOSED (a safe no-op for callers).
	UpdateShadowTracking(ctx context.Context, id string, exitPrice, pnl, pnlPct float64, at time.Time) (bool, error)
	// CloseShadowTrade transitions TRACKING → CLOSED exactly once. Returns
	// false when another writer closed the row first.
	CloseShadowTrade(ctx context.Context, id string, exitPrice, pnl, pnlPct float64, at time.Time) (bool, error)
	GetShadowTrade(ctx context.Context, id string) (*ShadowTradeRecord, error)
	ListShadowTrades(ctx context.Context, q ShadowQuery) ([]ShadowTradeRecord, error)

	Close() error
}
