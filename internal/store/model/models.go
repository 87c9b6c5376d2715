package model

import (
	"gorm.io/datatypes"
)

// DecisionModel persists one consensus decision per cycle.
type DecisionModel struct {
	ID                uint           `gorm:"primaryKey;autoIncrement"`
	Instrument        string         `gorm:"size:32;index:idx_decisions_instrument_created"`
	Action            string         `gorm:"size:16"`
	Confidence        float64        `gorm:""`
	WeightedScores    datatypes.JSON `gorm:"column:weighted_scores_json"`
	DisagreementScore float64        `gorm:""`
	ConsensusLevel    string         `gorm:"size:16"`
	BypassAI          bool           `gorm:"column:bypass_ai"`
	Reasoning         string         `gorm:"type:text"`
	VotesJSON         datatypes.JSON `gorm:"column:votes_json"`
	CreatedAt         int64          `gorm:"index:idx_decisions_instrument_created"` // unix ms
}

func (DecisionModel) TableName() string { return "consensus_decisions" }

// Shadow trade lifecycle states. CLOSED is terminal; rows never leave it.
const (
	ShadowStatusTracking = "TRACKING"
	ShadowStatusClosed   = "CLOSED"
)

// ShadowTradeModel persists one counterfactual position per decision cycle.
// RejectionReason NULL means the decision executed; non-NULL means vetoed.
type ShadowTradeModel struct {
	ID                string  `gorm:"primaryKey;size:36"`
	Instrument        string  `gorm:"size:32;index:idx_shadow_instrument"`
	Action            string  `gorm:"size:16"`
	EntryPrice        float64 `gorm:""`
	Quantity          float64 `gorm:""`
	RejectionReason   *string `gorm:"size:255"`
	RejectionCode     string  `gorm:"size:64"`
	TrackingWindowSec int64   `gorm:""`
	Status            string  `gorm:"size:16;index:idx_shadow_status"`
	ExitPrice         float64 `gorm:""`
	VirtualPnL        float64 `gorm:"column:virtual_pnl"`
	VirtualPnLPct     float64 `gorm:"column:virtual_pnl_pct"`
	CreatedAt         int64   `gorm:"index"` // unix ms
	LastRefreshAt     int64   `gorm:""`
	ClosedAt          *int64  `gorm:""`
}

func (ShadowTradeModel) TableName() string { return "shadow_trades" }
