package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Consensus.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Safety.validate(); err != nil {
		return err
	}
	if err := c.Shadow.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (c *ConsensusConfig) validate() error {
	if c.StrongThreshold <= 0 || c.StrongThreshold > 1 {
		return fmt.Errorf("consensus.strong_threshold must be in (0, 1]")
	}
	if c.ModerateThreshold <= 0 || c.ModerateThreshold > 1 {
		return fmt.Errorf("consensus.moderate_threshold must be in (0, 1]")
	}
	if c.ModerateThreshold >= c.StrongThreshold {
		return fmt.Errorf("consensus.moderate_threshold must be below strong_threshold")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.AccountRiskPerTrade <= 0 || r.AccountRiskPerTrade > 0.1 {
		return fmt.Errorf("risk.account_risk_per_trade must be in (0, 0.1]")
	}
	if r.MaxPositionSizePct <= 0 || r.MaxPositionSizePct > 1 {
		return fmt.Errorf("risk.max_position_size_pct must be in (0, 1]")
	}
	if r.AbsoluteMaxPositionPct <= 0 || r.AbsoluteMaxPositionPct > 1 {
		return fmt.Errorf("risk.absolute_max_position_pct must be in (0, 1]")
	}
	if r.MaxPositionSizePct > r.AbsoluteMaxPositionPct {
		return fmt.Errorf("risk.max_position_size_pct cannot exceed absolute_max_position_pct")
	}
	if r.StopLossPct <= 0 || r.StopLossPct > 0.5 {
		return fmt.Errorf("risk.stop_loss_pct must be in (0, 0.5]")
	}
	for level, mult := range r.Multipliers {
		switch level {
		case "low", "medium", "high", "extreme":
		default:
			return fmt.Errorf("risk.multipliers has unknown level %q", level)
		}
		if mult < 0 || mult > 1 {
			return fmt.Errorf("risk.multipliers.%s must be in [0, 1]", level)
		}
	}
	return nil
}

func (s *SafetyConfig) validate() error {
	if s.DailyLossLimitPct <= 0 || s.DailyLossLimitPct > 100 {
		return fmt.Errorf("safety.daily_loss_limit_pct must be in (0, 100]")
	}
	if s.MaxOrderNotional < 0 {
		return fmt.Errorf("safety.max_order_notional must be >= 0")
	}
	if s.MinLiquidityVolume < 0 {
		return fmt.Errorf("safety.min_liquidity_volume must be >= 0")
	}
	if s.MaxSpreadPct < 0 {
		return fmt.Errorf("safety.max_spread_pct must be >= 0")
	}
	return nil
}

func (s *ShadowConfig) validate() error {
	if !IsValidInterval(s.TrackingWindow) {
		return fmt.Errorf("shadow.tracking_window %q is not a valid interval", s.TrackingWindow)
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if len(e.Instruments) == 0 {
		return fmt.Errorf("engine.instruments requires at least one instrument")
	}
	for _, inst := range e.Instruments {
		if strings.TrimSpace(inst) == "" {
			return fmt.Errorf("engine.instruments contains an empty entry")
		}
	}
	if !IsValidInterval(e.DecisionInterval) {
		return fmt.Errorf("engine.decision_interval %q is not a valid interval", e.DecisionInterval)
	}
	if e.ModerateVolatility <= 0 {
		return fmt.Errorf("engine.moderate_volatility must be > 0")
	}
	if e.HighVolatility <= e.ModerateVolatility {
		return fmt.Errorf("engine.high_volatility must exceed moderate_volatility")
	}
	if e.ExtremeVolatility <= e.HighVolatility {
		return fmt.Errorf("engine.extreme_volatility must exceed high_volatility")
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	if b.Mode != "paper" {
		return fmt.Errorf("broker.mode only supports 'paper', got %s", b.Mode)
	}
	if b.StartingCash <= 0 {
		return fmt.Errorf("broker.starting_cash must be > 0")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

// IsValidInterval checks the "<digits><unit>" shape with unit s/m/h/d/w.
func IsValidInterval(s string) bool {
	if len(s) < 2 {
		return false
	}
	suf := s[len(s)-1]
	if suf != 's' && suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
