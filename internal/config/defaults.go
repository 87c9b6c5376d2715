package config

import "strings"

const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9980"
	defaultAppLogPath   = "data/logs/quorum.log"
	defaultAppAuditPath = "data/logs/quorum-audit.log"

	defaultMarketName     = "binance"
	defaultMarketCacheTTL = 2
	defaultKlineInterval  = "1h"
	defaultKlineLimit     = 100

	defaultProfilePath      = "configs/providers.yaml"
	defaultProviderTimeout  = 10
	defaultStrongThreshold  = 0.75
	defaultModerateLevel    = 0.60
	defaultRiskPerTrade     = 0.01
	defaultMaxPositionPct   = 0.25
	defaultAbsMaxPosition   = 0.50
	defaultStopLossFloor    = 0.005
	defaultStopLossPct      = 0.02
	defaultDailyLossPct     = 3.0
	defaultRouterExtremeVol = 0.08
	defaultTrackingWindow   = "1d"
	defaultShadowRefreshSec = 60
	defaultDecisionInterval = "15m"
	defaultEngineExtremeVol = 0.06
	defaultEngineHighVol    = 0.03
	defaultEngineModVol     = 0.015
	defaultBrokerMode       = "paper"
	defaultStartingCash     = 100000
	defaultStorePath        = "data/db/quorum.db"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Providers.applyDefaults(keys)
	c.Consensus.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Safety.applyDefaults(keys)
	c.Router.applyDefaults(keys)
	c.Shadow.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.audit_log_path", &a.AuditLogPath, defaultAppAuditPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.name", &m.Name, defaultMarketName),
		stringFieldDefault("market.kline_interval", &m.KlineInterval, defaultKlineInterval),
		fieldDefault{
			key:   "market.cache_ttl_seconds",
			need:  func() bool { return m.CacheTTLSeconds <= 0 },
			apply: func() { m.CacheTTLSeconds = defaultMarketCacheTTL },
		},
		fieldDefault{
			key:   "market.kline_limit",
			need:  func() bool { return m.KlineLimit <= 0 },
			apply: func() { m.KlineLimit = defaultKlineLimit },
		},
	)
}

func (p *ProvidersConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("providers.profile_path", &p.ProfilePath, defaultProfilePath),
		fieldDefault{
			key:   "providers.timeout_seconds",
			need:  func() bool { return p.TimeoutSeconds <= 0 },
			apply: func() { p.TimeoutSeconds = defaultProviderTimeout },
		},
	)
}

func (c *ConsensusConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "consensus.strong_threshold",
			need:  func() bool { return c.StrongThreshold <= 0 },
			apply: func() { c.StrongThreshold = defaultStrongThreshold },
		},
		fieldDefault{
			key:   "consensus.moderate_threshold",
			need:  func() bool { return c.ModerateThreshold <= 0 },
			apply: func() { c.ModerateThreshold = defaultModerateLevel },
		},
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.account_risk_per_trade",
			need:  func() bool { return r.AccountRiskPerTrade <= 0 },
			apply: func() { r.AccountRiskPerTrade = defaultRiskPerTrade },
		},
		fieldDefault{
			key:   "risk.max_position_size_pct",
			need:  func() bool { return r.MaxPositionSizePct <= 0 },
			apply: func() { r.MaxPositionSizePct = defaultMaxPositionPct },
		},
		fieldDefault{
			key:   "risk.absolute_max_position_pct",
			need:  func() bool { return r.AbsoluteMaxPositionPct <= 0 },
			apply: func() { r.AbsoluteMaxPositionPct = defaultAbsMaxPosition },
		},
		fieldDefault{
			key:   "risk.stop_loss_floor",
			need:  func() bool { return r.StopLossFloor <= 0 },
			apply: func() { r.StopLossFloor = defaultStopLossFloor },
		},
		fieldDefault{
			key:   "risk.stop_loss_pct",
			need:  func() bool { return r.StopLossPct <= 0 },
			apply: func() { r.StopLossPct = defaultStopLossPct },
		},
	)
}

func (s *SafetyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "safety.daily_loss_limit_pct",
			need:  func() bool { return s.DailyLossLimitPct <= 0 },
			apply: func() { s.DailyLossLimitPct = defaultDailyLossPct },
		},
	)
}

func (r *RouterConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "router.extreme_volatility",
			need:  func() bool { return r.ExtremeVolatility <= 0 },
			apply: func() { r.ExtremeVolatility = defaultRouterExtremeVol },
		},
	)
}

func (s *ShadowConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("shadow.tracking_window", &s.TrackingWindow, defaultTrackingWindow),
		fieldDefault{
			key:   "shadow.refresh_interval_seconds",
			need:  func() bool { return s.RefreshIntervalSeconds <= 0 },
			apply: func() { s.RefreshIntervalSeconds = defaultShadowRefreshSec },
		},
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("engine.decision_interval", &e.DecisionInterval, defaultDecisionInterval),
		fieldDefault{
			key:   "engine.extreme_volatility",
			need:  func() bool { return e.ExtremeVolatility <= 0 },
			apply: func() { e.ExtremeVolatility = defaultEngineExtremeVol },
		},
		fieldDefault{
			key:   "engine.high_volatility",
			need:  func() bool { return e.HighVolatility <= 0 },
			apply: func() { e.HighVolatility = defaultEngineHighVol },
		},
		fieldDefault{
			key:   "engine.moderate_volatility",
			need:  func() bool { return e.ModerateVolatility <= 0 },
			apply: func() { e.ModerateVolatility = defaultEngineModVol },
		},
	)
	if len(e.Instruments) == 0 {
		e.Instruments = []string{"BTCUSDT"}
	}
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("broker.mode", &b.Mode, defaultBrokerMode),
		fieldDefault{
			key:   "broker.starting_cash",
			need:  func() bool { return b.StartingCash <= 0 },
			apply: func() { b.StartingCash = defaultStartingCash },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
