package config

import "strings"

// Config is the main configuration carrier.
type Config struct {
	App       AppConfig       `toml:"app"`
	Market    MarketConfig    `toml:"market"`
	Providers ProvidersConfig `toml:"providers"`
	Consensus ConsensusConfig `toml:"consensus"`
	Risk      RiskConfig      `toml:"risk"`
	Safety    SafetyConfig    `toml:"safety"`
	Router    RouterConfig    `toml:"router"`
	Shadow    ShadowConfig    `toml:"shadow"`
	Engine    EngineConfig    `toml:"engine"`
	Broker    BrokerConfig    `toml:"broker"`
	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	HTTPAddr     string `toml:"http_addr"`
	LogPath      string `toml:"log_path"`
	AuditLogPath string `toml:"audit_log_path"`
	AuditDump    bool   `toml:"audit_dump"`
}

type MarketConfig struct {
	Name            string `toml:"name"`
	APIKey          string `toml:"api_key"`
	APISecret       string `toml:"api_secret"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
	KlineInterval   string `toml:"kline_interval"`
	KlineLimit      int    `toml:"kline_limit"`
}

type ProvidersConfig struct {
	ProfilePath    string `toml:"profile_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	HotReload      bool   `toml:"hot_reload"`
}

type ConsensusConfig struct {
	StrongThreshold   float64 `toml:"strong_threshold"`
	ModerateThreshold float64 `toml:"moderate_threshold"`
}

// RiskConfig holds the sizing knobs. All percentages are fractions (0.01 = 1%).
type RiskConfig struct {
	AccountRiskPerTrade    float64            `toml:"account_risk_per_trade"`
	MaxPositionSizePct     float64            `toml:"max_position_size_pct"`
	AbsoluteMaxPositionPct float64            `toml:"absolute_max_position_pct"`
	StopLossFloor          float64            `toml:"stop_loss_floor"`
	StopLossPct            float64            `toml:"stop_loss_pct"`
	Multipliers            map[string]float64 `toml:"multipliers"`
}

// SafetyConfig holds the hard gate limits. daily_loss_limit_pct is in percent
// of initial capital, unlike the position caps which are fractions.
type SafetyConfig struct {
	DailyLossLimitPct  float64 `toml:"daily_loss_limit_pct"`
	MaxOrderNotional   float64 `toml:"max_order_notional"`
	MinLiquidityVolume float64 `toml:"min_liquidity_volume"`
	MaxSpreadPct       float64 `toml:"max_spread_pct"`
}

// RouterConfig controls trigger routing. extreme_volatility is the fast-track
// bypass threshold, distinct from the engine's risk grading thresholds.
type RouterConfig struct {
	ExtremeVolatility float64 `toml:"extreme_volatility"`
}

type ShadowConfig struct {
	TrackingWindow         string `toml:"tracking_window"`
	RefreshIntervalSeconds int    `toml:"refresh_interval_seconds"`
}

// EngineConfig drives the decision loop. The volatility thresholds map
// ATR/price onto sizing risk grades and are independent of the router's
// fast-track threshold.
type EngineConfig struct {
	Instruments        []string `toml:"instruments"`
	DecisionInterval   string   `toml:"decision_interval"`
	RunImmediately     bool     `toml:"run_immediately"`
	ExtremeVolatility  float64  `toml:"extreme_volatility"`
	HighVolatility     float64  `toml:"high_volatility"`
	ModerateVolatility float64  `toml:"moderate_volatility"`
}

type BrokerConfig struct {
	Mode         string  `toml:"mode"`
	StartingCash float64 `toml:"starting_cash"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// keySet tracks which field paths were explicitly set in the config file.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the defaulting rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
