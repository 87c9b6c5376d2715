package app

import (
	"fmt"
	"time"

	"quorum/internal/broker"
	qcfg "quorum/internal/config"
	cfgloader "quorum/internal/config/loader"
	"quorum/internal/decision"
	"quorum/internal/engine"
	"quorum/internal/logger"
	"quorum/internal/market"
	"quorum/internal/notifier"
	"quorum/internal/pkg/circuit"
	"quorum/internal/provider"
	"quorum/internal/risk"
	"quorum/internal/safety"
	"quorum/internal/scheduler"
	"quorum/internal/shadow"
	"quorum/internal/store"
	"quorum/internal/store/gormstore"
	httpapi "quorum/internal/transport/http"
)

// AppBuilder assembles the pipeline from configuration. The fn fields exist so
// tests can swap the exchange-facing pieces for in-memory fakes.
type AppBuilder struct {
	cfg *qcfg.Config

	storeFn  func(*qcfg.Config) (store.Store, error)
	sourceFn func(*qcfg.Config) (market.Source, error)
	notifyFn func(*qcfg.Config) notifier.StructuredNotifier
}

type AppBuilderOption func(*AppBuilder)

func WithStore(st store.Store) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(*qcfg.Config) (store.Store, error) { return st, nil }
	}
}

func WithMarketSource(src market.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(*qcfg.Config) (market.Source, error) { return src, nil }
	}
}

func WithNotifier(n notifier.StructuredNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		b.notifyFn = func(*qcfg.Config) notifier.StructuredNotifier { return n }
	}
}

func NewAppBuilder(cfg *qcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		storeFn:  buildStore,
		sourceFn: buildMarketSource,
		notifyFn: buildNotifier,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	st, err := b.storeFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("build store: %w", err)
	}
	source, err := b.sourceFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("build market source: %w", err)
	}
	notif := b.notifyFn(cfg)

	profiles, pool, err := buildProviderPool(cfg)
	if err != nil {
		return nil, err
	}

	breaker := circuit.NewBreaker("orders")
	if notif != nil {
		breaker.SetStateChangeHandler(func(name string, from, to circuit.State, reason string) {
			logger.Warnf("CircuitBreaker %s state change: %s -> %s (reason=%q)", name, from, to, reason)
			_ = notif.SendStructured(notifier.StructuredMessage{
				Icon:  "⚡",
				Title: fmt.Sprintf("Circuit breaker %s: %s -> %s", name, from, to),
				Sections: []notifier.MessageSection{
					{Title: "Reason", Lines: []string{reason}},
				},
				Timestamp: time.Now(),
			})
		})
	}

	gate := safety.NewGate(safety.Limits{
		DailyLossLimitPct:      cfg.Safety.DailyLossLimitPct,
		MaxOrderNotional:       cfg.Safety.MaxOrderNotional,
		MaxPositionSizePct:     cfg.Risk.MaxPositionSizePct,
		AbsoluteMaxPositionPct: cfg.Risk.AbsoluteMaxPositionPct,
		MinLiquidityVolume:     cfg.Safety.MinLiquidityVolume,
		MaxSpreadPct:           cfg.Safety.MaxSpreadPct,
	}, breaker)

	sizer := risk.NewSizer(risk.Config{
		AccountRiskPerTrade:    cfg.Risk.AccountRiskPerTrade,
		MaxPositionSizePct:     cfg.Risk.MaxPositionSizePct,
		AbsoluteMaxPositionPct: cfg.Risk.AbsoluteMaxPositionPct,
		StopLossFloor:          cfg.Risk.StopLossFloor,
		Multipliers:            riskMultipliers(cfg.Risk.Multipliers),
	})

	paper := broker.NewPaper(cfg.Broker.StartingCash)

	window, ok := scheduler.ParseIntervalDuration(cfg.Shadow.TrackingWindow)
	if !ok {
		return nil, fmt.Errorf("invalid shadow.tracking_window %q", cfg.Shadow.TrackingWindow)
	}
	tracker := shadow.NewTracker(st, source, window)

	agg := decision.NewAggregator(decision.AggregatorConfig{
		StrongThreshold:   cfg.Consensus.StrongThreshold,
		ModerateThreshold: cfg.Consensus.ModerateThreshold,
	})
	router := decision.NewRouter(decision.RouterConfig{ExtremeVolatility: cfg.Router.ExtremeVolatility})

	eng := engine.New(engine.Deps{
		Source:  source,
		Pool:    pool,
		Agg:     agg,
		Router:  router,
		Sizer:   sizer,
		Gate:    gate,
		Broker:  paper,
		Shadow:  tracker,
		Store:   st,
		Account: paper,
		Notify:  notif,
	}, engine.Options{
		KlineInterval:      cfg.Market.KlineInterval,
		KlineLimit:         cfg.Market.KlineLimit,
		StopLossPct:        cfg.Risk.StopLossPct,
		ExtremeVolatility:  cfg.Engine.ExtremeVolatility,
		HighVolatility:     cfg.Engine.HighVolatility,
		ModerateVolatility: cfg.Engine.ModerateVolatility,
	})

	httpSrv, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		Pipeline: eng,
		Store:    st,
		Breaker:  breaker,
	})
	if err != nil {
		return nil, fmt.Errorf("build http server: %w", err)
	}

	return &App{
		cfg:      cfg,
		store:    st,
		source:   source,
		profiles: profiles,
		engine:   eng,
		tracker:  tracker,
		paper:    paper,
		breaker:  breaker,
		httpSrv:  httpSrv,
	}, nil
}

func buildStore(cfg *qcfg.Config) (store.Store, error) {
	return gormstore.New(cfg.Store.Path)
}

func buildMarketSource(cfg *qcfg.Config) (market.Source, error) {
	if cfg.Market.Name != "binance" {
		return nil, fmt.Errorf("unsupported market %q", cfg.Market.Name)
	}
	inner := market.NewBinanceSource(cfg.Market.APIKey, cfg.Market.APISecret)
	ttl := time.Duration(cfg.Market.CacheTTLSeconds) * time.Second
	return market.NewCachedSource(inner, ttl), nil
}

func buildNotifier(cfg *qcfg.Config) notifier.StructuredNotifier {
	if !cfg.Notify.Telegram.Enabled {
		return nil
	}
	return notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
}

// buildProviderPool loads the provider profile, builds the panel and, when hot
// reload is on, keeps pool weights in sync with the profile file.
func buildProviderPool(cfg *qcfg.Config) (*cfgloader.ProfileLoader, *provider.Pool, error) {
	profiles, err := cfgloader.NewProfileLoader(cfg.Providers.ProfilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("load provider profile: %w", err)
	}
	snap := profiles.Snapshot()
	specs := make([]provider.Spec, 0, len(snap.Providers))
	for _, def := range snap.Providers {
		specs = append(specs, provider.Spec{
			ID:     def.ID,
			Kind:   def.Kind,
			Weight: def.Weight,
			Params: def.Params,
		})
	}
	providers, err := provider.NewSet(specs)
	if err != nil {
		profiles.Close()
		return nil, nil, fmt.Errorf("build providers: %w", err)
	}
	pool := provider.NewPool(providers, time.Duration(cfg.Providers.TimeoutSeconds)*time.Second)

	if cfg.Providers.HotReload {
		if err := profiles.Watch(); err != nil {
			profiles.Close()
			return nil, nil, err
		}
		profiles.Subscribe(func(s cfgloader.Snapshot) {
			pool.SetWeights(s.Weights())
		})
	}
	return profiles, pool, nil
}

func riskMultipliers(raw map[string]float64) map[risk.Level]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[risk.Level]float64, len(raw))
	for level, mult := range raw {
		out[risk.NormalizeLevel(level)] = mult
	}
	return out
}
