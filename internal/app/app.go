package app

import (
	"context"
	"fmt"
	"time"

	"quorum/internal/broker"
	qcfg "quorum/internal/config"
	cfgloader "quorum/internal/config/loader"
	"quorum/internal/engine"
	"quorum/internal/logger"
	"quorum/internal/market"
	"quorum/internal/pkg/circuit"
	"quorum/internal/scheduler"
	"quorum/internal/shadow"
	"quorum/internal/store"
	httpapi "quorum/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App owns the assembled pipeline and drives the schedulers: decision cycles
// per instrument, shadow refresh and the daily paper-broker reset.
type App struct {
	cfg      *qcfg.Config
	store    store.Store
	source   market.Source
	profiles *cfgloader.ProfileLoader
	engine   *engine.Engine
	tracker  *shadow.Tracker
	paper    *broker.Paper
	breaker  *circuit.Breaker
	httpSrv  *httpapi.Server
}

// NewApp builds the application from configuration without starting it.
func NewApp(cfg *qcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(cfg)
}

// Engine exposes the decision pipeline, mainly for embedding and tests.
func (a *App) Engine() *engine.Engine { return a.engine }

// Run starts the HTTP server and the schedulers, blocking until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	decisionInterval, ok := scheduler.ParseIntervalDuration(a.cfg.Engine.DecisionInterval)
	if !ok {
		return fmt.Errorf("invalid engine.decision_interval %q", a.cfg.Engine.DecisionInterval)
	}
	refreshInterval := time.Duration(a.cfg.Shadow.RefreshIntervalSeconds) * time.Second

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		sched := &scheduler.IntervalScheduler{
			Name:           "decision",
			Interval:       decisionInterval,
			RunImmediately: a.cfg.Engine.RunImmediately,
		}
		sched.Run(ctx, a.runDecisionCycles)
		return nil
	})

	group.Go(func() error {
		sched := scheduler.NewIntervalScheduler("shadow-refresh", refreshInterval)
		sched.Run(ctx, func(taskCtx context.Context) error {
			return a.tracker.RefreshAll(taskCtx)
		})
		return nil
	})

	group.Go(func() error {
		sched := scheduler.NewIntervalScheduler("daily-reset", 24*time.Hour)
		sched.Run(ctx, func(context.Context) error {
			a.paper.ResetDaily()
			logger.Infof("paper broker daily PnL reset")
			return nil
		})
		return nil
	})

	logger.InfoBlock(fmt.Sprintf(
		"quorum started\nhttp: %s\ninstruments: %v\ndecision interval: %s\nshadow window: %s",
		a.httpSrv.Addr(), a.cfg.Engine.Instruments, a.cfg.Engine.DecisionInterval, a.cfg.Shadow.TrackingWindow))

	return group.Wait()
}

// runDecisionCycles marks positions to market, then runs one cycle per
// configured instrument. A failed instrument never blocks the others.
func (a *App) runDecisionCycles(ctx context.Context) error {
	a.markToMarket(ctx)
	for _, instrument := range a.cfg.Engine.Instruments {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := a.engine.RunDecisionCycle(ctx, instrument); err != nil {
			logger.Warnf("decision cycle %s failed: %v", instrument, err)
		}
	}
	return nil
}

func (a *App) markToMarket(ctx context.Context) {
	state := a.paper.Portfolio()
	if len(state.OpenPositions) == 0 {
		return
	}
	prices := make(map[string]float64, len(state.OpenPositions))
	for _, pos := range state.OpenPositions {
		price, err := a.source.CurrentPrice(ctx, pos.Instrument)
		if err != nil {
			logger.Debugf("mark-to-market %s: %v", pos.Instrument, err)
			continue
		}
		prices[pos.Instrument] = price
	}
	a.paper.MarkToMarket(prices)
}

// Close releases the profile watcher and the store. Safe to call twice.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.profiles != nil {
		if err := a.profiles.Close(); err != nil {
			logger.Warnf("close profile loader: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("close store: %v", err)
		}
	}
}
