package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quorum/internal/broker"
	"quorum/internal/decision"
	"quorum/internal/logger"
	"quorum/internal/market"
	"quorum/internal/notifier"
	"quorum/internal/portfolio"
	"quorum/internal/provider"
	"quorum/internal/risk"
	"quorum/internal/safety"
	"quorum/internal/shadow"
	"quorum/internal/store"
)

// Options are the per-cycle knobs the engine reads on every run.
type Options struct {
	KlineInterval string
	KlineLimit    int
	// StopLossPct is the planned stop distance as a fraction of entry price.
	StopLossPct float64
	// Volatility thresholds mapping ATR/price onto risk levels. Zero values
	// fall back to defaults.
	ExtremeVolatility  float64
	HighVolatility     float64
	ModerateVolatility float64
}

func (o *Options) applyDefaults() {
	if o.KlineInterval == "" {
		o.KlineInterval = "1h"
	}
	if o.KlineLimit <= 0 {
		o.KlineLimit = 100
	}
	if o.StopLossPct <= 0 {
		o.StopLossPct = 0.02
	}
	if o.ExtremeVolatility <= 0 {
		o.ExtremeVolatility = 0.06
	}
	if o.HighVolatility <= 0 {
		o.HighVolatility = 0.03
	}
	if o.ModerateVolatility <= 0 {
		o.ModerateVolatility = 0.015
	}
}

// PortfolioView yields the current account state. The paper broker satisfies
// it; a live adapter would too.
type PortfolioView interface {
	Portfolio() portfolio.State
}

// Engine runs one full decision cycle: trigger routing, opinion collection,
// consensus, sizing, the safety gate, execution and shadow bookkeeping.
type Engine struct {
	source  market.Source
	pool    *provider.Pool
	agg     *decision.Aggregator
	router  *decision.Router
	sizer   *risk.Sizer
	gate    *safety.Gate
	broker  broker.Broker
	shadow  *shadow.Tracker
	store   store.Store
	account PortfolioView
	notify  notifier.StructuredNotifier
	opts    Options
}

type Deps struct {
	Source  market.Source
	Pool    *provider.Pool
	Agg     *decision.Aggregator
	Router  *decision.Router
	Sizer   *risk.Sizer
	Gate    *safety.Gate
	Broker  broker.Broker
	Shadow  *shadow.Tracker
	Store   store.Store
	Account PortfolioView
	Notify  notifier.StructuredNotifier
}

func New(deps Deps, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		source:  deps.Source,
		pool:    deps.Pool,
		agg:     deps.Agg,
		router:  deps.Router,
		sizer:   deps.Sizer,
		gate:    deps.Gate,
		broker:  deps.Broker,
		shadow:  deps.Shadow,
		store:   deps.Store,
		account: deps.Account,
		notify:  deps.Notify,
		opts:    opts,
	}
}

// CycleResult is everything one decision cycle produced.
type CycleResult struct {
	Decision  decision.ConsensusDecision `json:"decision"`
	Route     decision.Route             `json:"route"`
	Execution *ExecutionResult           `json:"execution,omitempty"`
}

// ExecutionResult reports what happened after consensus: sized, gated and
// possibly submitted. HOLD cycles carry no execution result at all.
type ExecutionResult struct {
	Approved  bool              `json:"approved"`
	OrderID   string            `json:"order_id,omitempty"`
	Code      safety.ReasonCode `json:"code,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Proposal  risk.Proposal     `json:"proposal"`
	ShadowID  string            `json:"shadow_id,omitempty"`
	RiskLevel risk.Level        `json:"risk_level"`
}

// RunDecisionCycle drives one instrument through the whole pipeline. A cycle
// returns an error only when it could not decide at all (no price, no data);
// rejected orders are normal results.
func (e *Engine) RunDecisionCycle(ctx context.Context, instrument string) (*CycleResult, error) {
	start := time.Now()
	price, err := e.source.CurrentPrice(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("cycle %s: current price: %w", instrument, err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("cycle %s: non-positive price %.4f", instrument, price)
	}

	candles, err := e.source.Klines(ctx, instrument, e.opts.KlineInterval, e.opts.KlineLimit)
	if err != nil {
		return nil, fmt.Errorf("cycle %s: klines: %w", instrument, err)
	}
	vol := e.volatility(candles, price)

	ps := e.account.Portfolio()
	trigger := decision.Trigger{Instrument: instrument, Price: price, Volatility: vol}
	if pos, ok := ps.FindPosition(instrument); ok {
		if pos.CurrentPrice <= 0 {
			pos.CurrentPrice = price
		}
		trigger.Position = &pos
	}
	route := e.router.Route(trigger)
	logger.Infof("cycle %s: route=%s urgent=%v vol=%.4f price=%.4f: %s",
		instrument, route.Mode, route.Urgent, vol, price, route.Reason)

	var d decision.ConsensusDecision
	if route.BypassAI {
		d = decision.FastTrackDecision(trigger, route)
	} else {
		micro, err := e.source.Microstructure(ctx, instrument)
		if err != nil {
			logger.Warnf("cycle %s: microstructure unavailable: %v", instrument, err)
			micro = nil
		}
		snap := &provider.Snapshot{Instrument: instrument, Price: price, Candles: candles, Micro: micro}
		votes := e.pool.Collect(ctx, snap)
		logger.LogAuditVotes(instrument, mustJSON(votes))
		d = e.agg.Aggregate(instrument, votes)
	}

	res := &CycleResult{Decision: d, Route: route}
	if d.Action != decision.ActionHold {
		res.Execution = e.ExecuteIfApproved(ctx, d, price, vol, ps)
	} else {
		logger.Infof("cycle %s: consensus HOLD (conf=%.2f level=%s), nothing to execute",
			instrument, d.Confidence, d.ConsensusLevel)
	}
	e.persistDecision(ctx, &d)
	e.auditCycle(instrument, d, res.Execution)
	logger.Infof("cycle %s: done action=%s conf=%.2f elapsed=%s",
		instrument, d.Action, d.Confidence, time.Since(start).Truncate(time.Millisecond))
	return res, nil
}

// ExecuteIfApproved sizes the decision, runs it through the safety gate and,
// if approved, submits it. Every proposal that reaches the gate also opens a
// shadow trade: executed ones for offensive stats, vetoed ones for the shield
// ledger.
func (e *Engine) ExecuteIfApproved(ctx context.Context, d decision.ConsensusDecision, price, vol float64, ps portfolio.State) *ExecutionResult {
	level := e.riskLevel(vol)
	proposal := e.propose(d, price, level, ps)
	out := &ExecutionResult{Proposal: proposal, RiskLevel: level}

	if proposal.Quantity <= 0 {
		out.Code = safety.ReasonRiskSizedZero
		out.Reason = fmt.Sprintf("risk level %s sized %s to zero quantity", level, d.Action)
		logger.Infof("execute %s: %s sized to zero (level=%s), recording counterfactual", d.Instrument, d.Action, level)
		out.ShadowID = e.openShadow(ctx, e.counterfactual(d, price, ps, proposal), string(out.Code), out.Reason)
		return out
	}

	micro, err := e.source.Microstructure(ctx, d.Instrument)
	if err != nil {
		logger.Warnf("execute %s: microstructure unavailable for gate: %v", d.Instrument, err)
		micro = nil
	}
	verdict := e.gate.CheckOrder(proposal, ps, micro)
	out.Approved = verdict.Approved
	out.Code = verdict.Code
	out.Reason = verdict.Reason

	if !verdict.Approved {
		logger.Warnf("execute %s: gate rejected %s: [%s] %s", d.Instrument, d.Action, verdict.Code, verdict.Reason)
		e.notifyVeto(d, proposal, verdict)
		out.ShadowID = e.openShadow(ctx, proposal, string(verdict.Code), verdict.Reason)
		return out
	}

	orderID, err := e.broker.SubmitOrder(ctx, proposal)
	if err != nil {
		// The gate said yes; the venue said no. The counterfactual is still
		// the approved decision, so it tracks as executed.
		out.Reason = fmt.Sprintf("broker: %v", err)
		logger.Errorf("execute %s: submit failed: %v", d.Instrument, err)
	} else {
		out.OrderID = orderID
		logger.Infof("execute %s: order %s filled %s qty=%.2f @ %.4f notional=%.2f",
			d.Instrument, orderID, proposal.Action, proposal.Quantity, proposal.Price, proposal.Notional())
		e.notifyFill(d, proposal, orderID)
	}
	out.ShadowID = e.openShadow(ctx, proposal, "", "")
	return out
}

// propose picks the sizing path. An action that unwinds an open position is
// sized from the held quantity; everything else goes through the entry
// formula, where the risk level scales new exposure down to zero at extreme.
func (e *Engine) propose(d decision.ConsensusDecision, price float64, level risk.Level, ps portfolio.State) risk.Proposal {
	if pos, ok := ps.FindPosition(d.Instrument); ok && unwinds(d.Action, pos) {
		return e.sizer.ProposeExit(d, price, e.opts.StopLossPct, pos, ps)
	}
	return e.sizer.Propose(d, price, e.opts.StopLossPct, level, ps)
}

// unwinds reports whether the action reduces the position's exposure.
func unwinds(a decision.Action, pos portfolio.Position) bool {
	if a == decision.ActionReduce {
		return true
	}
	if pos.Short {
		return a == decision.ActionBuy
	}
	return a == decision.ActionSell
}

// counterfactual re-sizes a suppressed decision at the calm-regime multiplier
// so the shield ledger can price the trade that was not taken. When even that
// sizes to zero (no cash) the original zero proposal is recorded as-is.
func (e *Engine) counterfactual(d decision.ConsensusDecision, price float64, ps portfolio.State, original risk.Proposal) risk.Proposal {
	counter := e.sizer.Propose(d, price, e.opts.StopLossPct, risk.LevelLow, ps)
	if counter.Quantity <= 0 {
		return original
	}
	return counter
}

// ShadowReport builds the offensive/defensive report for the trailing period.
func (e *Engine) ShadowReport(ctx context.Context, period time.Duration) (*shadow.Report, error) {
	return e.shadow.BuildReport(ctx, period)
}

func (e *Engine) openShadow(ctx context.Context, p risk.Proposal, code, reason string) string {
	rec, err := e.shadow.Open(ctx, shadow.OpenRequest{
		Instrument:      p.Instrument,
		Action:          p.Action,
		EntryPrice:      p.Price,
		Quantity:        p.Quantity,
		RejectionCode:   code,
		RejectionReason: reason,
	})
	if err != nil {
		logger.Warnf("shadow open failed for %s: %v", p.Instrument, err)
		return ""
	}
	return rec.ID
}

// persistDecision writes the decision log with one logged retry. Losing an
// audit row must never fail the cycle.
func (e *Engine) persistDecision(ctx context.Context, d *decision.ConsensusDecision) {
	rec := &store.DecisionRecord{
		Instrument:        d.Instrument,
		Action:            d.Action,
		Confidence:        d.Confidence,
		WeightedScores:    d.WeightedScores,
		DisagreementScore: d.DisagreementScore,
		ConsensusLevel:    d.ConsensusLevel,
		BypassAI:          d.BypassAI,
		Reasoning:         d.Reasoning,
		Votes:             d.Votes,
		CreatedAt:         d.CreatedAt,
	}
	if err := e.store.SaveDecision(ctx, rec); err != nil {
		logger.Warnf("persist decision %s failed, retrying once: %v", d.Instrument, err)
		if err := e.store.SaveDecision(ctx, rec); err != nil {
			logger.Errorf("persist decision %s failed permanently: %v", d.Instrument, err)
		}
	}
}

func (e *Engine) auditCycle(instrument string, d decision.ConsensusDecision, exec *ExecutionResult) {
	sizing, verdict := "", ""
	if exec != nil {
		sizing = mustJSON(exec.Proposal.Breakdown)
		verdict = mustJSON(safety.Verdict{Approved: exec.Approved, Code: exec.Code, Reason: exec.Reason})
	}
	logger.LogAuditDecision(instrument, mustJSON(d), sizing, verdict)
}

// riskLevel grades the environment from the volatility proxy.
func (e *Engine) riskLevel(vol float64) risk.Level {
	switch {
	case vol >= e.opts.ExtremeVolatility:
		return risk.LevelExtreme
	case vol >= e.opts.HighVolatility:
		return risk.LevelHigh
	case vol >= e.opts.ModerateVolatility:
		return risk.LevelMedium
	default:
		return risk.LevelLow
	}
}

func (e *Engine) volatility(candles []market.Candle, price float64) float64 {
	ratio, err := provider.ATRRatio(candles, 14)
	if err != nil {
		logger.Debugf("volatility proxy unavailable (%d candles, price %.4f): %v", len(candles), price, err)
		return 0
	}
	return ratio
}

func (e *Engine) notifyVeto(d decision.ConsensusDecision, p risk.Proposal, v safety.Verdict) {
	if e.notify == nil {
		return
	}
	msg := notifier.StructuredMessage{
		Icon:  "🛡️",
		Title: fmt.Sprintf("Order vetoed: %s %s", p.Instrument, p.Action),
		Sections: []notifier.MessageSection{
			{Title: "Verdict", Lines: []string{fmt.Sprintf("code: %s", v.Code), v.Reason}},
			{Title: "Proposal", Lines: []string{
				fmt.Sprintf("qty %.2f @ %.4f (%.2f)", p.Quantity, p.Price, p.Notional()),
				fmt.Sprintf("consensus %s conf %.2f", d.ConsensusLevel, d.Confidence),
			}},
		},
		Timestamp: time.Now().UTC(),
	}
	if err := e.notify.SendStructured(msg); err != nil {
		logger.Warnf("veto notification failed: %v", err)
	}
}

func (e *Engine) notifyFill(d decision.ConsensusDecision, p risk.Proposal, orderID string) {
	if e.notify == nil {
		return
	}
	msg := notifier.StructuredMessage{
		Icon:  "🚀",
		Title: fmt.Sprintf("Order filled: %s %s", p.Instrument, p.Action),
		Sections: []notifier.MessageSection{
			{Title: "Order", Lines: []string{
				fmt.Sprintf("id %s", orderID),
				fmt.Sprintf("qty %.2f @ %.4f (%.2f)", p.Quantity, p.Price, p.Notional()),
				fmt.Sprintf("stop %.2f%%", p.StopLossPct*100),
			}},
			{Title: "Consensus", Lines: []string{
				fmt.Sprintf("%s conf %.2f disagreement %.2f", d.ConsensusLevel, d.Confidence, d.DisagreementScore),
			}},
		},
		Timestamp: time.Now().UTC(),
	}
	if err := e.notify.SendStructured(msg); err != nil {
		logger.Warnf("fill notification failed: %v", err)
	}
}

func mustJSON(v any) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(buf)
}
