// Package monitor drives the measure/score/decide/apply pipeline on a fixed
// interval. Cycles never overlap and effect application for a switch runs
// under a single mutual-exclusion section.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"wanwatch/pkg/config"
	"wanwatch/pkg/failover"
	"wanwatch/pkg/journal"
	"wanwatch/pkg/metrics"
	"wanwatch/pkg/model"
)

type Prober interface {
	Run(ctx context.Context, ifaces []config.InterfaceSpec, targets []config.TargetSpec) []model.ProbeResult
}

type Scorer interface {
	Score(results []model.ProbeResult) []model.InterfaceScore
}

type RouteApplier interface {
	Apply(ctx context.Context, iface config.InterfaceSpec) error
}

type RouteSyncer interface {
	Sync(ctx context.Context, targets []config.TargetSpec, active string) (int, error)
}

type Loop struct {
	cfg    *config.Config
	prober Prober
	scorer Scorer
	ctrl   *failover.Controller
	routes RouteApplier
	syncer RouteSyncer
	jrnl   *journal.Journal
	mets   *metrics.Metrics
	clk    clock.Clock
	log    *zap.Logger
	dryRun bool

	// effectMu serializes mutations of the kernel table and persisted store.
	effectMu    sync.Mutex
	syncPending bool
}

type Option func(*Loop)

func WithClock(c clock.Clock) Option        { return func(l *Loop) { l.clk = c } }
func WithJournal(j *journal.Journal) Option { return func(l *Loop) { l.jrnl = j } }
func WithMetrics(m *metrics.Metrics) Option { return func(l *Loop) { l.mets = m } }
func WithDryRun(dry bool) Option            { return func(l *Loop) { l.dryRun = dry } }

func New(cfg *config.Config, prober Prober, scorer Scorer, ctrl *failover.Controller,
	routes RouteApplier, syncer RouteSyncer, log *zap.Logger, opts ...Option) *Loop {
	l := &Loop{
		cfg:    cfg,
		prober: prober,
		scorer: scorer,
		ctrl:   ctrl,
		routes: routes,
		syncer: syncer,
		clk:    clock.New(),
		log:    log,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run executes cycles until the context is canceled. A tick arriving while
// a cycle is still running is drained and skipped rather than queued, so an
// overrunning cycle never builds a backlog.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clk.Ticker(l.cfg.Global.Interval)
	defer ticker.Stop()

	if err := l.RunCycle(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.RunCycle(ctx); err != nil {
				return err
			}
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// RunCycle performs one probe/score/decide/apply pass. Steady-state errors
// are logged and absorbed; only a failover state invariant violation is
// returned, and it is fatal.
func (l *Loop) RunCycle(ctx context.Context) error {
	start := time.Now()

	ifaces := l.cfg.EnabledInterfaces()
	if len(ifaces) == 0 {
		l.log.Warn("no enabled interfaces, skipping cycle")
		return nil
	}

	results := l.prober.Run(ctx, ifaces, l.cfg.Targets)
	if l.mets != nil {
		for _, r := range results {
			if !r.Reachable {
				l.mets.ProbeFailures.Inc()
			}
		}
	}

	scores := l.scorer.Score(results)
	decision := l.ctrl.Evaluate(l.cfg.Interfaces, scores)

	if decision.Switch {
		if err := l.applySwitch(ctx, decision); err != nil {
			return err
		}
	} else if l.syncPending {
		l.effectMu.Lock()
		l.trySync(ctx)
		l.effectMu.Unlock()
	}

	active := l.ctrl.State().Active
	l.logSummary(scores, active, decision)
	l.jrnl.RecordCycle(scores, active)

	if l.mets != nil {
		for _, s := range scores {
			l.mets.Score.WithLabelValues(s.Interface).Set(s.Score)
			mark := 0.0
			if s.Interface == active {
				mark = 1
			}
			l.mets.Active.WithLabelValues(s.Interface).Set(mark)
		}
		l.mets.Cycles.Inc()
		l.mets.CycleSeconds.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (l *Loop) applySwitch(ctx context.Context, d failover.Decision) error {
	if !l.cfg.Global.AutoSwitch || l.dryRun {
		l.log.Info("switch decided but not applied",
			zap.String("from", d.From),
			zap.String("to", d.To),
			zap.Bool("autoSwitch", l.cfg.Global.AutoSwitch),
			zap.Bool("dryRun", l.dryRun),
			zap.String("reason", d.Reason))
		return nil
	}
	spec, ok := l.cfg.Interface(d.To)
	if !ok {
		return fmt.Errorf("failover state invariant: decided interface %q not in config", d.To)
	}

	l.effectMu.Lock()
	defer l.effectMu.Unlock()

	if err := l.routes.Apply(ctx, spec); err != nil {
		l.log.Error(fmt.Sprintf("apply failed, retaining %s", d.From),
			zap.String("to", d.To),
			zap.Error(err))
		if l.mets != nil {
			l.mets.ApplyFailures.Inc()
		}
		return nil
	}

	if err := l.ctrl.Commit(d); err != nil {
		return fmt.Errorf("failover state invariant: %w", err)
	}
	l.log.Info("switched active interface",
		zap.String("from", d.From),
		zap.String("to", d.To),
		zap.Bool("forced", d.Forced),
		zap.String("reason", d.Reason))
	l.jrnl.RecordSwitch(model.SwitchEvent{
		From: d.From, To: d.To, Forced: d.Forced, Reason: d.Reason, At: time.Now(),
	})
	if l.mets != nil {
		l.mets.Switches.WithLabelValues(fmt.Sprintf("%t", d.Forced)).Inc()
	}

	if l.cfg.Global.ManageRoutes && l.syncer != nil {
		l.syncPending = true
		l.trySync(ctx)
	}
	return nil
}

// trySync reconciles persisted routes with the active interface. A failed
// commit or reload keeps the sync pending for the next cycle; the kernel
// route is never rolled back for a persistence failure. Caller holds
// effectMu.
func (l *Loop) trySync(ctx context.Context) {
	active := l.ctrl.State().Active
	edits, err := l.syncer.Sync(ctx, l.cfg.Targets, active)
	if err != nil {
		l.log.Error("persisted route sync failed, will retry",
			zap.String("interface", active),
			zap.Error(err))
		if l.mets != nil {
			l.mets.SyncFailures.Inc()
		}
		return
	}
	l.syncPending = false
	if edits > 0 {
		l.log.Info("persisted routes synchronized",
			zap.String("interface", active),
			zap.Int("edits", edits))
	}
}

func (l *Loop) logSummary(scores []model.InterfaceScore, active string, d failover.Decision) {
	for _, s := range scores {
		l.log.Info("interface summary",
			zap.String("interface", s.Interface),
			zap.Int("reachable", s.ReachableCount),
			zap.Int("targets", s.TargetCount),
			zap.Float64("avgLatencyMs", s.AvgLatencyMs),
			zap.Float64("avgSpeedKbs", s.AvgSpeedKBs),
			zap.Float64("score", s.Score),
			zap.Bool("active", s.Interface == active))
	}
	l.log.Info("cycle complete",
		zap.String("active", active),
		zap.String("best", d.Best),
		zap.Bool("switched", d.Switch),
		zap.String("reason", d.Reason))
}
