// Package failover holds the hysteresis-based switch decision engine. The
// controller exclusively owns the failover state; everything else sees only
// per-cycle snapshots.
package failover

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"wanwatch/pkg/config"
	"wanwatch/pkg/model"
)

// State is the long-lived failover state: the single active interface, the
// count of consecutive cycles in which it was not the best scorer, and the
// time of the last committed switch.
type State struct {
	Active     string
	Misses     int
	LastSwitch time.Time
}

// Decision is the outcome of one cycle's evaluation. Effects run only when
// Switch is set; the switch becomes durable via Commit once they succeed.
type Decision struct {
	Switch bool
	From   string
	To     string
	Best   string
	Forced bool // active interface disabled or absent, threshold bypassed
	Reason string
}

type Controller struct {
	threshold int
	state     State
	log       *zap.Logger
}

// NewController seeds the state with the initial active interface, normally
// the highest-priority enabled one.
func NewController(threshold int, initialActive string, log *zap.Logger) *Controller {
	if threshold < 1 {
		threshold = 1
	}
	return &Controller{
		threshold: threshold,
		state:     State{Active: initialActive},
		log:       log,
	}
}

func (c *Controller) State() State { return c.state }

// Evaluate applies the transition rules, in order:
//  1. active disabled/absent -> forced switch to best
//  2. active == best         -> reset the miss counter
//  3. otherwise count a miss; at the threshold, switch to best
//
// The miss counter is reset only by rule 2 or by Commit, so a switch whose
// effect application fails is re-decided on the next cycle.
func (c *Controller) Evaluate(ifaces []config.InterfaceSpec, scores []model.InterfaceScore) Decision {
	enabled := make(map[string]config.InterfaceSpec, len(ifaces))
	for _, i := range ifaces {
		if i.Enabled {
			enabled[i.Name] = i
		}
	}

	best, ok := bestInterface(scores, enabled)
	if !ok {
		return Decision{From: c.state.Active, Reason: "no scored enabled interface"}
	}

	if _, active := enabled[c.state.Active]; !active {
		return Decision{
			Switch: true,
			From:   c.state.Active,
			To:     best,
			Best:   best,
			Forced: true,
			Reason: fmt.Sprintf("active interface %s disabled or absent", c.state.Active),
		}
	}

	if c.state.Active == best {
		c.state.Misses = 0
		return Decision{From: c.state.Active, Best: best, Reason: "active interface is best"}
	}

	c.state.Misses++
	c.log.Info("active interface not best",
		zap.String("active", c.state.Active),
		zap.String("best", best),
		zap.Int("misses", c.state.Misses),
		zap.Int("threshold", c.threshold))
	if c.state.Misses >= c.threshold {
		return Decision{
			Switch: true,
			From:   c.state.Active,
			To:     best,
			Best:   best,
			Reason: fmt.Sprintf("best for %d consecutive cycles", c.state.Misses),
		}
	}
	return Decision{From: c.state.Active, Best: best, Reason: "watching, below threshold"}
}

// Commit makes a decided switch durable after its effects were applied.
// The state must never end up without exactly one active interface.
func (c *Controller) Commit(d Decision) error {
	if !d.Switch || d.To == "" {
		return fmt.Errorf("commit of a non-switch decision (to=%q)", d.To)
	}
	c.state.Active = d.To
	c.state.Misses = 0
	c.state.LastSwitch = time.Now()
	return nil
}

// bestInterface picks the highest composite score among enabled interfaces;
// ties break on lowest priority number, then name.
func bestInterface(scores []model.InterfaceScore, enabled map[string]config.InterfaceSpec) (string, bool) {
	bestName := ""
	var bestScore float64
	bestPriority := 0
	for _, s := range scores {
		spec, ok := enabled[s.Interface]
		if !ok {
			continue
		}
		if bestName == "" ||
			s.Score > bestScore ||
			(s.Score == bestScore && (spec.Priority < bestPriority ||
				(spec.Priority == bestPriority && s.Interface < bestName))) {
			bestName = s.Interface
			bestScore = s.Score
			bestPriority = spec.Priority
		}
	}
	return bestName, bestName != ""
}
