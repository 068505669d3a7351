// Package route applies policy-routing changes for a newly chosen interface.
// The manager owns rule priorities in a reserved range and never touches
// rules outside it.
package route

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wanwatch/pkg/config"
)

// Reserved ip-rule priority range owned by this tool.
const (
	RulePriorityBase = 100
	RulePriorityMax  = 999
)

type Manager struct {
	adapter  Adapter
	priority map[string]int // interface name -> owned rule priority
	log      *zap.Logger
}

// NewManager assigns each configured interface a stable rule priority inside
// the reserved range, in config order.
func NewManager(adapter Adapter, ifaces []config.InterfaceSpec, log *zap.Logger) *Manager {
	prio := make(map[string]int, len(ifaces))
	for i, spec := range ifaces {
		p := RulePriorityBase + i
		if p > RulePriorityMax {
			p = RulePriorityMax
		}
		prio[spec.Name] = p
	}
	return &Manager{adapter: adapter, priority: prio, log: log}
}

// Apply makes iface the kernel's outbound path, add-before-remove to keep
// the blackout window small:
//
//	(a) ensure the policy rule and its table's default route
//	(b) replace the global default route
//	(c) drop stale owned rules left from a previous interface
//	(d) flush the route cache
//	(e) read the default route back and log whether the switch took
//
// Any failing step aborts the rest for this cycle; the next cycle retries
// from scratch. Reapplying an already-correct interface is a no-op.
func (m *Manager) Apply(ctx context.Context, iface config.InterfaceSpec) error {
	want, ok := m.priority[iface.Name]
	if !ok {
		return fmt.Errorf("interface %s has no assigned rule priority", iface.Name)
	}

	gateway := iface.Gateway
	if gateway == "" {
		gw, err := m.adapter.Gateway(ctx, iface.Name)
		if err != nil {
			return fmt.Errorf("resolve gateway for %s: %w", iface.Name, err)
		}
		gateway = gw
	}

	rules, err := m.adapter.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	if iface.TableID > 0 {
		if err := m.ensureRule(ctx, rules, Rule{Priority: want, OifName: iface.Name, Table: iface.TableID}); err != nil {
			return err
		}
		if err := m.adapter.ReplaceTableDefault(ctx, iface.TableID, gateway, iface.Name); err != nil {
			return fmt.Errorf("table %d default via %s: %w", iface.TableID, gateway, err)
		}
	}

	if err := m.adapter.ReplaceDefault(ctx, gateway, iface.Name); err != nil {
		return fmt.Errorf("default route via %s dev %s: %w", gateway, iface.Name, err)
	}

	// only now is it safe to drop rules belonging to other interfaces
	for _, r := range rules {
		if r.Priority < RulePriorityBase || r.Priority > RulePriorityMax || r.Priority == want {
			continue
		}
		if err := m.adapter.DeleteRule(ctx, r.Priority); err != nil {
			return fmt.Errorf("remove stale rule priority %d: %w", r.Priority, err)
		}
		m.log.Info("removed stale policy rule",
			zap.Int("priority", r.Priority),
			zap.String("oif", r.OifName))
	}

	if err := m.adapter.FlushCache(ctx); err != nil {
		m.log.Warn("route cache flush failed", zap.Error(err))
	}

	m.verifySwitch(ctx, iface.Name, gateway)

	m.log.Info("policy routes applied",
		zap.String("interface", iface.Name),
		zap.String("gateway", gateway),
		zap.Int("rulePriority", want))
	return nil
}

// verifySwitch reads the kernel's default route back and logs whether it
// actually points at the applied interface. Verification is diagnostic only;
// a mismatch is corrected by the next cycle's reapply, not rolled back here.
func (m *Manager) verifySwitch(ctx context.Context, dev, gateway string) {
	gotGW, gotDev, err := m.adapter.DefaultRoute(ctx)
	switch {
	case err != nil:
		m.log.Warn("switch verification failed",
			zap.String("interface", dev),
			zap.Error(err))
	case gotDev == dev && gotGW == gateway:
		m.log.Info("switch verified",
			zap.String("interface", dev),
			zap.String("gateway", gateway))
	default:
		m.log.Warn("default route does not match applied interface",
			zap.String("wantInterface", dev),
			zap.String("wantGateway", gateway),
			zap.String("gotInterface", gotDev),
			zap.String("gotGateway", gotGW))
	}
}

// ensureRule installs the owned rule unless an identical one is already in
// place. A different rule squatting on our priority is replaced.
func (m *Manager) ensureRule(ctx context.Context, rules []Rule, want Rule) error {
	for _, r := range rules {
		if r.Priority != want.Priority {
			continue
		}
		if r.OifName == want.OifName && r.Table == want.Table {
			return nil
		}
		if err := m.adapter.DeleteRule(ctx, want.Priority); err != nil {
			return fmt.Errorf("replace rule priority %d: %w", want.Priority, err)
		}
		break
	}
	if err := m.adapter.AddRule(ctx, want); err != nil {
		return fmt.Errorf("add rule priority %d: %w", want.Priority, err)
	}
	return nil
}
