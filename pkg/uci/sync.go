package uci

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"wanwatch/pkg/config"
)

// ManagedPrefix tags route sections owned by this tool. Sections without it
// are never touched.
const ManagedPrefix = "route_"

// Synchronizer keeps one persisted static route per managed target bound to
// the active interface. All edits for a cycle are staged and committed as a
// single uci transaction followed by one network reload.
type Synchronizer struct {
	client Client
	log    *zap.Logger

	// set when a commit landed but the consuming service missed its reload
	needReload bool
}

func NewSynchronizer(client Client, log *zap.Logger) *Synchronizer {
	return &Synchronizer{client: client, log: log}
}

// Sync stages interface rewrites and section creations for every managed
// target, then commits. With nothing to change it performs zero edits, no
// commit and no reload. Any staging or commit error reverts the pending
// edits so no partial state persists; the caller retries next cycle.
func (s *Synchronizer) Sync(ctx context.Context, targets []config.TargetSpec, active string) (int, error) {
	managed := make([]config.TargetSpec, 0, len(targets))
	for _, t := range targets {
		if t.Managed {
			managed = append(managed, t)
		}
	}
	if len(managed) == 0 {
		return 0, nil
	}

	physical := PhysicalInterface(active)

	existing, err := s.client.StaticRoutes(ctx)
	if err != nil {
		return 0, fmt.Errorf("read persisted routes: %w", err)
	}
	byTarget := make(map[string]StaticRoute, len(existing))
	for _, r := range existing {
		if !strings.HasPrefix(r.Section, ManagedPrefix) {
			continue
		}
		byTarget[normalizeTarget(r.Target)] = r
	}

	edits := 0
	for _, t := range managed {
		entry, found := byTarget[normalizeTarget(t.Address)]
		switch {
		case found && entry.Interface == physical:
			// already correct
		case found:
			s.log.Info("rebinding persisted route",
				zap.String("target", t.Address),
				zap.String("from", entry.Interface),
				zap.String("to", physical))
			if err := s.client.Set(ctx, fmt.Sprintf("network.%s.interface", entry.Section), physical); err != nil {
				return 0, s.revert(ctx, fmt.Errorf("stage rebind %s: %w", t.Address, err))
			}
			edits++
		default:
			section := SectionName(t.Address)
			s.log.Info("creating persisted route",
				zap.String("target", t.Address),
				zap.String("section", section),
				zap.String("interface", physical))
			for _, kv := range [][2]string{
				{fmt.Sprintf("network.%s", section), "route"},
				{fmt.Sprintf("network.%s.interface", section), physical},
				{fmt.Sprintf("network.%s.target", section), t.Address},
			} {
				if err := s.client.Set(ctx, kv[0], kv[1]); err != nil {
					return 0, s.revert(ctx, fmt.Errorf("stage create %s: %w", t.Address, err))
				}
			}
			edits++
		}
	}

	if edits == 0 {
		if s.needReload {
			if err := s.client.ReloadNetwork(ctx); err != nil {
				return 0, fmt.Errorf("reload network: %w", err)
			}
			s.needReload = false
		}
		s.log.Debug("persisted routes already in sync", zap.String("interface", physical))
		return 0, nil
	}

	if err := s.client.Commit(ctx, "network"); err != nil {
		return 0, s.revert(ctx, fmt.Errorf("commit persisted routes: %w", err))
	}
	s.needReload = true
	if err := s.client.ReloadNetwork(ctx); err != nil {
		return edits, fmt.Errorf("reload network: %w", err)
	}
	s.needReload = false
	s.log.Info("persisted routes committed",
		zap.Int("edits", edits),
		zap.String("interface", physical))
	return edits, nil
}

func (s *Synchronizer) revert(ctx context.Context, cause error) error {
	if err := s.client.Revert(ctx, "network"); err != nil {
		s.log.Warn("revert of staged uci edits failed", zap.Error(err))
	}
	return cause
}

// PhysicalInterface maps a logical interface name onto the device UCI
// routes bind to; PPPoE interfaces carry a pppoe- prefix on the logical
// side only.
func PhysicalInterface(logical string) string {
	return strings.TrimPrefix(logical, "pppoe-")
}

// SectionName derives the tool-managed section name for a target prefix.
func SectionName(target string) string {
	return ManagedPrefix + strings.NewReplacer("/", "_", ".", "_", ":", "_").Replace(target)
}

// normalizeTarget makes "1.1.1.1" and "1.1.1.1/32" compare equal.
func normalizeTarget(target string) string {
	return strings.TrimSuffix(target, "/32")
}
