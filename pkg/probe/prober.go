package probe

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wanwatch/pkg/config"
	"wanwatch/pkg/model"
)

// Prober fans out probes over all (interface, target) pairs under a bounded
// concurrency limit and returns a complete batch: exactly one result per
// pair, with failures encoded as reachable=false.
type Prober struct {
	pinger  Pinger
	speed   SpeedTester
	timeout time.Duration
	count   int
	limit   int
	log     *zap.Logger
}

func New(pinger Pinger, speed SpeedTester, g config.Global, log *zap.Logger) *Prober {
	limit := g.ConcurrentProbes
	if limit <= 0 {
		limit = 1
	}
	return &Prober{
		pinger:  pinger,
		speed:   speed,
		timeout: g.Timeout,
		count:   g.PingCount,
		limit:   limit,
		log:     log,
	}
}

// Run probes every enabled interface against every target. Each worker
// writes only its own preallocated slot, so the batch comes back ordered by
// (interface, target) with no shared state between workers.
func (p *Prober) Run(ctx context.Context, ifaces []config.InterfaceSpec, targets []config.TargetSpec) []model.ProbeResult {
	results := make([]model.ProbeResult, len(ifaces)*len(targets))

	var g errgroup.Group
	g.SetLimit(p.limit)
	for i, iface := range ifaces {
		for j, target := range targets {
			idx, iface, target := i*len(targets)+j, iface, target
			g.Go(func() error {
				results[idx] = p.probeOne(ctx, iface, target)
				return nil
			})
		}
	}
	_ = g.Wait()
	return results
}

func (p *Prober) probeOne(ctx context.Context, iface config.InterfaceSpec, target config.TargetSpec) model.ProbeResult {
	res := model.ProbeResult{
		Interface: iface.Name,
		Target:    target.Address,
		Weight:    target.Weight,
		TestedAt:  time.Now(),
	}

	// strip a CIDR suffix such as /32 before pinging
	addr := target.Address
	if i := strings.Index(addr, "/"); i > 0 {
		addr = addr[:i]
	}

	stats, err := p.pinger.Ping(ctx, iface.Name, addr, p.count, p.timeout)
	if err != nil {
		p.log.Debug("ping failed",
			zap.String("interface", iface.Name),
			zap.String("target", target.Address),
			zap.Error(err))
		return res
	}
	res.Reachable = stats.Reachable
	res.LatencyMs = stats.AvgLatencyMs
	res.PacketLoss = stats.PacketLoss

	if res.Reachable && target.TestURL != "" && p.speed != nil {
		kbs, err := p.speed.Download(ctx, iface.Name, target.TestURL, 2*p.timeout)
		if err != nil {
			p.log.Debug("speed test failed",
				zap.String("interface", iface.Name),
				zap.String("url", target.TestURL),
				zap.Error(err))
		} else {
			res.SpeedKBs = kbs
			res.HasSpeed = true
		}
	}
	return res
}
