// Package score reduces a probe batch into one composite quality score per
// interface. The composite is 0.4*reachability + 0.3*latency + 0.3*throughput
// on a 0-100 scale; the latency and throughput sub-scores are linear clamps
// against configurable reference values.
package score

import (
	"wanwatch/pkg/config"
	"wanwatch/pkg/model"
)

type Scorer struct {
	latencyRefMs float64
	speedRefKBs  float64
}

func New(g config.Global) *Scorer {
	lat, spd := g.LatencyRefMs, g.SpeedRefKBs
	if lat <= 0 {
		lat = 1000
	}
	if spd <= 0 {
		spd = 1024
	}
	return &Scorer{latencyRefMs: lat, speedRefKBs: spd}
}

// Score groups the batch by interface (in first-seen order, so identical
// inputs always yield identical output) and computes weighted sub-scores.
func (s *Scorer) Score(results []model.ProbeResult) []model.InterfaceScore {
	order := make([]string, 0, 4)
	grouped := make(map[string][]model.ProbeResult)
	for _, r := range results {
		if _, ok := grouped[r.Interface]; !ok {
			order = append(order, r.Interface)
		}
		grouped[r.Interface] = append(grouped[r.Interface], r)
	}

	scores := make([]model.InterfaceScore, 0, len(order))
	for _, name := range order {
		scores = append(scores, s.scoreInterface(name, grouped[name]))
	}
	return scores
}

func (s *Scorer) scoreInterface(name string, results []model.ProbeResult) model.InterfaceScore {
	var totalW, reachW float64
	var latSum, latW float64
	var spdSum, spdW float64
	reachable := 0

	for _, r := range results {
		w := r.Weight
		if w <= 0 {
			w = 1
		}
		totalW += w
		if !r.Reachable {
			continue
		}
		reachable++
		reachW += w
		latSum += r.LatencyMs * w
		latW += w
		if r.HasSpeed {
			spdSum += r.SpeedKBs * w
			spdW += w
		}
	}

	sc := model.InterfaceScore{
		Interface:      name,
		ReachableCount: reachable,
		TargetCount:    len(results),
	}
	if totalW > 0 {
		sc.ReachableRatio = reachW / totalW
	}
	if latW > 0 {
		sc.AvgLatencyMs = latSum / latW
		if sc.AvgLatencyMs <= 0 {
			sc.LatencyScore = 100
		} else {
			sc.LatencyScore = clamp(s.latencyRefMs / sc.AvgLatencyMs)
		}
	}
	if spdW > 0 {
		sc.AvgSpeedKBs = spdSum / spdW
		sc.SpeedScore = clamp(sc.AvgSpeedKBs / s.speedRefKBs * 100)
	}
	sc.Score = clamp(0.4*(100*sc.ReachableRatio) + 0.3*sc.LatencyScore + 0.3*sc.SpeedScore)
	return sc
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
