package model

import "time"

// ProbeResult is the outcome of one (interface, target) measurement.
// LatencyMs is meaningful only when Reachable; SpeedKBs only when HasSpeed.
type ProbeResult struct {
	Interface  string    `json:"interface"`
	Target     string    `json:"target"`
	Weight     float64   `json:"weight"`
	Reachable  bool      `json:"reachable"`
	LatencyMs  float64   `json:"latencyMs,omitempty"`
	PacketLoss float64   `json:"packetLoss,omitempty"` // 0.0-1.0
	SpeedKBs   float64   `json:"speedKbs,omitempty"`
	HasSpeed   bool      `json:"hasSpeed,omitempty"`
	TestedAt   time.Time `json:"testedAt"`
}
