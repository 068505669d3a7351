package model

// InterfaceScore is the per-cycle quality summary for one interface.
type InterfaceScore struct {
	Interface      string  `json:"interface"`
	ReachableCount int     `json:"reachableCount"`
	TargetCount    int     `json:"targetCount"`
	ReachableRatio float64 `json:"reachableRatio"` // weighted, 0.0-1.0
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
	AvgSpeedKBs    float64 `json:"avgSpeedKbs"`
	LatencyScore   float64 `json:"latencyScore"`
	SpeedScore     float64 `json:"speedScore"`
	Score          float64 `json:"score"` // composite, 0-100
}
