package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// Global holds process-wide settings.
// CheckInterval/ProbeTimeout use time.ParseDuration syntax (e.g. "60s").
type Global struct {
	CheckInterval    string  `json:"checkInterval"`
	ProbeTimeout     string  `json:"probeTimeout"`
	PingCount        int     `json:"pingCount"`
	ConcurrentProbes int     `json:"concurrentProbes"`
	FailureThreshold int     `json:"failureThreshold"`
	AutoSwitch       bool    `json:"autoSwitch"`
	ManageRoutes     bool    `json:"manageRoutes"`
	LatencyRefMs     float64 `json:"latencyRefMs"`  // latency sub-score normalization bound
	SpeedRefKBs      float64 `json:"speedRefKbs"`   // throughput sub-score normalization bound
	MetricsListen    string  `json:"metricsListen,omitempty"`
	JournalPath      string  `json:"journalPath,omitempty"`
	LogLevel         string  `json:"logLevel,omitempty"`

	// parsed during Validate
	Interval time.Duration `json:"-"`
	Timeout  time.Duration `json:"-"`
}

// InterfaceSpec describes one monitorable WAN interface. Immutable after load.
type InterfaceSpec struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Priority    int    `json:"priority"` // lower wins ties
	Enabled     bool   `json:"enabled"`
	TableID     int    `json:"tableId,omitempty"` // policy routing table, 0 = none
	Gateway     string `json:"gateway,omitempty"` // override; discovered at apply time when empty
}

// TargetSpec describes one probe destination. Immutable after load.
type TargetSpec struct {
	Address     string  `json:"address"` // IP or prefix
	Description string  `json:"description"`
	TestURL     string  `json:"testUrl,omitempty"` // enables throughput testing
	Weight      float64 `json:"weight"`
	Managed     bool    `json:"managed"` // keep a persisted static route bound to the active interface
}

type Config struct {
	Global     Global          `json:"global"`
	Interfaces []InterfaceSpec `json:"interfaces"`
	Targets    []TargetSpec    `json:"targets"`
}

// Load reads and validates a JSON config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	g := &c.Global
	if g.CheckInterval == "" {
		g.CheckInterval = "60s"
	}
	if g.ProbeTimeout == "" {
		g.ProbeTimeout = "5s"
	}
	if g.PingCount <= 0 {
		g.PingCount = 4
	}
	if g.ConcurrentProbes <= 0 {
		g.ConcurrentProbes = 4
	}
	if g.FailureThreshold <= 0 {
		g.FailureThreshold = 3
	}
	if g.LatencyRefMs <= 0 {
		g.LatencyRefMs = 1000
	}
	if g.SpeedRefKBs <= 0 {
		g.SpeedRefKBs = 1024
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	for i := range c.Targets {
		if c.Targets[i].Weight == 0 {
			c.Targets[i].Weight = 1
		}
	}
}

// Validate checks the loaded configuration and parses the duration fields.
// A validation error is fatal at startup.
func (c *Config) Validate() error {
	var err error
	if c.Global.Interval, err = time.ParseDuration(c.Global.CheckInterval); err != nil {
		return fmt.Errorf("checkInterval: %w", err)
	}
	if c.Global.Timeout, err = time.ParseDuration(c.Global.ProbeTimeout); err != nil {
		return fmt.Errorf("probeTimeout: %w", err)
	}
	if c.Global.Interval <= 0 {
		return fmt.Errorf("checkInterval must be positive")
	}
	if c.Global.Timeout <= 0 {
		return fmt.Errorf("probeTimeout must be positive")
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	for _, t := range c.Targets {
		if t.Address == "" {
			return fmt.Errorf("target with empty address")
		}
		if t.Weight <= 0 {
			return fmt.Errorf("target %s: weight must be positive", t.Address)
		}
	}
	seen := make(map[string]bool, len(c.Interfaces))
	enabled := 0
	for _, i := range c.Interfaces {
		if i.Name == "" {
			return fmt.Errorf("interface with empty name")
		}
		if seen[i.Name] {
			return fmt.Errorf("duplicate interface name: %s", i.Name)
		}
		seen[i.Name] = true
		if i.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one enabled interface is required")
	}
	return nil
}

// EnabledInterfaces returns the enabled interfaces sorted by priority, then name.
func (c *Config) EnabledInterfaces() []InterfaceSpec {
	out := make([]InterfaceSpec, 0, len(c.Interfaces))
	for _, i := range c.Interfaces {
		if i.Enabled {
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Priority != out[b].Priority {
			return out[a].Priority < out[b].Priority
		}
		return out[a].Name < out[b].Name
	})
	return out
}

// Interface looks up a spec by name.
func (c *Config) Interface(name string) (InterfaceSpec, bool) {
	for _, i := range c.Interfaces {
		if i.Name == name {
			return i, true
		}
	}
	return InterfaceSpec{}, false
}

// ManagedTargets returns the targets flagged for persisted-route management.
func (c *Config) ManagedTargets() []TargetSpec {
	out := make([]TargetSpec, 0, len(c.Targets))
	for _, t := range c.Targets {
		if t.Managed {
			out = append(out, t)
		}
	}
	return out
}
