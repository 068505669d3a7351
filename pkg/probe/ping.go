package probe

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// PingStats is the parsed outcome of one connectivity probe.
type PingStats struct {
	Reachable    bool
	AvgLatencyMs float64
	PacketLoss   float64 // 0.0-1.0
}

// Pinger measures reachability and latency toward one address, with egress
// forced through a specific interface so results are independent of the
// current default route.
type Pinger interface {
	Ping(ctx context.Context, iface, address string, count int, timeout time.Duration) (PingStats, error)
}

// ExecPinger shells out to the system ping binary.
type ExecPinger struct{}

var (
	pingLossRe = regexp.MustCompile(`([0-9.]+)% packet loss`)
	pingRttRe  = regexp.MustCompile(`= [0-9.]+/([0-9.]+)/`)
)

// Ping runs "ping -I <iface> -c <count> -W <timeout> <address>" and parses
// the summary lines. A non-zero exit with all echoes lost is an unreachable
// result, not an error; errors are reserved for the tool itself failing.
func (ExecPinger) Ping(ctx context.Context, iface, address string, count int, timeout time.Duration) (PingStats, error) {
	if count <= 0 {
		count = 1
	}
	budget := time.Duration(count)*timeout + time.Second
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ping",
		"-I", iface,
		"-c", strconv.Itoa(count),
		"-W", strconv.Itoa(timeoutSeconds(timeout)),
		address,
	)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return PingStats{PacketLoss: 1}, nil
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return PingStats{PacketLoss: 1}, fmt.Errorf("ping %s via %s: %w", address, iface, err)
		}
		// exit status 1 means no replies; fall through and parse what we got
	}

	stats := parsePingOutput(string(out))
	stats.Reachable = err == nil && stats.PacketLoss < 1
	return stats, nil
}

// timeoutSeconds renders a timeout for tools that take whole seconds. A
// sub-second value must become 1, not 0: ping -W 0 and curl -m 0 both mean
// "no limit".
func timeoutSeconds(d time.Duration) int {
	s := int(d / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

func parsePingOutput(s string) PingStats {
	var stats PingStats
	stats.PacketLoss = 1
	if m := pingLossRe.FindStringSubmatch(s); len(m) == 2 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			stats.PacketLoss = v / 100
		}
	}
	if m := pingRttRe.FindStringSubmatch(s); len(m) == 2 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			stats.AvgLatencyMs = v
		}
	}
	return stats
}
