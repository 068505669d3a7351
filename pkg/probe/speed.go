package probe

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// SpeedTester measures download throughput in KB/s over one interface.
type SpeedTester interface {
	Download(ctx context.Context, iface, url string, timeout time.Duration) (float64, error)
}

// ExecSpeedTester shells out to curl with interface-bound egress.
type ExecSpeedTester struct{}

// Download runs a time-bounded transfer and returns the average speed in
// KB/s. Any transport error yields throughput-absent; reachability is
// judged by the connectivity probe alone.
func (ExecSpeedTester) Download(ctx context.Context, iface, url string, timeout time.Duration) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "curl",
		"--interface", iface,
		"-s",
		"-o", "/dev/null",
		"-m", strconv.Itoa(timeoutSeconds(timeout)),
		"-w", "%{speed_download}",
		url,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("curl %s via %s: %w", url, iface, err)
	}
	bytesPerSec, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse curl speed %q: %w", strings.TrimSpace(string(out)), err)
	}
	return bytesPerSec / 1024, nil
}
