package probe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const pingOK = `PING 8.8.8.8 (8.8.8.8) 56(84) bytes of data.
64 bytes from 8.8.8.8: icmp_seq=1 ttl=117 time=10.2 ms
64 bytes from 8.8.8.8: icmp_seq=2 ttl=117 time=12.4 ms
64 bytes from 8.8.8.8: icmp_seq=3 ttl=117 time=11.0 ms

--- 8.8.8.8 ping statistics ---
4 packets transmitted, 3 received, 25% packet loss, time 3005ms
rtt min/avg/max/mdev = 10.123/15.456/20.789/3.210 ms
`

const pingAllLost = `PING 203.0.113.1 (203.0.113.1) 56(84) bytes of data.

--- 203.0.113.1 ping statistics ---
4 packets transmitted, 0 received, 100% packet loss, time 3071ms
`

func TestParsePingOutput(t *testing.T) {
	stats := parsePingOutput(pingOK)
	assert.InDelta(t, 0.25, stats.PacketLoss, 1e-9)
	assert.InDelta(t, 15.456, stats.AvgLatencyMs, 1e-9)
}

func TestParsePingOutputAllLost(t *testing.T) {
	stats := parsePingOutput(pingAllLost)
	assert.InDelta(t, 1.0, stats.PacketLoss, 1e-9)
	assert.Zero(t, stats.AvgLatencyMs)
}

func TestParsePingOutputGarbage(t *testing.T) {
	stats := parsePingOutput("command not found")
	assert.InDelta(t, 1.0, stats.PacketLoss, 1e-9)
}

func TestTimeoutSecondsNeverZero(t *testing.T) {
	assert.Equal(t, 1, timeoutSeconds(500*time.Millisecond))
	assert.Equal(t, 1, timeoutSeconds(time.Second))
	assert.Equal(t, 2, timeoutSeconds(2500*time.Millisecond))
	assert.Equal(t, 5, timeoutSeconds(5*time.Second))
}
