package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ipRuleShow = `0:	from all lookup local
100:	from all oif wan_cm lookup 100
101:	from all oif wan_ct lookup 101
32766:	from all lookup main
32767:	from all lookup default
`

func TestParseRules(t *testing.T) {
	rules := parseRules(ipRuleShow)
	require.Len(t, rules, 5)

	assert.Equal(t, Rule{Priority: 100, OifName: "wan_cm", Table: 100}, rules[1])
	assert.Equal(t, Rule{Priority: 101, OifName: "wan_ct", Table: 101}, rules[2])
	assert.Equal(t, 32766, rules[3].Priority)
	assert.Empty(t, rules[3].OifName)
}

func TestParseRulesIgnoresGarbage(t *testing.T) {
	assert.Empty(t, parseRules("not a rule line\n\n"))
}

func TestParseGateway(t *testing.T) {
	out := `default via 192.168.8.1 dev wan_cm proto dhcp src 192.168.8.10 metric 100
192.168.8.0/24 proto kernel scope link src 192.168.8.10
`
	assert.Equal(t, "192.168.8.1", parseGateway(out))
}

func TestParseGatewayNoDefault(t *testing.T) {
	assert.Empty(t, parseGateway("192.168.8.0/24 proto kernel scope link\n"))
}

func TestParseDefault(t *testing.T) {
	gw, dev := parseDefault("default via 10.64.0.1 dev wan_ct proto static metric 20\n")
	assert.Equal(t, "10.64.0.1", gw)
	assert.Equal(t, "wan_ct", dev)
}

func TestParseDefaultNoRoute(t *testing.T) {
	gw, dev := parseDefault("10.64.0.0/16 dev wan_ct proto kernel scope link\n")
	assert.Empty(t, gw)
	assert.Empty(t, dev)
}
