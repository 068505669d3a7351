package uci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const uciShowNetwork = `network.loopback=interface
network.loopback.device='lo'
network.wan_cm=interface
network.wan_cm.proto='dhcp'
network.route_1_1_1_1_32=route
network.route_1_1_1_1_32.interface='wan_cm'
network.route_1_1_1_1_32.target='1.1.1.1/32'
network.@route[0]=route
network.@route[0].interface='wan_ct'
network.@route[0].target='9.9.9.9'
network.office_vpn=route
network.office_vpn.interface='wan_ct'
network.office_vpn.target='172.16.0.0/12'
`

func TestParseStaticRoutes(t *testing.T) {
	routes := parseStaticRoutes(uciShowNetwork)
	require.Len(t, routes, 3)

	assert.Equal(t, StaticRoute{
		Section: "route_1_1_1_1_32", Target: "1.1.1.1/32", Interface: "wan_cm",
	}, routes[0])
	assert.Equal(t, StaticRoute{
		Section: "@route[0]", Target: "9.9.9.9", Interface: "wan_ct",
	}, routes[1])
	assert.Equal(t, "office_vpn", routes[2].Section)
}

func TestParseStaticRoutesIgnoresNonRouteSections(t *testing.T) {
	routes := parseStaticRoutes("network.lan=interface\nnetwork.lan.proto='static'\n")
	assert.Empty(t, routes)
}

func TestParseStaticRoutesEmpty(t *testing.T) {
	assert.Empty(t, parseStaticRoutes(""))
}
