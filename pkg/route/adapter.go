package route

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Rule is one policy-routing rule as this tool sees it.
type Rule struct {
	Priority int
	OifName  string
	Table    int
}

// Adapter is the narrow capability surface over the kernel's policy routing.
// The production implementation shells out to ip/uci; tests use a fake.
type Adapter interface {
	ListRules(ctx context.Context) ([]Rule, error)
	AddRule(ctx context.Context, r Rule) error
	DeleteRule(ctx context.Context, priority int) error
	ReplaceTableDefault(ctx context.Context, table int, gateway, dev string) error
	ReplaceDefault(ctx context.Context, gateway, dev string) error
	FlushCache(ctx context.Context) error
	Gateway(ctx context.Context, iface string) (string, error)
	DefaultRoute(ctx context.Context) (gateway, dev string, err error)
}

// ExecAdapter drives the ip(8) binary, with a uci fallback for gateway
// discovery on OpenWrt.
type ExecAdapter struct{}

func (ExecAdapter) ListRules(ctx context.Context) ([]Rule, error) {
	out, err := exec.CommandContext(ctx, "ip", "rule", "show").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ip rule show: %v output=%s", err, strings.TrimSpace(string(out)))
	}
	return parseRules(string(out)), nil
}

func (ExecAdapter) AddRule(ctx context.Context, r Rule) error {
	out, err := exec.CommandContext(ctx, "ip", "rule", "add",
		"oif", r.OifName,
		"table", strconv.Itoa(r.Table),
		"priority", strconv.Itoa(r.Priority),
	).CombinedOutput()
	if err != nil && !strings.Contains(string(out), "File exists") {
		return fmt.Errorf("ip rule add priority %d: %v output=%s", r.Priority, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (ExecAdapter) DeleteRule(ctx context.Context, priority int) error {
	out, err := exec.CommandContext(ctx, "ip", "rule", "del",
		"priority", strconv.Itoa(priority),
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip rule del priority %d: %v output=%s", priority, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (ExecAdapter) ReplaceTableDefault(ctx context.Context, table int, gateway, dev string) error {
	out, err := exec.CommandContext(ctx, "ip", "route", "replace", "default",
		"via", gateway, "dev", dev, "table", strconv.Itoa(table),
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip route replace default table %d: %v output=%s", table, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (ExecAdapter) ReplaceDefault(ctx context.Context, gateway, dev string) error {
	out, err := exec.CommandContext(ctx, "ip", "route", "replace", "default",
		"via", gateway, "dev", dev,
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip route replace default: %v output=%s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (ExecAdapter) FlushCache(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "ip", "route", "flush", "cache").CombinedOutput()
	if err != nil {
		return fmt.Errorf("ip route flush cache: %v output=%s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Gateway resolves the live gateway for an interface: uci first (OpenWrt
// keeps DHCP/PPPoE gateways there), then the interface's own route list.
func (ExecAdapter) Gateway(ctx context.Context, iface string) (string, error) {
	if out, err := exec.CommandContext(ctx, "uci", "get",
		fmt.Sprintf("network.%s.gateway", iface)).Output(); err == nil {
		if gw := strings.TrimSpace(string(out)); gw != "" {
			return gw, nil
		}
	}

	out, err := exec.CommandContext(ctx, "ip", "route", "show", "dev", iface).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ip route show dev %s: %v output=%s", iface, err, strings.TrimSpace(string(out)))
	}
	if gw := parseGateway(string(out)); gw != "" {
		return gw, nil
	}
	return "", fmt.Errorf("no gateway found for interface %s", iface)
}

// DefaultRoute reads back the kernel's current default route.
func (ExecAdapter) DefaultRoute(ctx context.Context) (string, string, error) {
	out, err := exec.CommandContext(ctx, "ip", "route", "show", "default").CombinedOutput()
	if err != nil {
		return "", "", fmt.Errorf("ip route show default: %v output=%s", err, strings.TrimSpace(string(out)))
	}
	gw, dev := parseDefault(string(out))
	if gw == "" {
		return "", "", fmt.Errorf("no default route present")
	}
	return gw, dev, nil
}

// parseRules reads "ip rule show" lines such as
// "100:	from all oif wan1 lookup 100".
func parseRules(s string) []Rule {
	var rules []Rule
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		prio, err := strconv.Atoi(strings.TrimSuffix(fields[0], ":"))
		if err != nil {
			continue
		}
		r := Rule{Priority: prio}
		for i := 1; i < len(fields)-1; i++ {
			switch fields[i] {
			case "oif":
				r.OifName = fields[i+1]
			case "lookup", "table":
				if t, err := strconv.Atoi(fields[i+1]); err == nil {
					r.Table = t
				}
			}
		}
		rules = append(rules, r)
	}
	return rules
}

// parseGateway picks the next hop out of a "default via <gw> ..." line.
func parseGateway(s string) string {
	gw, _ := parseDefault(s)
	return gw
}

// parseDefault picks next hop and device out of a "default via <gw> dev <dev>"
// line.
func parseDefault(s string) (gateway, dev string) {
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] != "default" {
			continue
		}
		for i, f := range fields {
			switch f {
			case "via":
				if i+1 < len(fields) {
					gateway = fields[i+1]
				}
			case "dev":
				if i+1 < len(fields) {
					dev = fields[i+1]
				}
			}
		}
		if gateway != "" {
			return gateway, dev
		}
	}
	return "", ""
}
