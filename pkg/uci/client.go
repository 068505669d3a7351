// Package uci keeps persisted static routes in sync with the active
// interface through the UCI config store on OpenWrt.
package uci

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// StaticRoute is one route section in the persisted network config.
type StaticRoute struct {
	Section   string `json:"section"`
	Target    string `json:"target"`
	Interface string `json:"interface"`
}

// Client is the persisted-store capability surface. The production
// implementation shells out to uci(8); MemoryClient backs tests.
type Client interface {
	StaticRoutes(ctx context.Context) ([]StaticRoute, error)
	Set(ctx context.Context, key, value string) error
	Revert(ctx context.Context, pkg string) error
	Commit(ctx context.Context, pkg string) error
	ReloadNetwork(ctx context.Context) error
}

// ExecClient drives the uci binary and the network init script.
type ExecClient struct{}

func (ExecClient) StaticRoutes(ctx context.Context) ([]StaticRoute, error) {
	out, err := exec.CommandContext(ctx, "uci", "show", "network").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("uci show network: %v output=%s", err, strings.TrimSpace(string(out)))
	}
	return parseStaticRoutes(string(out)), nil
}

func (ExecClient) Set(ctx context.Context, key, value string) error {
	arg := key + "=" + value
	out, err := exec.CommandContext(ctx, "uci", "set", arg).CombinedOutput()
	if err != nil {
		return fmt.Errorf("uci set %s: %v output=%s", arg, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (ExecClient) Revert(ctx context.Context, pkg string) error {
	out, err := exec.CommandContext(ctx, "uci", "revert", pkg).CombinedOutput()
	if err != nil {
		return fmt.Errorf("uci revert %s: %v output=%s", pkg, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (ExecClient) Commit(ctx context.Context, pkg string) error {
	out, err := exec.CommandContext(ctx, "uci", "commit", pkg).CombinedOutput()
	if err != nil {
		return fmt.Errorf("uci commit %s: %v output=%s", pkg, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (ExecClient) ReloadNetwork(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "/etc/init.d/network", "reload").CombinedOutput()
	if err != nil {
		return fmt.Errorf("network reload: %v output=%s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// parseStaticRoutes reads "uci show network" output, collecting route
// sections and their target/interface options:
//
//	network.route_1_1_1_1=route
//	network.route_1_1_1_1.interface='wan'
//	network.route_1_1_1_1.target='1.1.1.1/32'
func parseStaticRoutes(s string) []StaticRoute {
	sections := make(map[string]*StaticRoute)
	var order []string

	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, "=")
		if !ok || !strings.HasPrefix(key, "network.") {
			continue
		}
		value = strings.Trim(value, "'\"")
		rest := strings.TrimPrefix(key, "network.")

		if value == "route" && !strings.Contains(rest, ".") {
			if _, seen := sections[rest]; !seen {
				sections[rest] = &StaticRoute{Section: rest}
				order = append(order, rest)
			}
			continue
		}
		section, option, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		r, seen := sections[section]
		if !seen {
			continue
		}
		switch option {
		case "target":
			r.Target = value
		case "interface":
			r.Interface = value
		}
	}

	routes := make([]StaticRoute, 0, len(order))
	for _, name := range order {
		routes = append(routes, *sections[name])
	}
	return routes
}
