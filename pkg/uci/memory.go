package uci

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryClient is an in-memory Client for tests and dry runs. Staged edits
// become visible in StaticRoutes only after Commit, and Revert discards
// them, mirroring uci's staging behavior.
type MemoryClient struct {
	mu     sync.Mutex
	routes map[string]StaticRoute
	order  []string
	staged []stagedSet

	SetCalls    int
	CommitCalls int
	RevertCalls int
	ReloadCalls int

	FailSet    bool
	FailCommit bool
	FailReload bool
}

type stagedSet struct {
	key   string
	value string
}

func NewMemoryClient(existing ...StaticRoute) *MemoryClient {
	m := &MemoryClient{routes: make(map[string]StaticRoute)}
	for _, r := range existing {
		m.routes[r.Section] = r
		m.order = append(m.order, r.Section)
	}
	return m
}

func (m *MemoryClient) StaticRoutes(ctx context.Context) ([]StaticRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StaticRoute, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.routes[name])
	}
	return out, nil
}

func (m *MemoryClient) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetCalls++
	if m.FailSet {
		return fmt.Errorf("memory uci: set failure injected")
	}
	m.staged = append(m.staged, stagedSet{key: key, value: value})
	return nil
}

func (m *MemoryClient) Revert(ctx context.Context, pkg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RevertCalls++
	m.staged = nil
	return nil
}

func (m *MemoryClient) Commit(ctx context.Context, pkg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitCalls++
	if m.FailCommit {
		return fmt.Errorf("memory uci: commit failure injected")
	}
	for _, s := range m.staged {
		m.apply(s)
	}
	m.staged = nil
	return nil
}

func (m *MemoryClient) ReloadNetwork(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReloadCalls++
	if m.FailReload {
		return fmt.Errorf("memory uci: reload failure injected")
	}
	return nil
}

func (m *MemoryClient) apply(s stagedSet) {
	rest := strings.TrimPrefix(s.key, "network.")
	section, option, hasOption := strings.Cut(rest, ".")
	if !hasOption {
		if s.value == "route" {
			if _, ok := m.routes[section]; !ok {
				m.routes[section] = StaticRoute{Section: section}
				m.order = append(m.order, section)
			}
		}
		return
	}
	r, ok := m.routes[section]
	if !ok {
		return
	}
	switch option {
	case "target":
		r.Target = s.value
	case "interface":
		r.Interface = s.value
	}
	m.routes[section] = r
}
