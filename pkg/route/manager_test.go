package route

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"wanwatch/pkg/config"
)

type fakeAdapter struct {
	rules      []Rule
	gateway    string
	defaultGW  string
	defaultDev string

	ops []string

	failListRules      bool
	failReplaceDefault bool
	failGateway        bool
	failDefaultRoute   bool
}

func (f *fakeAdapter) record(format string, args ...any) {
	f.ops = append(f.ops, fmt.Sprintf(format, args...))
}

func (f *fakeAdapter) ListRules(ctx context.Context) ([]Rule, error) {
	f.record("list")
	if f.failListRules {
		return nil, errors.New("list failed")
	}
	return f.rules, nil
}

func (f *fakeAdapter) AddRule(ctx context.Context, r Rule) error {
	f.record("add %d oif %s table %d", r.Priority, r.OifName, r.Table)
	return nil
}

func (f *fakeAdapter) DeleteRule(ctx context.Context, priority int) error {
	f.record("del %d", priority)
	return nil
}

func (f *fakeAdapter) ReplaceTableDefault(ctx context.Context, table int, gateway, dev string) error {
	f.record("table-default %d via %s dev %s", table, gateway, dev)
	return nil
}

func (f *fakeAdapter) ReplaceDefault(ctx context.Context, gateway, dev string) error {
	f.record("default via %s dev %s", gateway, dev)
	if f.failReplaceDefault {
		return errors.New("route replace failed")
	}
	return nil
}

func (f *fakeAdapter) FlushCache(ctx context.Context) error {
	f.record("flush")
	return nil
}

func (f *fakeAdapter) Gateway(ctx context.Context, iface string) (string, error) {
	f.record("gateway %s", iface)
	if f.failGateway {
		return "", errors.New("no gateway")
	}
	return f.gateway, nil
}

func (f *fakeAdapter) DefaultRoute(ctx context.Context) (string, string, error) {
	f.record("show-default")
	if f.failDefaultRoute {
		return "", "", errors.New("no default route present")
	}
	return f.defaultGW, f.defaultDev, nil
}

func testIfaces() []config.InterfaceSpec {
	return []config.InterfaceSpec{
		{Name: "wan_cm", Priority: 1, Enabled: true, TableID: 100, Gateway: "10.1.0.1"},
		{Name: "wan_ct", Priority: 2, Enabled: true, TableID: 101},
	}
}

func TestApplyAddsBeforeRemoving(t *testing.T) {
	// wan_ct currently active (priority 101); switching to wan_cm
	fake := &fakeAdapter{
		rules: []Rule{
			{Priority: 101, OifName: "wan_ct", Table: 101},
			{Priority: 32766, Table: 254}, // kernel default, outside our range
		},
		defaultGW:  "10.1.0.1",
		defaultDev: "wan_cm",
	}
	m := NewManager(fake, testIfaces(), zap.NewNop())

	require.NoError(t, m.Apply(context.Background(), testIfaces()[0]))

	assert.Equal(t, []string{
		"list",
		"add 100 oif wan_cm table 100",
		"table-default 100 via 10.1.0.1 dev wan_cm",
		"default via 10.1.0.1 dev wan_cm",
		"del 101",
		"flush",
		"show-default",
	}, fake.ops, "stale rule removal must come after the new path is installed")
}

func TestApplyIsIdempotent(t *testing.T) {
	fake := &fakeAdapter{rules: []Rule{
		{Priority: 100, OifName: "wan_cm", Table: 100},
	}}
	m := NewManager(fake, testIfaces(), zap.NewNop())

	require.NoError(t, m.Apply(context.Background(), testIfaces()[0]))

	for _, op := range fake.ops {
		assert.NotContains(t, op, "add", "correct rule must not be re-added")
		assert.NotContains(t, op, "del", "correct rule must not be deleted")
	}
}

func TestApplyReplacesSquattedPriority(t *testing.T) {
	fake := &fakeAdapter{rules: []Rule{
		{Priority: 100, OifName: "wan_old", Table: 55},
	}}
	m := NewManager(fake, testIfaces(), zap.NewNop())

	require.NoError(t, m.Apply(context.Background(), testIfaces()[0]))

	assert.Contains(t, fake.ops, "del 100")
	assert.Contains(t, fake.ops, "add 100 oif wan_cm table 100")
}

func TestApplyAbortsRemainingStepsOnFailure(t *testing.T) {
	fake := &fakeAdapter{
		failReplaceDefault: true,
		rules:              []Rule{{Priority: 101, OifName: "wan_ct", Table: 101}},
	}
	m := NewManager(fake, testIfaces(), zap.NewNop())

	err := m.Apply(context.Background(), testIfaces()[0])
	require.Error(t, err)

	for _, op := range fake.ops {
		assert.NotContains(t, op, "del", "stale rules stay when a step fails")
		assert.NotEqual(t, "flush", op)
	}
}

func TestApplyNeverTouchesForeignRules(t *testing.T) {
	fake := &fakeAdapter{rules: []Rule{
		{Priority: 50, Table: 5},       // below our range
		{Priority: 1005, Table: 9},     // above our range
		{Priority: 32766, Table: 254},  // kernel main
	}}
	m := NewManager(fake, testIfaces(), zap.NewNop())

	require.NoError(t, m.Apply(context.Background(), testIfaces()[0]))

	for _, op := range fake.ops {
		assert.NotContains(t, op, "del")
	}
}

func TestApplyDiscoversGatewayWhenUnset(t *testing.T) {
	fake := &fakeAdapter{gateway: "192.0.2.1"}
	m := NewManager(fake, testIfaces(), zap.NewNop())

	require.NoError(t, m.Apply(context.Background(), testIfaces()[1]))

	assert.Contains(t, fake.ops, "gateway wan_ct")
	assert.Contains(t, fake.ops, "default via 192.0.2.1 dev wan_ct")
}

func TestApplyVerifiesDefaultRouteAfterSwitch(t *testing.T) {
	fake := &fakeAdapter{defaultGW: "10.1.0.1", defaultDev: "wan_cm"}
	core, logged := observer.New(zap.InfoLevel)
	m := NewManager(fake, testIfaces(), zap.New(core))

	require.NoError(t, m.Apply(context.Background(), testIfaces()[0]))

	assert.Equal(t, "show-default", fake.ops[len(fake.ops)-1], "verification reads the route back last")
	assert.Equal(t, 1, logged.FilterMessage("switch verified").Len())
}

func TestApplyVerificationMismatchIsLoggedNotFatal(t *testing.T) {
	// kernel still reports the old path
	fake := &fakeAdapter{defaultGW: "10.2.0.1", defaultDev: "wan_ct"}
	core, logged := observer.New(zap.WarnLevel)
	m := NewManager(fake, testIfaces(), zap.New(core))

	require.NoError(t, m.Apply(context.Background(), testIfaces()[0]), "a failed verification never fails the apply")
	assert.Equal(t, 1, logged.FilterMessage("default route does not match applied interface").Len())
}

func TestApplyVerificationErrorIsLoggedNotFatal(t *testing.T) {
	fake := &fakeAdapter{failDefaultRoute: true}
	core, logged := observer.New(zap.WarnLevel)
	m := NewManager(fake, testIfaces(), zap.New(core))

	require.NoError(t, m.Apply(context.Background(), testIfaces()[0]))
	assert.Equal(t, 1, logged.FilterMessage("switch verification failed").Len())
}

func TestApplyFailsWhenGatewayUnresolvable(t *testing.T) {
	fake := &fakeAdapter{failGateway: true}
	m := NewManager(fake, testIfaces(), zap.NewNop())

	err := m.Apply(context.Background(), testIfaces()[1])
	require.Error(t, err)
	assert.Len(t, fake.ops, 1, "nothing beyond gateway resolution may run")
}
