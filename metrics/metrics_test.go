package metrics

import (
	"net"
	"testing"
	"time"

	"github.com/cyberinferno/konnect/config"
	"github.com/cyberinferno/konnect/tcpclient"
	"github.com/cyberinferno/konnect/tcpserver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserver_counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(WithRegistry(reg), WithSubsystem("server"))

	o.OnConnected(nil)
	o.OnConnected(nil)
	o.OnDataReceived(nil, []byte("a"))
	o.OnDisconnected(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.disconnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.units))

	n, err := testutil.GatherAndCount(reg,
		"konnect_server_connections_total",
		"konnect_server_disconnections_total",
		"konnect_server_active_connections",
		"konnect_server_data_units_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestObserver_options(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewObserver(
		WithRegistry(reg),
		WithNamespace("edge"),
		WithConstLabels(prometheus.Labels{"node": "n1"}),
	)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	for _, mf := range families {
		assert.Contains(t, mf.GetName(), "edge_")
		require.Len(t, mf.GetMetric(), 1)
		labels := mf.GetMetric()[0].GetLabel()
		require.Len(t, labels, 1)
		assert.Equal(t, "node", labels[0].GetName())
		assert.Equal(t, "n1", labels[0].GetValue())
	}
}

func TestObserver_duplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewObserver(WithRegistry(reg))
	assert.Panics(t, func() { NewObserver(WithRegistry(reg)) })
}

func TestObserver_withServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(WithRegistry(reg), WithSubsystem("server"))

	cfg, err := config.NewBuilder(config.DefaultHost).Port(0).RegisterObserver(o).Build()
	require.NoError(t, err)
	s, err := tcpserver.New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	addr := s.Addr().(*net.TCPAddr)
	ccfg, err := config.NewBuilder(addr.IP.String()).Port(addr.Port).Build()
	require.NoError(t, err)
	c, err := tcpclient.New(ccfg)
	require.NoError(t, err)
	require.NoError(t, c.Start())

	require.NoError(t, c.Send("one"))
	require.NoError(t, c.Send("two"))
	require.Eventually(t, func() bool { return testutil.ToFloat64(o.units) == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(o.active))

	require.NoError(t, c.Stop())
	require.Eventually(t, func() bool { return testutil.ToFloat64(o.active) == 0 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(o.connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.disconnections))
}
