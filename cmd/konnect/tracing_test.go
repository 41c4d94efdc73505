package main

import (
	"bytes"
	"net"
	"testing"

	"github.com/cyberinferno/konnect/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

type stubPeer struct{}

func (stubPeer) ID() uint32           { return 9 }
func (stubPeer) SessionID() string    { return "sess-9" }
func (stubPeer) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6000} }
func (stubPeer) LocalAddr() net.Addr  { return nil }

func TestNewTracerProvider_exportsConnectionSpans(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var out bytes.Buffer
	tp, shutdown, err := newTracerProvider(&out)
	require.NoError(t, err)
	assert.Same(t, tp, otel.GetTracerProvider())

	o := tracing.NewObserver(tracing.WithTracer(tp.Tracer("konnect")))
	o.OnConnected(stubPeer{})
	o.OnDataReceived(stubPeer{}, []byte("x"))
	o.OnDisconnected(stubPeer{})

	shutdown()

	assert.Contains(t, out.String(), tracing.SpanName)
	assert.Contains(t, out.String(), "sess-9")
	assert.Contains(t, out.String(), "127.0.0.1:6000")
}
