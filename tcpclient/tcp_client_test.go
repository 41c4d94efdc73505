package tcpclient

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cyberinferno/konnect/codec"
	"github.com/cyberinferno/konnect/config"
	"github.com/cyberinferno/konnect/events"
	"github.com/cyberinferno/konnect/logger"
	"github.com/cyberinferno/konnect/tcpserver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second
const tick = 10 * time.Millisecond

// recorder stores every event it observes.
type recorder struct {
	mu           sync.Mutex
	connected    []events.Peer
	disconnected []events.Peer
	data         []any
}

func (r *recorder) OnConnected(p events.Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, p)
}

func (r *recorder) OnDisconnected(p events.Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected = append(r.disconnected, p)
}

func (r *recorder) OnDataReceived(_ events.Peer, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, data)
}

func (r *recorder) counts() (connected, disconnected, data int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connected), len(r.disconnected), len(r.data)
}

func (r *recorder) received() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.data...)
}

// logBuffer is a bytes.Buffer safe for the engine's concurrent log writes.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// pipeDialer hands out one end of a net.Pipe and serves the other end with fn.
type pipeDialer struct {
	serve func(peer net.Conn)
}

func (d pipeDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	local, peer := net.Pipe()
	go d.serve(peer)
	return local, nil
}

type failingDialer struct {
	err error
}

func (d failingDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	return nil, d.err
}

func newClient(t *testing.T, b *config.Builder) *Client {
	t.Helper()

	cfg, err := b.Build()
	require.NoError(t, err)

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Stop() })

	return c
}

func startServer(t *testing.T, observers ...events.Observer) *tcpserver.Server {
	t.Helper()

	cfg, err := config.NewBuilder(config.DefaultHost).Port(0).RegisterObserver(observers...).Build()
	require.NoError(t, err)

	s, err := tcpserver.New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func builderFor(s *tcpserver.Server) *config.Builder {
	addr := s.Addr().(*net.TCPAddr)
	return config.NewBuilder(addr.IP.String()).Port(addr.Port)
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "Idle", Idle.String())
	assert.Equal(t, "Connecting", Connecting.String())
	assert.Equal(t, "Connected", Connected.String())
	assert.Equal(t, "Closing", Closing.String())
	assert.Equal(t, "Closed", Closed.String())
	assert.Equal(t, "Unknown", ConnectionState(99).String())
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	c := newClient(t, config.NewBuilder(config.DefaultHost))
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Handle())
	assert.Empty(t, c.PeerGreeting())
	assert.ErrorIs(t, c.Send("x"), ErrNotConnected)
}

func TestClient_Start_failures(t *testing.T) {
	t.Run("unreachable endpoint", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := ln.Addr().(*net.TCPAddr).Port
		require.NoError(t, ln.Close())

		rec := &recorder{}
		c := newClient(t, config.NewBuilder("127.0.0.1").Port(port).ConnectTimeout(time.Second).RegisterObserver(rec))

		err = c.Start()
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "dial", connErr.Op)
		assert.Equal(t, Closed, c.State())
		assert.Nil(t, c.Handle())

		connected, disconnected, _ := rec.counts()
		assert.Zero(t, connected)
		assert.Zero(t, disconnected)

		assert.ErrorIs(t, c.Start(), ErrClientClosed)
	})

	t.Run("injected dial failure", func(t *testing.T) {
		boom := errors.New("no route")
		c := newClient(t, config.NewBuilder(config.DefaultHost).Dialer(failingDialer{err: boom}))
		assert.ErrorIs(t, c.Start(), boom)
		assert.Equal(t, Closed, c.State())
	})

	t.Run("missing server greeting times out", func(t *testing.T) {
		c := newClient(t, config.NewBuilder(config.DefaultHost).
			HandshakeTimeout(50*time.Millisecond).
			Dialer(pipeDialer{serve: func(peer net.Conn) {
				_, _ = bufio.NewReader(peer).ReadString('\n')
			}}))

		err := c.Start()
		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "handshake", connErr.Op)
		assert.Equal(t, Closed, c.State())
	})
}

func TestClient_fakeTransport(t *testing.T) {
	rec := &recorder{}
	clientGreeting := make(chan string, 1)

	c := newClient(t, config.NewBuilder(config.DefaultHost).
		RegisterObserver(rec).
		Dialer(pipeDialer{serve: func(peer net.Conn) {
			line, _ := bufio.NewReader(peer).ReadString('\n')
			clientGreeting <- line
			_, _ = peer.Write([]byte("Hello from server fake\nfirst\nsecond\n"))
			_ = peer.Close()
		}}))

	require.NoError(t, c.Start())
	assert.Equal(t, "Hello from server fake", c.PeerGreeting())
	assert.Equal(t, "Hello from client pipe\n", <-clientGreeting)

	assert.Eventually(t, func() bool { return c.State() == Closed }, waitFor, tick)
	c.Stop()

	connected, disconnected, _ := rec.counts()
	assert.Equal(t, 1, connected)
	assert.Equal(t, 1, disconnected)
	assert.Equal(t, []any{[]byte("first"), []byte("second")}, rec.received())
}

func TestClient_endToEnd(t *testing.T) {
	serverRec := &recorder{}
	s := startServer(t, serverRec)

	clientRec := &recorder{}
	c := newClient(t, builderFor(s).RegisterObserver(clientRec))

	require.NoError(t, c.Start())
	assert.Equal(t, Connected, c.State())
	assert.True(t, strings.HasPrefix(c.PeerGreeting(), "Hello from server "), c.PeerGreeting())

	require.Eventually(t, func() bool { n, _, _ := serverRec.counts(); return n == 1 }, waitFor, tick)
	serverRec.mu.Lock()
	assert.Equal(t, c.Handle().LocalAddr().String(), serverRec.connected[0].RemoteAddr().String())
	serverRec.mu.Unlock()

	require.NoError(t, c.Send("ping"))
	require.Eventually(t, func() bool { _, _, n := serverRec.counts(); return n == 1 }, waitFor, tick)
	assert.Equal(t, []any{[]byte("ping")}, serverRec.received())

	require.NoError(t, c.Stop())
	require.Eventually(t, func() bool { _, n, _ := serverRec.counts(); return n == 1 }, waitFor, tick)

	connected, disconnected, data := serverRec.counts()
	assert.Equal(t, 1, connected)
	assert.Equal(t, 1, disconnected)
	assert.Equal(t, 1, data)

	connected, disconnected, _ = clientRec.counts()
	assert.Equal(t, 1, connected)
	assert.Equal(t, 1, disconnected)
}

func TestClient_receivesInOrder(t *testing.T) {
	s := startServer(t)
	rec := &recorder{}
	c := newClient(t, builderFor(s).RegisterObserver(rec))
	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return s.Len() == 1 }, waitFor, tick)

	for _, v := range []string{"a", "b", "c"} {
		assert.Equal(t, 1, s.Broadcast(v))
	}

	require.Eventually(t, func() bool { _, _, n := rec.counts(); return n == 3 }, waitFor, tick)
	assert.Equal(t, []any{[]byte("a"), []byte("b"), []byte("c")}, rec.received())
}

func TestClient_typedCodec(t *testing.T) {
	type reading struct {
		Sensor string  `cbor:"sensor"`
		Value  float64 `cbor:"value"`
	}

	serverRec := &recorder{}
	cfg, err := config.NewBuilder(config.DefaultHost).Port(0).
		Codec(codec.CBOR[reading]()).
		RegisterObserver(serverRec).
		Build()
	require.NoError(t, err)
	s, err := tcpserver.New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	c := newClient(t, builderFor(s).Codec(codec.CBOR[reading]()))
	require.NoError(t, c.Start())

	require.NoError(t, c.Send(reading{Sensor: "t1", Value: 21.5}))
	require.Eventually(t, func() bool { _, _, n := serverRec.counts(); return n == 1 }, waitFor, tick)
	assert.Equal(t, []any{reading{Sensor: "t1", Value: 21.5}}, serverRec.received())
}

func TestClient_remoteClose(t *testing.T) {
	cfg, err := config.NewBuilder(config.DefaultHost).Port(0).StopPolicy(config.CloseConnections).Build()
	require.NoError(t, err)
	s, err := tcpserver.New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	rec := &recorder{}
	c := newClient(t, builderFor(s).RegisterObserver(rec))
	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return s.Len() == 1 }, waitFor, tick)

	require.NoError(t, s.Stop())

	require.Eventually(t, func() bool { return c.State() == Closed }, waitFor, tick)
	require.NoError(t, c.Stop())

	_, disconnected, _ := rec.counts()
	assert.Equal(t, 1, disconnected)
	assert.ErrorIs(t, c.Send("late"), ErrNotConnected)
}

func TestClient_Stop(t *testing.T) {
	t.Run("idempotent with a single disconnect event", func(t *testing.T) {
		s := startServer(t)
		rec := &recorder{}
		c := newClient(t, builderFor(s).RegisterObserver(rec))
		require.NoError(t, c.Start())

		require.NoError(t, c.Stop())
		assert.Equal(t, Closed, c.State())
		_, first, _ := rec.counts()

		require.NoError(t, c.Stop())
		_, second, _ := rec.counts()

		assert.Equal(t, 1, first)
		assert.Equal(t, first, second)
		assert.ErrorIs(t, c.Start(), ErrClientClosed)
		assert.ErrorIs(t, c.Send("x"), ErrNotConnected)
	})

	t.Run("no events after stop returns", func(t *testing.T) {
		s := startServer(t)
		rec := &recorder{}
		c := newClient(t, builderFor(s).RegisterObserver(rec))
		require.NoError(t, c.Start())
		require.Eventually(t, func() bool { return s.Len() == 1 }, waitFor, tick)

		require.NoError(t, c.Stop())
		connected, disconnected, data := rec.counts()

		s.Broadcast("ignored")
		time.Sleep(50 * time.Millisecond)

		c2, d2, n2 := rec.counts()
		assert.Equal(t, []int{connected, disconnected, data}, []int{c2, d2, n2})
	})

	t.Run("stop before start", func(t *testing.T) {
		c := newClient(t, config.NewBuilder(config.DefaultHost))
		require.NoError(t, c.Stop())
		assert.Equal(t, Closed, c.State())
		assert.ErrorIs(t, c.Start(), ErrClientClosed)
	})

	t.Run("start twice", func(t *testing.T) {
		s := startServer(t)
		c := newClient(t, builderFor(s))
		require.NoError(t, c.Start())
		assert.ErrorIs(t, c.Start(), ErrAlreadyStarted)
	})

	t.Run("overlapping stops during handshake all return Closed", func(t *testing.T) {
		accepted := make(chan struct{})
		c := newClient(t, config.NewBuilder(config.DefaultHost).
			HandshakeTimeout(time.Minute).
			Dialer(pipeDialer{serve: func(peer net.Conn) {
				_, _ = bufio.NewReader(peer).ReadString('\n')
				close(accepted)
			}}))

		result := make(chan error, 1)
		go func() { result <- c.Start() }()

		<-accepted
		require.Eventually(t, func() bool { return c.State() == Connecting }, waitFor, tick)

		var wg sync.WaitGroup
		states := make([]ConnectionState, 4)
		for i := range states {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, c.Stop())
				states[i] = c.State()
			}(i)
		}
		wg.Wait()

		assert.Equal(t, []ConnectionState{Closed, Closed, Closed, Closed}, states)
		assert.Error(t, <-result)
	})

	t.Run("overlapping stops while connected all return Closed", func(t *testing.T) {
		s := startServer(t)
		rec := &recorder{}
		c := newClient(t, builderFor(s).RegisterObserver(rec))
		require.NoError(t, c.Start())

		var wg sync.WaitGroup
		states := make([]ConnectionState, 4)
		for i := range states {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, c.Stop())
				states[i] = c.State()
			}(i)
		}
		wg.Wait()

		assert.Equal(t, []ConnectionState{Closed, Closed, Closed, Closed}, states)
		_, disconnected, _ := rec.counts()
		assert.Equal(t, 1, disconnected)
	})

	t.Run("stop during handshake aborts the start", func(t *testing.T) {
		accepted := make(chan struct{})
		c := newClient(t, config.NewBuilder(config.DefaultHost).
			HandshakeTimeout(time.Minute).
			Dialer(pipeDialer{serve: func(peer net.Conn) {
				_, _ = bufio.NewReader(peer).ReadString('\n')
				close(accepted)
			}}))

		result := make(chan error, 1)
		go func() { result <- c.Start() }()

		<-accepted
		require.Eventually(t, func() bool { return c.State() == Connecting }, waitFor, tick)
		require.NoError(t, c.Stop())

		select {
		case err := <-result:
			assert.Error(t, err)
		case <-time.After(waitFor):
			t.Fatal("Start did not return after Stop")
		}
		assert.Equal(t, Closed, c.State())
	})
}

func TestClient_logging(t *testing.T) {
	s := startServer(t)

	var logs logBuffer
	c := newClient(t, builderFor(s).
		EnableLogging().
		Logger(logger.NewZerologLogger(zerolog.New(&logs), "test", zerolog.DebugLevel)))

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return s.Len() == 1 }, waitFor, tick)
	assert.Equal(t, 1, s.Broadcast("payload"))
	require.Eventually(t, func() bool { return strings.Contains(logs.String(), `"message":"received"`) }, waitFor, tick)
	require.NoError(t, c.Stop())

	out := logs.String()
	assert.Contains(t, out, `"message":"connecting"`)
	assert.Contains(t, out, `"addr":"`+s.Addr().String()+`"`)
	assert.Contains(t, out, `"message":"connected to server"`)
	assert.Contains(t, out, `"message":"peer greeting received"`)
	assert.Contains(t, out, `"message":"received"`)
	assert.Contains(t, out, `"message":"disconnected"`)
	assert.Contains(t, out, `"message":"client stopped"`)
	assert.Contains(t, out, `"role":"client"`)
}

func TestClient_loggingFailedDial(t *testing.T) {
	var logs logBuffer
	c := newClient(t, config.NewBuilder(config.DefaultHost).
		Dialer(failingDialer{err: errors.New("refused")}).
		EnableLogging().
		Logger(logger.NewZerologLogger(zerolog.New(&logs), "test", zerolog.DebugLevel)))

	require.Error(t, c.Start())
	assert.Contains(t, logs.String(), `"message":"connection failed"`)
	assert.Contains(t, logs.String(), "refused")
}
