package reactor

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arakmar/vdsm-jsonrpc-go/policy"
)

// echoListener accepts one connection, echoes every length-prefixed frame
// it receives back verbatim, and closes when stop is closed.
func echoListener(t *testing.T) (addr string, stop func()) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var header [4]byte
			if _, err := io.ReadFull(conn, header[:]); err != nil {
				return
			}
			n := binary.BigEndian.Uint32(header[:])
			body := make([]byte, n)
			if _, err := io.ReadFull(conn, body); err != nil {
				return
			}
			frame := EncodeFrame(body)
			if _, err := conn.Write(frame); err != nil {
				return
			}
		}
	}()
	go func() {
		<-done
		l.Close()
	}()
	return l.Addr().String(), func() { close(done) }
}

// multiEchoListener is echoListener's multi-connection counterpart: it
// accepts a new connection every time the previous one closes, for tests
// that reconnect against the same address.
func multiEchoListener(t *testing.T) (addr string, stop func()) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				for {
					var header [4]byte
					if _, err := io.ReadFull(conn, header[:]); err != nil {
						return
					}
					n := binary.BigEndian.Uint32(header[:])
					body := make([]byte, n)
					if _, err := io.ReadFull(conn, body); err != nil {
						return
					}
					frame := EncodeFrame(body)
					if _, err := conn.Write(frame); err != nil {
						return
					}
				}
			}()
		}
	}()
	return l.Addr().String(), func() { l.Close() }
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestClientConnectSendReceive(t *testing.T) {
	addr, stop := echoListener(t)
	defer stop()
	host, port := splitHostPort(t, addr)

	r := NewReactor(nil)
	defer r.Shutdown()

	c, err := r.CreateClient(Plain, host, port)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.IsOpen())
	assert.False(t, c.IsClosed())

	received := make(chan []byte, 1)
	c.AddMessageListener(MessageListenerFunc(func(msg []byte) {
		received <- msg
	}))

	require.NoError(t, c.SendMessage([]byte(`{"hello":"world"}`)))

	select {
	case msg := <-received:
		assert.Equal(t, `{"hello":"world"}`, string(msg))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

// TestClientReconnectAfterClose exercises that a Client closed and then
// Connect-ed again gets live read/write/heartbeat loops rather than loops
// pinned to the previous connection's already-closed stop signal.
func TestClientReconnectAfterClose(t *testing.T) {
	addr, stop := multiEchoListener(t)
	defer stop()
	host, port := splitHostPort(t, addr)

	r := NewReactor(nil)
	defer r.Shutdown()

	c, err := r.CreateClient(Plain, host, port)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	_, err = c.Close().Get()
	require.NoError(t, err)
	assert.True(t, c.IsClosed())

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	require.NoError(t, c.Connect(ctx2))
	assert.True(t, c.IsOpen())

	received := make(chan []byte, 1)
	c.AddMessageListener(MessageListenerFunc(func(msg []byte) {
		received <- msg
	}))

	require.NoError(t, c.SendMessage([]byte(`{"reconnected":true}`)))

	select {
	case msg := <-received:
		assert.Equal(t, `{"reconnected":true}`, string(msg))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echo after reconnect")
	}
}

func TestClientCloseEmitsSyntheticDisconnect(t *testing.T) {
	addr, stop := echoListener(t)
	defer stop()
	host, port := splitHostPort(t, addr)

	r := NewReactor(nil)
	defer r.Shutdown()

	c, err := r.CreateClient(Plain, host, port)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	received := make(chan []byte, 1)
	c.AddMessageListener(MessageListenerFunc(func(msg []byte) {
		received <- msg
	}))

	_, err = c.Close().Get()
	require.NoError(t, err)
	assert.True(t, c.IsClosed())

	select {
	case msg := <-received:
		assert.Contains(t, string(msg), "Client close")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for synthetic disconnect message")
	}
}

func TestClientHeartbeatExpiryDisconnects(t *testing.T) {
	addr, stop := echoListener(t)
	defer stop()
	host, port := splitHostPort(t, addr)

	r := NewReactor(nil)
	defer r.Shutdown()

	c, err := r.CreateClient(Plain, host, port)
	require.NoError(t, err)

	require.NoError(t, c.SetClientPolicy(policy.ClientPolicy{
		Retries:           1,
		RetryTimeout:      time.Second,
		IncomingHeartbeat: 100 * time.Millisecond,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	assert.Eventually(t, func() bool {
		return c.IsClosed()
	}, 3*time.Second, 20*time.Millisecond)
}

// TestSendMessageFailsFastWhenQueueFull exercises spec.md section 9's
// documented backpressure choice directly against the outbound channel,
// without a write loop draining it: a full queue fails the caller
// immediately with ConnectionLost rather than blocking sendMessage.
func TestSendMessageFailsFastWhenQueueFull(t *testing.T) {
	r := NewReactor(nil)
	defer r.Shutdown()

	c, err := r.CreateClient(Plain, "127.0.0.1", 1, WithMaxOutboundQueue(1))
	require.NoError(t, err)

	c.mu.Lock()
	c.state = stateOpen
	c.mu.Unlock()

	require.NoError(t, c.SendMessage([]byte("first")))
	err = c.SendMessage([]byte("second"))
	require.Error(t, err)
}

func TestClientSendMessageOnClosedClient(t *testing.T) {
	r := NewReactor(nil)
	defer r.Shutdown()

	c, err := r.CreateClient(Plain, "127.0.0.1", 1)
	require.NoError(t, err)

	err = c.SendMessage([]byte("x"))
	require.Error(t, err)
}
