package reactor

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/sirupsen/logrus"

	"github.com/Arakmar/vdsm-jsonrpc-go/message"
	"github.com/Arakmar/vdsm-jsonrpc-go/policy"
	"github.com/Arakmar/vdsm-jsonrpc-go/rpcerror"
)

// ClientClosedReason is the disconnect reason a caller-initiated Close
// synthesizes for listeners, matching ReactorClient.CLIENT_CLOSED in the
// Java source.
const ClientClosedReason = "Client close"

// heartbeatExceededReason is the disconnect reason used when the peer has
// gone silent past policy.IncomingHeartbeat.
const heartbeatExceededReason = "Heartbeat exceeded"

type clientState int32

const (
	stateClosed clientState = iota
	stateInitializing
	stateOpen
)

func (s clientState) String() string {
	switch s {
	case stateInitializing:
		return "initializing"
	case stateOpen:
		return "open"
	default:
		return "closed"
	}
}

// MessageListener receives whole decoded JSON-RPC messages, and the
// synthetic network-error messages a Client emits on disconnect. It is the
// bridge the JsonRpcClient facade uses to learn about inbound traffic
// without the reactor package depending on it.
type MessageListener interface {
	OnMessageReceived(message []byte)
}

// MessageListenerFunc adapts a plain function to MessageListener.
type MessageListenerFunc func(message []byte)

func (f MessageListenerFunc) OnMessageReceived(message []byte) { f(message) }

// Client is the concrete ReactorClient: one per connection, owning the
// socket, inbound decoding, the outbound queue, heartbeat clocks, and init
// state, per spec.md section 3's state machine.
type Client struct {
	reactor  *Reactor
	kind     TransportKind
	hostname string
	port     int
	cfg      clientConfig
	log      *logrus.Entry

	mu         sync.Mutex
	state      clientState
	pol        policy.ClientPolicy
	initFuture *Future
	clientID   string
	wire       wireConn

	outbound chan []byte

	listenersMu sync.Mutex
	listeners   []MessageListener

	lastIncomingNanos atomic.Int64
	lastOutgoingNanos atomic.Int64

	gen     *clientGen
	loopsWg sync.WaitGroup
}

// clientGen bundles the stop signal and the once-guard for a single
// connected lifetime of a Client. Connect installs a fresh one on every
// successful dial so a reconnected client's read/write/heartbeat loops get
// a live, unclosed stopCh rather than the previous connection's latched
// one.
type clientGen struct {
	stopCh chan struct{}
	once   sync.Once
}

func newClient(r *Reactor, kind TransportKind, host string, port int, opts ...ClientOption) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o(&cfg)
	}
	c := &Client{
		reactor:  r,
		kind:     kind,
		hostname: host,
		port:     port,
		cfg:      cfg,
		pol:      policy.DefaultConnectionRetryPolicy(),
		outbound: make(chan []byte, cfg.maxOutboundLen),
		gen:      &clientGen{stopCh: make(chan struct{})},
		log: logrus.WithFields(logrus.Fields{
			"component": "reactor.client",
			"transport": kind.String(),
			"host":      host,
			"port":      port,
		}),
	}
	return c, nil
}

// Hostname returns the configured peer hostname.
func (c *Client) Hostname() string { return c.hostname }

// ClientID mirrors ReactorClient.getClientId() in the Java source:
// "hostname:<connection-local id>". The connection-local id is a fresh
// UUID assigned on every successful connect, replacing the Java source's
// reliance on the socket channel's identity hash.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clientID == "" {
		return c.hostname + ":"
	}
	return c.clientID
}

// SetClientPolicy validates and installs a new policy and — matching the
// Java source's "Policy reset" — forces a disconnect if the client was
// already open. The heartbeat loop reads the installed policy on every
// tick; the retry settings apply from the next Connect.
func (c *Client) SetClientPolicy(p policy.ClientPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.pol = p
	open := c.state == stateOpen
	c.mu.Unlock()
	if open {
		c.disconnect("Policy reset")
	}
	return nil
}

// RetryPolicy returns the currently installed policy.
func (c *Client) RetryPolicy() policy.ClientPolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pol
}

// IsOpen reports whether the underlying socket is connected and ready for
// application traffic.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

// IsClosed is defined as the negation of IsOpen, resolving the ambiguity
// spec.md section 9 flags in the Java source between isClosed() and
// isOpen().
func (c *Client) IsClosed() bool { return !c.IsOpen() }

// IsInInit reports whether a handshake (TLS negotiation, WebSocket
// upgrade, or the initial dial) is in progress.
func (c *Client) IsInInit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateInitializing
}

// AddMessageListener registers a listener notified of every whole inbound
// message and of synthetic disconnect messages.
func (c *Client) AddMessageListener(l MessageListener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Client) emit(msg []byte) {
	c.listenersMu.Lock()
	ls := make([]MessageListener, len(c.listeners))
	copy(ls, c.listeners)
	c.listenersMu.Unlock()
	for _, l := range ls {
		l.OnMessageReceived(msg)
	}
}

// Connect blocks the calling goroutine until the socket is Open or the
// configured retries are exhausted, matching ReactorClient.connect() in
// the Java source. It is idempotent: callers racing to connect an already
// Initializing client all wait on the same underlying attempt.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateOpen:
		c.mu.Unlock()
		return nil
	case stateInitializing:
		fut := c.initFuture
		c.mu.Unlock()
		_, err := fut.Wait(ctx)
		return err
	}
	c.state = stateInitializing
	fut := newFuture()
	c.initFuture = fut
	pol := c.pol
	c.mu.Unlock()

	dialFut := c.reactor.QueueFuture(func() (interface{}, error) {
		return nil, c.dial(ctx, pol)
	})
	_, err := dialFut.Wait(ctx)

	c.mu.Lock()
	if err != nil {
		c.state = stateClosed
		c.mu.Unlock()
		wrapped := rpcerror.NewConnectionFailed(err)
		fut.complete(nil, wrapped)
		return wrapped
	}
	c.state = stateOpen
	c.clientID = c.hostname + ":" + uuid.NewString()
	c.gen = &clientGen{stopCh: make(chan struct{})}
	c.mu.Unlock()

	c.updateLastIncoming()
	c.updateLastOutgoing()
	fut.complete(nil, nil)

	c.startLoops()
	return nil
}

// dial runs on the reactor's task goroutine (queued by Connect), matching
// the Java source marshaling the blocking connect().get() onto the
// selector thread. Retries are driven by github.com/juju/retry, the same
// attempt/backoff primitive juju-juju uses for its own dial loops.
func (c *Client) dial(ctx context.Context, pol policy.ClientPolicy) error {
	wire := c.newWire()
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			dialCtx, cancel := context.WithTimeout(ctx, pol.RetryTimeout)
			defer cancel()
			return wire.Dial(dialCtx, c.hostname, c.port)
		},
		Attempts: pol.Retries + 1,
		Delay:    pol.RetryTimeout,
		Clock:    clock.WallClock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.wire = wire
	c.mu.Unlock()
	return nil
}

func (c *Client) newWire() wireConn {
	switch c.kind {
	case Plain:
		return newPlainConn(nil, c.cfg.maxMessageSize)
	case Tls:
		return newPlainConn(c.cfg.tlsConfig, c.cfg.maxMessageSize)
	case Ws:
		return newWsConn(nil, c.cfg.maxMessageSize, c.cfg.wsPath)
	case WsTls:
		return newWsConn(c.cfg.tlsConfig, c.cfg.maxMessageSize, c.cfg.wsPath)
	default:
		return newPlainConn(nil, c.cfg.maxMessageSize)
	}
}

// SendMessage enqueues a framed payload on the outbound queue. It never
// blocks on I/O: the queue is drained by the client's writer goroutine.
// Per spec.md section 9's documented backpressure choice, a full queue
// fails fast with ConnectionLostError instead of blocking the caller.
func (c *Client) SendMessage(payload []byte) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == stateClosed {
		return rpcerror.NewConnectionFailed(errClientClosed)
	}
	select {
	case c.outbound <- payload:
		return nil
	default:
		return rpcerror.NewConnectionLost("outbound queue full")
	}
}

var errClientClosed = &clientClosedSentinel{}

type clientClosedSentinel struct{}

func (*clientClosedSentinel) Error() string { return "client is closed" }

// Close schedules a disconnect and returns a Future completed once the
// socket is closed and listeners have observed the synthetic
// "client closed" message.
func (c *Client) Close() *Future {
	return c.reactor.QueueFuture(func() (interface{}, error) {
		c.disconnect(ClientClosedReason)
		return nil, nil
	})
}

// currentGen returns the stop signal and once-guard for whichever
// connection lifetime is current. Exactly one generation has live loops at
// any moment: Connect cannot install a new one until the previous
// generation's disconnect has already run, since that is what drives the
// state back to stateClosed.
func (c *Client) currentGen() *clientGen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// disconnect is idempotent within one connection's lifetime: repeated
// calls (caller close racing with a read-loop I/O error) only run the
// teardown once, guarded by that lifetime's own clientGen rather than a
// single Client-wide sync.Once, so a later reconnect is not permanently
// latched closed by an earlier disconnect.
func (c *Client) disconnect(reason string) {
	gen := c.currentGen()
	gen.once.Do(func() {
		c.mu.Lock()
		c.state = stateClosed
		// c.wire keeps pointing at the socket closed below, so a loop
		// goroutine that starts after this teardown gets a closed
		// connection, not a nil one, and exits on its first I/O error.
		wire := c.wire
		c.mu.Unlock()

		close(gen.stopCh)
		if wire != nil {
			wire.Close()
		}
		// Loop goroutines are not awaited here: disconnect can itself run
		// on one of them (a read or write error triggers its own
		// teardown), and waiting on loopsWg would deadlock against the
		// very goroutine calling in. They exit on their own once stopCh
		// is closed and the socket they were blocked on is gone.
		c.reactor.unregister(c)

		resp := message.NewErrorResponse(rpcerror.CodeConnectionLost, reason)
		payload := marshalResponse(resp)
		c.log.WithField("reason", reason).Info("disconnected")
		c.emit(payload)
	})
}

func marshalResponse(r *message.Response) []byte {
	b, err := json.Marshal(r)
	if err != nil {
		// Should never happen for a response built from literal fields.
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32002,"message":"connection lost"}}`)
	}
	return b
}

// startLoops launches the per-client goroutines: one blocking reader, one
// queue-draining writer, and one heartbeat ticker. Each client gets its
// own goroutines rather than being multiplexed onto the reactor's single
// loop goroutine, since Go's netpoller already multiplexes blocking
// goroutines over a small OS-thread pool — see the package doc comment in
// reactor.go for the full rationale.
func (c *Client) startLoops() {
	gen := c.currentGen()
	c.loopsWg.Add(3)
	go c.readLoop(gen)
	go c.writeLoop(gen)
	go c.heartbeatLoop(gen)
}

func (c *Client) updateLastIncoming() {
	c.lastIncomingNanos.Store(time.Now().UnixNano())
}

func (c *Client) updateLastOutgoing() {
	c.lastOutgoingNanos.Store(time.Now().UnixNano())
}
