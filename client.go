package jsonrpc

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Arakmar/vdsm-jsonrpc-go/message"
	"github.com/Arakmar/vdsm-jsonrpc-go/policy"
	"github.com/Arakmar/vdsm-jsonrpc-go/reactor"
	"github.com/Arakmar/vdsm-jsonrpc-go/rpcerror"
	"github.com/Arakmar/vdsm-jsonrpc-go/tracker"
)

var errTransportClosed = errors.New("jsonrpc: transport is closed")

// CallSpec names one constituent request of a BatchCall: a method and its
// parameters, marshaled the same way a single Call's params are.
type CallSpec struct {
	Method string
	Params interface{}
}

// JsonRpcClient is the facade spec.md section 2 describes: it owns request
// id minting, routes inbound responses to the tracker, and exposes the two
// retry policies the Java source keeps distinct — the transport-level
// policy governing connect retries and heartbeats (SetClientRetryPolicy)
// and the call-level policy governing per-request retry and timeout
// (SetRetryPolicy).
type JsonRpcClient struct {
	reactorClient *reactor.Client
	tracker       *tracker.Tracker
	log           *logrus.Entry

	ids idGenerator

	mu                     sync.Mutex
	closed                 bool
	callPolicy             policy.ClientPolicy
	resetConnectionOnRetry bool
}

// New wires a fresh JsonRpcClient around a reactor-managed connection and a
// shared Tracker. The reactor client is created but not connected; call
// Connect to dial.
func New(r *reactor.Reactor, trk *tracker.Tracker, kind reactor.TransportKind, host string, port int, opts ...reactor.ClientOption) (*JsonRpcClient, error) {
	rc, err := r.CreateClient(kind, host, port, opts...)
	if err != nil {
		return nil, err
	}
	c := &JsonRpcClient{
		reactorClient: rc,
		tracker:       trk,
		callPolicy:    policy.DefaultConnectionRetryPolicy(),
		log: logrus.WithFields(logrus.Fields{
			"component": "jsonrpc.client",
			"host":      host,
			"port":      port,
		}),
	}
	rc.AddMessageListener(reactor.MessageListenerFunc(c.onMessage))
	return c, nil
}

// Connect dials the underlying transport, retrying per the transport
// policy. It blocks until the connection is open or ctx expires.
func (c *JsonRpcClient) Connect(ctx context.Context) error {
	return c.reactorClient.Connect(ctx)
}

// Close disconnects the underlying transport. The resulting synthetic
// disconnect message flows back through onMessage as an issue-dispatch
// event, failing every call still in flight with a ClientClosedError —
// callers do not need to fail those calls themselves.
func (c *JsonRpcClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	_, err := c.reactorClient.Close().Get()
	return err
}

// IsOpen reports whether the underlying transport is connected.
func (c *JsonRpcClient) IsOpen() bool { return c.reactorClient.IsOpen() }

// IsClosed is the negation of IsOpen.
func (c *JsonRpcClient) IsClosed() bool { return c.reactorClient.IsClosed() }

// GetHostname returns the configured peer hostname.
func (c *JsonRpcClient) GetHostname() string { return c.reactorClient.Hostname() }

// GetClientId returns the transport's "hostname:connection-id" identity,
// fresh on every successful connect.
func (c *JsonRpcClient) GetClientId() string { return c.reactorClient.ClientID() }

// SetClientRetryPolicy installs the transport-level policy: connect
// retries and heartbeat cadence. Changing it on an already-open client
// disconnects that client, matching ReactorClient.setClientPolicy in the
// Java source; it stays closed until Connect is called again.
func (c *JsonRpcClient) SetClientRetryPolicy(p policy.ClientPolicy) error {
	return c.reactorClient.SetClientPolicy(p)
}

// GetClientRetryPolicy returns the transport-level policy currently
// installed.
func (c *JsonRpcClient) GetClientRetryPolicy() policy.ClientPolicy {
	return c.reactorClient.RetryPolicy()
}

// SetRetryPolicy installs the call-level policy applied to every Call and
// BatchCall issued after this point: how many times the tracker retries an
// unanswered request and how long each attempt is given. It is distinct
// from SetClientRetryPolicy, matching the split spec.md section 9 resolves
// between JsonRpcClient's retry policy and ReactorClient's.
func (c *JsonRpcClient) SetRetryPolicy(p policy.ClientPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.callPolicy = p
	c.mu.Unlock()
	return nil
}

// GetRetryPolicy returns the call-level policy currently installed.
func (c *JsonRpcClient) GetRetryPolicy() policy.ClientPolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callPolicy
}

// SetResetConnectionOnRetry controls whether a retried call first tears
// down and reconnects the transport (matching a stateful peer that forgets
// in-flight requests across any I/O hiccup) or simply resends on the
// existing socket. It defaults to false.
func (c *JsonRpcClient) SetResetConnectionOnRetry(reset bool) {
	c.mu.Lock()
	c.resetConnectionOnRetry = reset
	c.mu.Unlock()
}

// Call submits a single request and returns a handle that completes when a
// matching response arrives, the tracker's retries are exhausted, or the
// connection is lost. The request is encoded before anything is
// registered, so an encoding failure never leaves an orphaned tracker
// entry.
func (c *JsonRpcClient) Call(method string, params interface{}) (*Call, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, rpcerror.NewClientClosed()
	}
	pol := c.callPolicy
	resetConn := c.resetConnectionOnRetry
	c.mu.Unlock()

	// A disconnect the caller did not initiate (heartbeat expiry, I/O
	// error) leaves the underlying transport Closed without the caller
	// ever calling Close. Per spec.md section 8's heartbeat scenario,
	// calls submitted in that window fail synchronously with
	// ConnectionFailed rather than being queued to time out later.
	if !c.reactorClient.IsOpen() && !c.reactorClient.IsInInit() {
		return nil, rpcerror.NewConnectionFailed(errTransportClosed)
	}

	id := c.ids.next()
	req, err := message.NewRequest(id, method, params)
	if err != nil {
		return nil, rpcerror.NewEncodingFault(err)
	}
	payload, err := message.EncodeRequest(req)
	if err != nil {
		return nil, rpcerror.NewEncodingFault(err)
	}

	call := newCall(req)
	if err := c.tracker.RegisterCall(req, call); err != nil {
		return nil, err
	}
	tracking := tracker.NewResponseTracking(req, call, pol, c.reactorClient, resetConn, c.ids.next)
	c.tracker.RegisterTrackingRequest(req, tracking)

	// A send failure here does not fail the call synchronously: the
	// tracking record installed above still drives it to a retry or a
	// CallTimeoutError, the same "finally" behavior the Java source's
	// call() method has when the channel write throws.
	if err := c.reactorClient.SendMessage(payload); err != nil {
		c.log.WithError(err).WithField("request_id", id).Warn("send failed, leaving call to retry/timeout")
	}
	return call, nil
}

// Notify submits a request that expects no response. It bypasses the
// tracker entirely.
func (c *JsonRpcClient) Notify(method string, params interface{}) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return rpcerror.NewClientClosed()
	}

	req, err := message.NewNotification(method, params)
	if err != nil {
		return rpcerror.NewEncodingFault(err)
	}
	payload, err := message.EncodeRequest(req)
	if err != nil {
		return rpcerror.NewEncodingFault(err)
	}
	return c.reactorClient.SendMessage(payload)
}

// BatchCall submits every spec as one JSON-RPC batch and returns a single
// handle whose Wait assembles the responses back into specs' order, per
// spec.md section 5.
func (c *JsonRpcClient) BatchCall(specs []CallSpec) (*BatchCall, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, rpcerror.NewClientClosed()
	}
	pol := c.callPolicy
	resetConn := c.resetConnectionOnRetry
	c.mu.Unlock()

	if !c.reactorClient.IsOpen() && !c.reactorClient.IsInInit() {
		return nil, rpcerror.NewConnectionFailed(errTransportClosed)
	}

	reqs := make([]*message.Request, 0, len(specs))
	for _, s := range specs {
		id := c.ids.next()
		req, err := message.NewRequest(id, s.Method, s.Params)
		if err != nil {
			return nil, rpcerror.NewEncodingFault(err)
		}
		reqs = append(reqs, req)
	}
	payload, err := message.EncodeBatch(reqs)
	if err != nil {
		return nil, rpcerror.NewEncodingFault(err)
	}

	batch := newBatchCall(reqs)
	for _, req := range reqs {
		if err := c.tracker.RegisterCall(req, batch); err != nil {
			return nil, err
		}
		tracking := tracker.NewResponseTracking(req, batch, pol, c.reactorClient, resetConn, c.ids.next)
		c.tracker.RegisterTrackingRequest(req, tracking)
	}

	if err := c.reactorClient.SendMessage(payload); err != nil {
		c.log.WithError(err).Warn("batch send failed, leaving batch to retry/timeout")
	}
	return batch, nil
}

// onMessage is the reactor.MessageListener callback: every whole inbound
// message, plus the synthetic disconnect message a Client emits on
// teardown, passes through here.
func (c *JsonRpcClient) onMessage(payload []byte) {
	if message.LooksLikeBatch(payload) {
		responses, err := message.DecodeBatch(payload)
		if err != nil {
			c.log.WithError(err).Warn("discarding malformed batch response")
			return
		}
		for _, resp := range responses {
			c.routeResponse(resp)
		}
		return
	}

	resp, err := message.Decode(payload)
	if err != nil {
		c.log.WithError(err).Warn("discarding malformed response")
		return
	}
	c.routeResponse(resp)
}

// routeResponse is processResponse from spec.md section 5: a null id marks
// a protocol-level fault dispatched to every call in flight on this
// client; a known id completes exactly the one call registered under it.
func (c *JsonRpcClient) routeResponse(resp *message.Response) {
	if resp.HasNullID() {
		c.tracker.ProcessIssue(c.reactorClient, responseToIssueError(resp))
		return
	}

	id, ok := resp.IDString()
	if !ok {
		c.log.Warn("discarding response with a non-string id")
		return
	}

	call := c.tracker.RemoveCall(id)
	if call == nil {
		c.log.WithField("request_id", id).Warn("response for unknown or already-completed call")
		return
	}
	call.AddResponse(resp)
}

func responseToIssueError(resp *message.Response) error {
	if resp.Error == nil {
		return rpcerror.NewConnectionLost("protocol error with no detail")
	}
	if resp.Error.Message == reactor.ClientClosedReason {
		return rpcerror.NewClientClosed()
	}
	return rpcerror.NewConnectionLost(resp.Error.Message)
}
