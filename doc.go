// Package jsonrpc is a JSON-RPC 2.0 client runtime for talking to a
// long-lived peer over a persistent connection: plain TCP, TLS, WebSocket,
// or WebSocket over TLS, chosen per client. It tracks in-flight calls by
// id, retries unanswered ones on a policy-driven schedule, detects a silent
// peer via heartbeats, and fails every outstanding call on a client at
// once when its connection is lost.
//
// A Reactor owns connection registration and the socket-level I/O loops;
// a Tracker, shared across every client built on a Reactor, owns retry and
// timeout bookkeeping. JsonRpcClient is the façade most callers use:
//
//	r := reactor.NewReactor(nil)
//	trk := tracker.New(tracker.DefaultPollInterval, nil)
//	c, err := jsonrpc.New(r, trk, reactor.Plain, "vdsm-host", 54321)
//	if err != nil {
//		// ...
//	}
//	if err := c.Connect(ctx); err != nil {
//		// ...
//	}
//	call, err := c.Call("Host.getVMList", nil)
//	resp, err := call.Wait(ctx)
package jsonrpc
