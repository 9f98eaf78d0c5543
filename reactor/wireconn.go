package reactor

import (
	"context"
	"time"
)

// wireConn is the per-transport capability set spec.md's design notes
// describe as replacing an inheritance hierarchy with a tagged variant: a
// small set of framing/handshake functions the Client drives uniformly
// regardless of which of the four transports it is talking over.
type wireConn interface {
	// Dial performs the transport-specific connect and handshake
	// (TLS negotiation, WebSocket upgrade). It runs on the reactor's task
	// goroutine, matching the Java source marshaling connect() onto the
	// selector thread.
	Dial(ctx context.Context, host string, port int) error

	// ReadMessage blocks until one complete application message has
	// arrived, or returns an error. On the length-prefixed transport an
	// oversize frame is reported as a *rpcerror.DecodingFaultError.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one complete application message, applying
	// whatever framing the transport requires.
	WriteMessage(payload []byte) error

	// WriteHeartbeat sends this transport's protocol-specific liveness
	// frame: a ping control frame for WebSocket, a JSON-RPC notification
	// for the length-prefixed binary transport.
	WriteHeartbeat() error

	// Close releases the underlying socket. Idempotent.
	Close() error

	// SetReadDeadline bounds the next ReadMessage call so the client's
	// read loop can periodically notice a stop signal instead of blocking
	// forever on a silent peer.
	SetReadDeadline(t time.Time) error
}
