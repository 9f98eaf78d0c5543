// Package rpcerror defines the error kinds a JSON-RPC client call or
// connection can fail with, per spec.md section 7. Synchronous faults
// (encoding, duplicate id, closed client) are returned directly to the
// submitter; asynchronous faults complete the returned Call instead.
package rpcerror

import "github.com/pkg/errors"

// Standard JSON-RPC 2.0 error codes, plus the implementation-defined range
// this client uses for internal conditions the wire protocol has no code
// for.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeCallTimeout marks a response synthesized locally after retries
	// were exhausted without a reply from the peer.
	CodeCallTimeout = -32001
	// CodeConnectionLost marks a response synthesized locally after the
	// connection died or was closed while calls were outstanding.
	CodeConnectionLost = -32002
)

// ConnectionFailedError is returned when opening a socket or completing its
// handshake (TLS negotiation, WebSocket upgrade) does not succeed within
// policy-bounded retries.
type ConnectionFailedError struct {
	cause error
}

func NewConnectionFailed(cause error) *ConnectionFailedError {
	return &ConnectionFailedError{cause: cause}
}

func (e *ConnectionFailedError) Error() string {
	if e.cause == nil {
		return "jsonrpc: connection failed"
	}
	return errors.Wrap(e.cause, "jsonrpc: connection failed").Error()
}

func (e *ConnectionFailedError) Unwrap() error { return e.cause }

// ConnectionLostError marks a mid-session I/O error or heartbeat expiry. It
// is delivered to every in-flight call on the affected client via issue
// dispatch.
type ConnectionLostError struct {
	Reason string
}

func NewConnectionLost(reason string) *ConnectionLostError {
	return &ConnectionLostError{Reason: reason}
}

func (e *ConnectionLostError) Error() string {
	return "jsonrpc: connection lost: " + e.Reason
}

// EncodingFaultError marks a request that failed to serialize. It is
// surfaced synchronously; no tracker entry is ever created for it.
type EncodingFaultError struct {
	cause error
}

func NewEncodingFault(cause error) *EncodingFaultError {
	return &EncodingFaultError{cause: cause}
}

func (e *EncodingFaultError) Error() string {
	return errors.Wrap(e.cause, "jsonrpc: encoding fault").Error()
}

func (e *EncodingFaultError) Unwrap() error { return e.cause }

// DecodingFaultError marks inbound stream corruption. It always closes the
// client as a ConnectionLostError.
type DecodingFaultError struct {
	cause error
}

func NewDecodingFault(cause error) *DecodingFaultError {
	return &DecodingFaultError{cause: cause}
}

func (e *DecodingFaultError) Error() string {
	return errors.Wrap(e.cause, "jsonrpc: decoding fault").Error()
}

func (e *DecodingFaultError) Unwrap() error { return e.cause }

// RequestAlreadyInFlightError is returned synchronously when a request
// whose id is already tracked is submitted again.
type RequestAlreadyInFlightError struct {
	ID string
}

func NewRequestAlreadyInFlight(id string) *RequestAlreadyInFlightError {
	return &RequestAlreadyInFlightError{ID: id}
}

func (e *RequestAlreadyInFlightError) Error() string {
	return "jsonrpc: request already in flight: " + e.ID
}

// CallTimeoutError completes a call's future once its retries are
// exhausted without a response. RequestID is the id of the call's last
// attempt: after a retry it is the fresh id that retry minted, not the id
// the call was first sent under.
type CallTimeoutError struct {
	RequestID string
}

func NewCallTimeout(requestID string) *CallTimeoutError {
	return &CallTimeoutError{RequestID: requestID}
}

func (e *CallTimeoutError) Error() string {
	return "jsonrpc: call timed out: " + e.RequestID
}

// ClientClosedError completes every in-flight call when the client is
// closed by the caller or the reactor shuts down.
type ClientClosedError struct{}

func NewClientClosed() *ClientClosedError { return &ClientClosedError{} }

func (e *ClientClosedError) Error() string {
	return "jsonrpc: client closed"
}

// ToRPCError maps one of this package's error kinds onto a wire RPCError
// object, for callers that want to see the shape the Java source's timeout
// and connection-closed errors take over the wire.
func ToRPCError(err error) (code int, msg string) {
	switch e := err.(type) {
	case *CallTimeoutError:
		return CodeCallTimeout, e.Error()
	case *ConnectionLostError, *ClientClosedError:
		return CodeConnectionLost, err.Error()
	default:
		return CodeInternalError, err.Error()
	}
}
