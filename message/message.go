// Package message defines the JSON-RPC 2.0 wire types shared by the
// reactor, the tracker, and the client facade. The JSON value model itself
// (parsing, emitting, the null/typed-node distinction) is the standard
// library's encoding/json package; this package is the thin JSON-RPC layer
// on top of it that spec.md treats as the data model, not an external
// collaborator.
package message

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Version is the JSON-RPC protocol version carried on every request and
// response.
const Version = "2.0"

// Request is a single JSON-RPC call or notification. A notification has an
// empty ID and is never tracked by the response tracker.
type Request struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this request carries no id and therefore
// expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == ""
}

// NewRequest builds a Request with params marshaled from the given value.
// Marshaling failures are returned as-is; the client facade wraps them in
// an EncodingFault before surfacing them to the caller.
func NewRequest(id, method string, params interface{}) (*Request, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrap(err, "encode request params")
		}
		raw = b
	}
	return &Request{ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a Request carrying no id.
func NewNotification(method string, params interface{}) (*Request, error) {
	return NewRequest("", method, params)
}

// wireRequest is the canonical on-the-wire shape: {"jsonrpc":"2.0", ...}.
type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MarshalJSON renders the canonical JSON-RPC 2.0 request shape.
func (r *Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRequest{
		JSONRPC: Version,
		ID:      r.ID,
		Method:  r.Method,
		Params:  r.Params,
	})
}

// UnmarshalJSON accepts either the canonical shape or a bare {id,method,params}.
func (r *Request) UnmarshalJSON(data []byte) error {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.ID = w.ID
	r.Method = w.Method
	r.Params = w.Params
	return nil
}

// RPCError is the standard JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Response is a single JSON-RPC response. ID is carried as a raw JSON
// fragment because it can legally be a string or the JSON null literal
// (protocol-level errors, decoder faults) — exactly the distinguished-null
// case spec.md defers to the external JSON value model.
type Response struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

var nullLiteral = []byte("null")

// HasNullID reports whether this response's id is the JSON null literal or
// simply absent, which marks a protocol-level error or decoder fault rather
// than a response to a specific call.
func (r *Response) HasNullID() bool {
	if len(r.ID) == 0 {
		return true
	}
	trimmed := string(r.ID)
	return trimmed == "" || trimmed == string(nullLiteral)
}

// IDString extracts the request id as a Go string, when it is present and
// is a JSON string (the only shape ids take on requests from this client).
func (r *Response) IDString() (string, bool) {
	if r.HasNullID() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err != nil {
		return "", false
	}
	return s, true
}

// NewErrorResponse builds a protocol-level error response with a null id,
// used by the reactor to synthesize a message for listeners when a
// connection is lost or a decoder fault occurs.
func NewErrorResponse(code int, msg string) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      append([]byte{}, nullLiteral...),
		Error:   &RPCError{Code: code, Message: msg},
	}
}

// Decode parses a single JSON-RPC response from a whole message.
func Decode(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &r, nil
}

// DecodeBatch parses a JSON array of responses, as produced by a batch call.
func DecodeBatch(data []byte) ([]*Response, error) {
	var rs []*Response
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, errors.Wrap(err, "decode batch response")
	}
	return rs, nil
}

// EncodeRequest renders one request to its wire bytes.
func EncodeRequest(r *Request) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}
	return b, nil
}

// EncodeBatch renders a batch of requests to a single JSON array.
func EncodeBatch(rs []*Request) ([]byte, error) {
	b, err := json.Marshal(rs)
	if err != nil {
		return nil, errors.Wrap(err, "encode batch request")
	}
	return b, nil
}

// LooksLikeBatch reports whether the first non-whitespace byte of data
// opens a JSON array, the wire shape of a batched request or response.
func LooksLikeBatch(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
