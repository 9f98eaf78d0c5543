// Package helper converts loosely-typed decoded JSON (map[string]interface{})
// into the concrete Go values callers expect. It exists for code that reads
// JSON-RPC messages generically rather than through the message package's
// typed Request/Response structs — the sample host-agent peer, and tests
// that need to poke at a message before it is known to be well-formed.
package helper

import "encoding/json"

// Interface2String extracts a string from a decoded JSON value, such as a
// request's "method" field.
func Interface2String(v interface{}) (rv string, ok bool) {
	if v == nil {
		return
	}
	rv, ok = v.(string)
	return
}

// Interface2Vector extracts a JSON array as a generic slice, such as a
// request's "params" field before its element types are known.
func Interface2Vector(v interface{}) (rv []interface{}, ok bool) {
	if v == nil {
		return
	}
	rv, ok = v.([]interface{})
	return
}

// Interface2JsonBytes re-marshals a decoded value back to JSON bytes, for
// echoing a field verbatim into a response without retyping it.
func Interface2JsonBytes(v interface{}) (rv []byte, ok bool) {
	if v == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return b, true
}
