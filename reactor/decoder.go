package reactor

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/Arakmar/vdsm-jsonrpc-go/rpcerror"
)

// DefaultMaxMessageSize is the cap on a single decoded message, matching
// spec.md section 6's 4 MiB default for the length-prefixed framing.
const DefaultMaxMessageSize = 4 * 1024 * 1024

// decoderState names where a length-prefixed MessageDecoder is in its
// two-state machine.
type decoderState int

const (
	awaitingHeader decoderState = iota
	awaitingBody
)

// lengthPrefixedDecoder implements spec.md section 4.3's binary framing: a
// 4-byte big-endian length prefix followed by that many bytes of UTF-8 JSON,
// with no trailing delimiter. It consumes bytes incrementally as they
// arrive off the socket and yields whole messages as soon as a full body is
// available.
type lengthPrefixedDecoder struct {
	maxMessageSize int

	state      decoderState
	header     [4]byte
	headerFill int
	bodyLen    uint32
	body       []byte
	bodyFill   int
}

// newLengthPrefixedDecoder constructs a decoder that rejects any frame
// whose declared length exceeds maxMessageSize.
func newLengthPrefixedDecoder(maxMessageSize int) *lengthPrefixedDecoder {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &lengthPrefixedDecoder{maxMessageSize: maxMessageSize}
}

// Feed consumes chunk and returns every whole message it completed, in
// arrival order. A decoder-level fault (oversize frame) is returned as a
// *rpcerror.DecodingFaultError and the decoder must not be fed again.
func (d *lengthPrefixedDecoder) Feed(chunk []byte) ([][]byte, error) {
	var out [][]byte
	for len(chunk) > 0 {
		switch d.state {
		case awaitingHeader:
			n := copy(d.header[d.headerFill:], chunk)
			d.headerFill += n
			chunk = chunk[n:]
			if d.headerFill < 4 {
				continue
			}
			d.bodyLen = binary.BigEndian.Uint32(d.header[:])
			if int(d.bodyLen) > d.maxMessageSize {
				return out, rpcerror.NewDecodingFault(
					errors.Errorf("frame of %d bytes exceeds maximum of %d bytes", d.bodyLen, d.maxMessageSize))
			}
			d.body = make([]byte, d.bodyLen)
			d.bodyFill = 0
			d.headerFill = 0
			d.state = awaitingBody
			if d.bodyLen == 0 {
				out = append(out, d.body)
				d.state = awaitingHeader
			}
		case awaitingBody:
			n := copy(d.body[d.bodyFill:], chunk)
			d.bodyFill += n
			chunk = chunk[n:]
			if d.bodyFill < len(d.body) {
				continue
			}
			out = append(out, d.body)
			d.body = nil
			d.state = awaitingHeader
		}
	}
	return out, nil
}

// EncodeFrame prepends the 4-byte big-endian length prefix the
// length-prefixed transport expects on the wire.
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out
}
