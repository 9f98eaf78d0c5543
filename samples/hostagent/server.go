// Package hostagent is a minimal stand-in for a VDSM-style host agent: a
// length-prefixed JSON-RPC peer that answers "Host.ping" with true and
// echoes the params of any other request back in the result, used by the
// end-to-end tests instead of a real virtualization host. It mirrors the Accept-loop
// shape of the teacher's samples/jsonrpc1_0 server, adapted from net/rpc's
// codec to this module's own framing and message types.
package hostagent

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/Arakmar/vdsm-jsonrpc-go/helper"
	"github.com/Arakmar/vdsm-jsonrpc-go/message"
)

const maxMessageSize = 4 * 1024 * 1024

// StartServer listens on addr and serves every accepted connection on its
// own goroutine until the returned listener is closed.
func StartServer(addr string) (net.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go acceptLoop(l)
	return l, nil
}

func acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go serveConn(conn)
	}
}

func serveConn(conn net.Conn) {
	defer conn.Close()
	for {
		payload, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				log.Println("hostagent: read error:", err)
			}
			return
		}
		handleFrame(conn, payload)
	}
}

func readFrame(conn net.Conn) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxMessageSize {
		return nil, fmt.Errorf("hostagent: frame of %d bytes exceeds maximum of %d", n, maxMessageSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(conn net.Conn, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := conn.Write(header[:]); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

func handleFrame(conn net.Conn, payload []byte) {
	if message.LooksLikeBatch(payload) {
		var reqs []map[string]interface{}
		if err := json.Unmarshal(payload, &reqs); err != nil {
			return
		}
		var resps []*message.Response
		for _, r := range reqs {
			if resp := respond(r); resp != nil {
				resps = append(resps, resp)
			}
		}
		if len(resps) == 0 {
			return
		}
		// Answered in reverse of request order, to make sure callers rely on
		// the id-to-index mapping rather than response arrival order.
		for i, j := 0, len(resps)-1; i < j; i, j = i+1, j-1 {
			resps[i], resps[j] = resps[j], resps[i]
		}
		if b, err := json.Marshal(resps); err == nil {
			writeFrame(conn, b)
		}
		return
	}

	var req map[string]interface{}
	if err := json.Unmarshal(payload, &req); err != nil {
		return
	}
	resp := respond(req)
	if resp == nil {
		return
	}
	if b, err := json.Marshal(resp); err == nil {
		writeFrame(conn, b)
	}
}

// respond builds the reply for one decoded request object. It works off
// the generic map[string]interface{} shape rather than message.Request,
// using helper to pull fields out before the request is known to be
// well-formed, which is exactly the case helper.Interface2String and
// helper.Interface2Vector exist for. A request with no id is a
// notification — this peer's heartbeat frames arrive this way — and draws
// no reply.
func respond(req map[string]interface{}) *message.Response {
	idRaw, hasID := req["id"]
	if !hasID || idRaw == nil {
		return nil
	}
	idBytes, ok := helper.Interface2JsonBytes(idRaw)
	if !ok {
		return nil
	}

	method, _ := helper.Interface2String(req["method"])
	if method == "Host.ping" {
		return &message.Response{JSONRPC: message.Version, ID: idBytes, Result: json.RawMessage("true")}
	}

	params, _ := helper.Interface2Vector(req["params"])
	echoed, ok := helper.Interface2JsonBytes(params)
	if !ok {
		echoed = json.RawMessage("null")
	}
	return &message.Response{JSONRPC: message.Version, ID: idBytes, Result: echoed}
}
