package reactor

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/Arakmar/vdsm-jsonrpc-go/message"
)

// plainConn implements wireConn over a raw TCP socket using the
// length-prefixed binary framing from spec.md section 6. tlsConfig, when
// non-nil, upgrades the socket in place after connect — this single type
// backs both the Plain and Tls TransportKind variants, since the only
// difference between them is whether a TLS handshake runs after dial.
type plainConn struct {
	tlsConfig      *tls.Config
	maxMessageSize int

	conn            net.Conn
	decoder         *lengthPrefixedDecoder
	readBuf         []byte
	pendingMessages [][]byte
}

func newPlainConn(tlsConfig *tls.Config, maxMessageSize int) *plainConn {
	return &plainConn{
		tlsConfig:      tlsConfig,
		maxMessageSize: maxMessageSize,
		decoder:        newLengthPrefixedDecoder(maxMessageSize),
		readBuf:        make([]byte, readChunkSize),
	}
}

const readChunkSize = 64 * 1024

func (c *plainConn) Dial(ctx context.Context, host string, port int) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return errors.Wrap(err, "dial tcp")
	}
	if c.tlsConfig != nil {
		cfg := c.tlsConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return errors.Wrap(err, "tls handshake")
		}
		conn = tlsConn
	}
	c.conn = conn
	return nil
}

// pending holds messages the decoder has fully assembled but the caller
// hasn't consumed yet, so a single Read of several frames at once doesn't
// lose any of them.
func (c *plainConn) ReadMessage() ([]byte, error) {
	if len(c.pendingMessages) > 0 {
		msg := c.pendingMessages[0]
		c.pendingMessages = c.pendingMessages[1:]
		return msg, nil
	}
	for {
		n, err := c.conn.Read(c.readBuf)
		if n > 0 {
			msgs, decodeErr := c.decoder.Feed(c.readBuf[:n])
			if len(msgs) > 0 {
				c.pendingMessages = append(c.pendingMessages, msgs...)
			}
			if decodeErr != nil {
				return nil, decodeErr
			}
			if len(c.pendingMessages) > 0 {
				msg := c.pendingMessages[0]
				c.pendingMessages = c.pendingMessages[1:]
				return msg, nil
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, errReadTimeout
			}
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, errors.Wrap(err, "read tcp")
		}
	}
}

func (c *plainConn) SetReadDeadline(t time.Time) error {
	if c.conn == nil {
		return nil
	}
	return c.conn.SetReadDeadline(t)
}

func (c *plainConn) WriteMessage(payload []byte) error {
	frame := EncodeFrame(payload)
	_, err := c.conn.Write(frame)
	if err != nil {
		return errors.Wrap(err, "write tcp")
	}
	return nil
}

func (c *plainConn) WriteHeartbeat() error {
	req, err := message.NewNotification("heartbeat", nil)
	if err != nil {
		return err
	}
	payload, err := message.EncodeRequest(req)
	if err != nil {
		return err
	}
	return c.WriteMessage(payload)
}

func (c *plainConn) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

