package reactor

import (
	"io"
	"time"

	"github.com/Arakmar/vdsm-jsonrpc-go/rpcerror"
)

// pollInterval bounds how long a single wireConn.ReadMessage call blocks
// before the read loop comes back around to check for a stop signal. It
// has no relation to the tracker's own pollInterval in spec.md section 4.5.
const pollInterval = 200 * time.Millisecond

// readLoop implements processIncoming from spec.md section 4.2: read,
// decode, reset the incoming heartbeat clock, notify listeners. It runs on
// its own goroutine for the lifetime of one open connection.
func (c *Client) readLoop(gen *clientGen) {
	defer c.loopsWg.Done()
	wire := c.currentWire()
	for {
		select {
		case <-gen.stopCh:
			return
		default:
		}
		wire.SetReadDeadline(time.Now().Add(pollInterval))
		msg, err := wire.ReadMessage()
		if err != nil {
			if err == errReadTimeout {
				continue
			}
			if err == io.EOF || err == errWsClosed {
				c.disconnect("Connection closed by peer")
				return
			}
			if _, ok := err.(*rpcerror.DecodingFaultError); ok {
				c.log.WithError(err).Warn("decoding fault")
				c.disconnect("Decoding fault")
				return
			}
			c.log.WithError(err).Warn("read error")
			c.disconnect("I/O error: " + err.Error())
			return
		}
		c.updateLastIncoming()
		c.emit(msg)
	}
}

// writeLoop implements processOutgoing from spec.md section 4.2: drain the
// outbound queue in FIFO order, reset the outgoing heartbeat clock on any
// bytes written.
func (c *Client) writeLoop(gen *clientGen) {
	defer c.loopsWg.Done()
	wire := c.currentWire()
	for {
		select {
		case <-gen.stopCh:
			return
		case payload := <-c.outbound:
			if err := wire.WriteMessage(payload); err != nil {
				c.log.WithError(err).Warn("write error")
				c.disconnect("I/O error: " + err.Error())
				return
			}
			c.updateLastOutgoing()
		}
	}
}

// heartbeatLoop implements processHeartbeat and performAction from
// spec.md section 4.2: disconnect on incoming silence past policy, emit an
// outgoing heartbeat frame on our own silence past policy.
func (c *Client) heartbeatLoop(gen *clientGen) {
	defer c.loopsWg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	wire := c.currentWire()
	for {
		select {
		case <-gen.stopCh:
			return
		case <-ticker.C:
			pol := c.RetryPolicy()
			now := time.Now()
			if pol.IsIncomingHeartbeat() {
				last := time.Unix(0, c.lastIncomingNanos.Load())
				if now.Sub(last) > pol.IncomingHeartbeat {
					c.log.Debug("incoming heartbeat exceeded")
					c.disconnect(heartbeatExceededReason)
					return
				}
			}
			if pol.IsOutgoingHeartbeat() {
				last := time.Unix(0, c.lastOutgoingNanos.Load())
				if now.Sub(last) > pol.OutgoingHeartbeat {
					if err := wire.WriteHeartbeat(); err != nil {
						c.log.WithError(err).Warn("heartbeat send failed")
						c.disconnect("I/O error: " + err.Error())
						return
					}
					c.updateLastOutgoing()
				}
			}
		}
	}
}

func (c *Client) currentWire() wireConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wire
}
