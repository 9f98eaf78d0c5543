package jsonrpc

import (
	"context"
	"sync"

	"github.com/Arakmar/vdsm-jsonrpc-go/message"
)

// Call is the in-flight handle spec.md section 3 describes: created on
// submit, registered in the tracker keyed by the request id, terminal once
// a response or an error has been set. Terminal state is latched — once
// set, further updates are silently ignored, matching the "at most one
// Call is completed per processResponse" invariant in spec.md section 8.
type Call struct {
	request *message.Request

	mu       sync.Mutex
	response *message.Response
	err      error
	terminal bool
	done     chan struct{}
}

func newCall(req *message.Request) *Call {
	return &Call{request: req, done: make(chan struct{})}
}

// Request returns the request this call was created for. After a retry,
// this reflects the most recently sent id, not necessarily the one the
// caller originally saw.
func (c *Call) Request() *message.Request {
	return c.request
}

// AddResponse completes the call with resp, unless it is already terminal.
func (c *Call) AddResponse(resp *message.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminal {
		return
	}
	c.terminal = true
	c.response = resp
	close(c.done)
}

// Fail completes the call with a terminal error, unless it is already
// terminal.
func (c *Call) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminal {
		return
	}
	c.terminal = true
	c.err = err
	close(c.done)
}

// IsTerminal reports whether the call has already been completed.
func (c *Call) IsTerminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminal
}

// Done returns a channel that closes when the call terminates, the Go
// analogue of java.util.concurrent.Future's isDone/get pairing.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call terminates or ctx is done, returning the
// response on success or whichever error (a wire error, ctx's own error,
// or a rpcerror kind) applies.
func (c *Call) Wait(ctx context.Context) (*message.Response, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.response, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BatchCall is the Call variant spec.md section 3 describes for a batched
// send: one object backs every constituent request, decrementing a
// pending counter as responses arrive, completing when it reaches zero.
// The assembled result is ordered by the batch's original request order,
// not by arrival order, per spec.md section 5.
type BatchCall struct {
	mu        sync.Mutex
	idToIndex map[string]int
	responses []*message.Response
	pending   int
	err       error
	terminal  bool
	done      chan struct{}
}

func newBatchCall(reqs []*message.Request) *BatchCall {
	idToIndex := make(map[string]int)
	n := 0
	for _, r := range reqs {
		if r.IsNotification() {
			continue
		}
		idToIndex[r.ID] = n
		n++
	}
	return &BatchCall{
		idToIndex: idToIndex,
		responses: make([]*message.Response, n),
		pending:   n,
		done:      make(chan struct{}),
	}
}

// Remap is called by the tracker when a retry mints a fresh id for one of
// this batch's constituent requests, so a late response under the new id
// still lands in the slot the original request held.
func (b *BatchCall) Remap(oldID, newID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx, ok := b.idToIndex[oldID]; ok {
		delete(b.idToIndex, oldID)
		b.idToIndex[newID] = idx
	}
}

// AddResponse records resp at the slot matching its id and completes the
// batch once every slot has been filled.
func (b *BatchCall) AddResponse(resp *message.Response) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.terminal {
		return
	}
	id, ok := resp.IDString()
	if !ok {
		return
	}
	idx, ok := b.idToIndex[id]
	if !ok || b.responses[idx] != nil {
		return
	}
	b.responses[idx] = resp
	b.pending--
	if b.pending <= 0 {
		b.terminal = true
		close(b.done)
	}
}

// Fail completes the batch with a terminal error, unless it is already
// terminal.
func (b *BatchCall) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.terminal {
		return
	}
	b.terminal = true
	b.err = err
	close(b.done)
}

// IsTerminal reports whether the batch has already been completed.
func (b *BatchCall) IsTerminal() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.terminal
}

// Done returns a channel that closes when the batch terminates.
func (b *BatchCall) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the batch terminates or ctx is done, returning the
// responses in the batch's original request order.
func (b *BatchCall) Wait(ctx context.Context) ([]*message.Response, error) {
	select {
	case <-b.done:
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.err != nil {
			return nil, b.err
		}
		out := make([]*message.Response, len(b.responses))
		copy(out, b.responses)
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
