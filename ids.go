package jsonrpc

import (
	"strconv"
	"sync/atomic"
)

// idGenerator mints a monotonically increasing string id, unique per
// JsonRpcClient, per spec.md section 4.4. Retries mint a fresh id from the
// same generator rather than reusing the original — see
// tracker.ResponseTracking.NextID.
type idGenerator struct {
	counter uint64
}

func (g *idGenerator) next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return strconv.FormatUint(n, 10)
}
