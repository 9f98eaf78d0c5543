package tracker

import (
	"time"

	"github.com/Arakmar/vdsm-jsonrpc-go/message"
	"github.com/Arakmar/vdsm-jsonrpc-go/policy"
	"github.com/Arakmar/vdsm-jsonrpc-go/reactor"
)

// ResponseTracking is the retry record spec.md section 3 defines: a
// request bound to a Call, a RetryContext counting remaining attempts, a
// monotonic deadline, the client it was sent on, and whether a retry
// should reconnect first. It is owned by the Tracker and removed when the
// call terminates or retries are exhausted.
type ResponseTracking struct {
	Request         *message.Request
	Call            Call
	RetryContext    *policy.RetryContext
	RetryTimeout    time.Duration
	Deadline        time.Time
	Client          *reactor.Client
	ResetConnection bool

	// NextID mints a fresh request id for a retry attempt. Per spec.md
	// section 9, retries never reuse the original id — id reuse would
	// violate the one-tracker-entry-per-id invariant and could confuse a
	// stateful peer that has already seen that id once.
	NextID func() string
}

// NewResponseTracking builds a tracking record with its deadline set to
// now + the policy's retry timeout, matching ResponseTracking's
// construction in JsonRpcClient.call/batchCall in the Java source.
func NewResponseTracking(
	req *message.Request,
	call Call,
	pol policy.ClientPolicy,
	client *reactor.Client,
	resetConnection bool,
	nextID func() string,
) *ResponseTracking {
	return &ResponseTracking{
		Request:         req,
		Call:            call,
		RetryContext:    policy.NewRetryContext(pol),
		RetryTimeout:    pol.RetryTimeout,
		Deadline:        time.Now().Add(pol.RetryTimeout),
		Client:          client,
		ResetConnection: resetConnection,
		NextID:          nextID,
	}
}
