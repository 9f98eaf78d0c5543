// Package tracker implements the background timekeeper from spec.md
// section 4.5: it indexes in-flight calls by request id, enforces
// per-call timeouts, triggers retries according to policy, and completes
// abandoned calls with an error. One Tracker is shared across every
// JsonRpcClient in a process, exactly as the Java source's ResponseTracker
// is a single background thread shared across clients.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Arakmar/vdsm-jsonrpc-go/message"
	"github.com/Arakmar/vdsm-jsonrpc-go/reactor"
	"github.com/Arakmar/vdsm-jsonrpc-go/rpcerror"
)

// DefaultPollInterval is the tracker's sweep cadence, matching the ~250ms
// figure spec.md section 4.5 names.
const DefaultPollInterval = 250 * time.Millisecond

// Call is the minimal surface the tracker needs from a caller-visible
// call handle: deliver a response, deliver a terminal error, and report
// whether either has already happened. The jsonrpc package's Call and
// BatchCall types satisfy this interface structurally — tracker never
// imports the jsonrpc package, which is what keeps JsonRpcClient (which
// does import tracker) free of an import cycle.
type Call interface {
	AddResponse(resp *message.Response)
	Fail(err error)
	IsTerminal() bool
}

// Remapper is implemented by call handles that match inbound responses by
// id internally — BatchCall, which holds one id per constituent request —
// and need to be told when a retry has minted a fresh id for one of them,
// so a late response still lands in the right slot.
type Remapper interface {
	Remap(oldID, newID string)
}

// Tracker is the concrete ResponseTracker. Its zero value is not usable;
// construct one with New.
type Tracker struct {
	pollInterval time.Duration
	log          *logrus.Entry

	mu                sync.Mutex
	callsByID         map[string]Call
	trackingByRequest map[string]*ResponseTracking

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Tracker and starts its sweep goroutine immediately.
func New(pollInterval time.Duration, log *logrus.Entry) *Tracker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if log == nil {
		log = logrus.WithField("component", "tracker")
	}
	t := &Tracker{
		pollInterval:      pollInterval,
		log:               log,
		callsByID:         make(map[string]Call),
		trackingByRequest: make(map[string]*ResponseTracking),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}
	go t.run()
	return t
}

// RegisterCall indexes call under req's id. Notifications (empty id) are
// never tracked. A duplicate, still in-flight id fails synchronously
// without mutating tracker state, per spec.md section 7.
func (t *Tracker) RegisterCall(req *message.Request, call Call) error {
	if req.IsNotification() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.callsByID[req.ID]; exists {
		return rpcerror.NewRequestAlreadyInFlight(req.ID)
	}
	t.callsByID[req.ID] = call
	return nil
}

// RegisterTrackingRequest installs the retry/timeout record for req. It is
// installed unconditionally, even if the send that preceded it failed —
// see spec.md section 9's second open-question resolution — so the
// timeout path still drives the call to a user-visible completion.
func (t *Tracker) RegisterTrackingRequest(req *message.Request, tracking *ResponseTracking) {
	if req.IsNotification() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trackingByRequest[req.ID] = tracking
}

// RemoveCall removes and returns the call registered under id, or nil if
// none is tracked. It also drops that id's retry record: a response with a
// known id removes exactly one tracker entry, per spec.md section 3.
func (t *Tracker) RemoveCall(id string) Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	call := t.callsByID[id]
	delete(t.callsByID, id)
	delete(t.trackingByRequest, id)
	return call
}

// ProcessIssue is the issue-dispatch path: every in-flight call bound to
// client is completed with err and cleared from both maps. It is invoked
// when a response with a null id arrives on that client's listener.
func (t *Tracker) ProcessIssue(client *reactor.Client, err error) {
	t.mu.Lock()
	var calls []Call
	for id, tr := range t.trackingByRequest {
		if tr.Client == client {
			calls = append(calls, tr.Call)
			delete(t.trackingByRequest, id)
			delete(t.callsByID, id)
		}
	}
	t.mu.Unlock()

	for _, c := range calls {
		c.Fail(err)
	}
	if len(calls) > 0 {
		t.log.WithField("client_id", client.ClientID()).
			WithField("count", len(calls)).
			Warn("issue dispatch: failed all in-flight calls")
	}
}

// Shutdown stops the sweep goroutine. It does not touch any registered
// calls; callers close their clients (which triggers issue dispatch)
// before shutting down the tracker.
func (t *Tracker) Shutdown() {
	close(t.stopCh)
	<-t.doneCh
}

func (t *Tracker) run() {
	defer close(t.doneCh)
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Tracker) sweep() {
	now := time.Now()
	t.mu.Lock()
	due := make([]string, 0)
	for id, tr := range t.trackingByRequest {
		if !tr.Deadline.After(now) {
			due = append(due, id)
		}
	}
	t.mu.Unlock()

	for _, id := range due {
		t.handleDue(id, now)
	}
}

func (t *Tracker) handleDue(id string, now time.Time) {
	t.mu.Lock()
	tr, ok := t.trackingByRequest[id]
	if !ok {
		t.mu.Unlock()
		return
	}

	if tr.Call.IsTerminal() {
		delete(t.trackingByRequest, id)
		delete(t.callsByID, id)
		t.mu.Unlock()
		return
	}

	if tr.RetryContext.ConsumeAttempt() {
		oldID := tr.Request.ID
		newID := oldID
		if tr.NextID != nil {
			newID = tr.NextID()
		}
		tr.Request.ID = newID
		tr.Deadline = now.Add(tr.RetryTimeout)
		delete(t.trackingByRequest, oldID)
		delete(t.callsByID, oldID)
		t.trackingByRequest[newID] = tr
		t.callsByID[newID] = tr.Call
		if remapper, ok := tr.Call.(Remapper); ok {
			remapper.Remap(oldID, newID)
		}
		client := tr.Client
		resetConn := tr.ResetConnection
		req := tr.Request
		t.mu.Unlock()

		t.log.WithFields(logrus.Fields{
			"old_id": oldID,
			"new_id": newID,
			"method": req.Method,
		}).Info("retrying call")

		if resetConn {
			go t.reconnectAndResend(client, req)
		} else {
			t.resend(client, req)
		}
		return
	}

	delete(t.trackingByRequest, id)
	delete(t.callsByID, id)
	call := tr.Call
	reqID := tr.Request.ID
	t.mu.Unlock()

	t.log.WithField("request_id", reqID).Warn("call timed out, retries exhausted")
	call.Fail(rpcerror.NewCallTimeout(reqID))
}

func (t *Tracker) resend(client *reactor.Client, req *message.Request) {
	payload, err := message.EncodeRequest(req)
	if err != nil {
		t.log.WithError(err).Error("retry: re-encode failed")
		return
	}
	if err := client.SendMessage(payload); err != nil {
		t.log.WithError(err).Warn("retry: send failed")
	}
}

func (t *Tracker) reconnectAndResend(client *reactor.Client, req *message.Request) {
	// The close below triggers issue dispatch for every call tracked on
	// client. This request's retry record is held aside until the reconnect
	// attempt finishes, so the call being retried is not failed by it.
	t.mu.Lock()
	tr := t.trackingByRequest[req.ID]
	delete(t.trackingByRequest, req.ID)
	t.mu.Unlock()

	client.Close().Get() //nolint:errcheck // best-effort before reconnect
	ctx, cancel := context.WithTimeout(context.Background(), client.RetryPolicy().RetryTimeout)
	defer cancel()
	err := client.Connect(ctx)
	if tr != nil {
		t.mu.Lock()
		tr.Deadline = time.Now().Add(tr.RetryTimeout)
		t.trackingByRequest[req.ID] = tr
		t.mu.Unlock()
	}
	if err != nil {
		t.log.WithError(err).Warn("retry: reconnect failed")
		return
	}
	t.resend(client, req)
}
