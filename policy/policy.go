// Package policy holds the tunables shared by the reactor client and the
// response tracker: retry counts, retry timeout, and heartbeat intervals.
package policy

import (
	"time"

	"github.com/pkg/errors"
)

// ClientPolicy bundles the retry and heartbeat parameters applied to a
// single ReactorClient and to the calls issued through it. It is validated
// once, at installation time, and is immutable afterwards.
type ClientPolicy struct {
	// Retries is the number of additional attempts made after the first,
	// failed one. Zero means "send once, never retry".
	Retries int
	// RetryTimeout is how long a single attempt is given to complete
	// before the tracker retries or gives up.
	RetryTimeout time.Duration
	// IncomingHeartbeat, when non-zero, is the maximum silence tolerated
	// from the peer before the client is disconnected.
	IncomingHeartbeat time.Duration
	// OutgoingHeartbeat, when non-zero, is the interval at which the
	// client emits its own liveness frame when otherwise idle.
	OutgoingHeartbeat time.Duration
}

// DefaultConnectionRetryPolicy mirrors the Java source's
// DefaultConnectionRetryPolicy: a handful of retries with a generous
// per-attempt timeout and no heartbeats configured.
func DefaultConnectionRetryPolicy() ClientPolicy {
	return ClientPolicy{
		Retries:      3,
		RetryTimeout: 15 * time.Second,
	}
}

// IsIncomingHeartbeat reports whether incoming liveness checking is enabled.
func (p ClientPolicy) IsIncomingHeartbeat() bool {
	return p.IncomingHeartbeat > 0
}

// IsOutgoingHeartbeat reports whether this client emits its own heartbeat.
func (p ClientPolicy) IsOutgoingHeartbeat() bool {
	return p.OutgoingHeartbeat > 0
}

// Validate rejects policies that cannot be acted on: negative retry counts
// and non-positive timeouts make the retry/timeout math in RetryContext and
// the tracker meaningless.
func (p ClientPolicy) Validate() error {
	if p.Retries < 0 {
		return errors.Errorf("policy: retries must be >= 0, got %d", p.Retries)
	}
	if p.RetryTimeout <= 0 {
		return errors.Errorf("policy: retry timeout must be positive, got %s", p.RetryTimeout)
	}
	if p.IncomingHeartbeat < 0 {
		return errors.Errorf("policy: incoming heartbeat must be >= 0, got %s", p.IncomingHeartbeat)
	}
	if p.OutgoingHeartbeat < 0 {
		return errors.Errorf("policy: outgoing heartbeat must be >= 0, got %s", p.OutgoingHeartbeat)
	}
	return nil
}

// WorstCaseTimeout is the maximum time a call governed by this policy can
// take before it is either answered or abandoned: retryTimeout * (retries+1).
func (p ClientPolicy) WorstCaseTimeout() time.Duration {
	return p.RetryTimeout * time.Duration(p.Retries+1)
}
