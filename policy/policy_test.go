package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConnectionRetryPolicy(t *testing.T) {
	p := DefaultConnectionRetryPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, 3, p.Retries)
	assert.False(t, p.IsIncomingHeartbeat())
	assert.False(t, p.IsOutgoingHeartbeat())
}

func TestValidateRejectsBadPolicies(t *testing.T) {
	cases := []ClientPolicy{
		{Retries: -1, RetryTimeout: time.Second},
		{Retries: 0, RetryTimeout: 0},
		{Retries: 0, RetryTimeout: time.Second, IncomingHeartbeat: -time.Second},
		{Retries: 0, RetryTimeout: time.Second, OutgoingHeartbeat: -time.Second},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate())
	}
}

func TestWorstCaseTimeout(t *testing.T) {
	p := ClientPolicy{Retries: 2, RetryTimeout: 5 * time.Second}
	assert.Equal(t, 15*time.Second, p.WorstCaseTimeout())
}

func TestHeartbeatFlags(t *testing.T) {
	p := ClientPolicy{IncomingHeartbeat: time.Second}
	assert.True(t, p.IsIncomingHeartbeat())
	assert.False(t, p.IsOutgoingHeartbeat())
}
