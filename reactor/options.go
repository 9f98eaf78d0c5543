package reactor

import "crypto/tls"

// ClientOption configures optional, transport-specific aspects of a Client
// at creation time.
type ClientOption func(*clientConfig)

type clientConfig struct {
	tlsConfig      *tls.Config
	wsPath         string
	maxMessageSize int
	maxOutboundLen int
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		maxMessageSize: DefaultMaxMessageSize,
		maxOutboundLen: DefaultMaxOutboundQueue,
	}
}

// WithTLSConfig installs the trust store / client credentials used for the
// Tls and WsTls transport variants. SNI defaults to the dialed hostname
// when ServerName is left empty, per spec.md section 6.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *clientConfig) { c.tlsConfig = cfg }
}

// WithWebSocketPath sets the HTTP path used for the WebSocket upgrade
// request (default "/").
func WithWebSocketPath(path string) ClientOption {
	return func(c *clientConfig) { c.wsPath = path }
}

// WithMaxMessageSize overrides the 4 MiB default cap on a single decoded
// message.
func WithMaxMessageSize(n int) ClientOption {
	return func(c *clientConfig) { c.maxMessageSize = n }
}

// WithMaxOutboundQueue overrides the bounded outbound queue's default
// capacity. See spec.md section 9: this implementation fails sendMessage
// fast with ConnectionLost once the queue is full rather than blocking the
// caller.
func WithMaxOutboundQueue(n int) ClientOption {
	return func(c *clientConfig) { c.maxOutboundLen = n }
}

// DefaultMaxOutboundQueue bounds the number of not-yet-written messages a
// Client will buffer before SendMessage starts failing fast.
const DefaultMaxOutboundQueue = 1024
