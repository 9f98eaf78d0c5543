package reactor

import "errors"

// errReadTimeout is returned by a wireConn's ReadMessage when a
// SetReadDeadline-bounded read elapses with no data. It is not a real I/O
// failure — the client's read loop uses it purely to come back around and
// check for a stop signal on an otherwise silent connection — so it is
// never wrapped into a DecodingFaultError or
// propagated to listeners.
var errReadTimeout = errors.New("reactor: read deadline exceeded")
