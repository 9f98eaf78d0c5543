package reactor

import "context"

// Future is a one-shot result delivered by a task scheduled onto the
// reactor's loop. It is the Go analogue of the java.util.concurrent.Future
// returned by Reactor.queueFuture and ReactorClient.close in the source.
type Future struct {
	done  chan struct{}
	value interface{}
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(value interface{}, err error) {
	f.value, f.err = value, err
	close(f.done)
}

// Wait blocks until the task completes or ctx is done, whichever comes
// first.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get blocks uninterruptibly until the task completes, mirroring the plain
// connect().get() call in the Java source.
func (f *Future) Get() (interface{}, error) {
	<-f.done
	return f.value, f.err
}

// Done reports the channel that closes when the future completes, for
// callers that want to select on it directly.
func (f *Future) Done() <-chan struct{} {
	return f.done
}
