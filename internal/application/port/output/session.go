package output

import "context"

// SessionProvider hands out the shared browser session to one caller at a
// time. Acquire blocks in arrival order; every successful Acquire must be
// paired with Release.
type SessionProvider interface {
	Acquire(ctx context.Context) (BrowserSession, error)
	Release()
	// Reset replaces the current session. Only the lock holder may call it.
	Reset(ctx context.Context) (BrowserSession, error)
	// Done is closed when the provider shuts down.
	Done() <-chan struct{}
}
