// Package shutdown turns external termination requests into a one-shot token
// observed by the monitor.
package shutdown

import "sync"

// Token is a one-shot cancellation flag. It is fired at most once by the
// signal handler and observed by the monitor; checking it after it fired is
// always safe.
type Token struct {
	done     chan struct{}
	fireOnce sync.Once

	detached   chan struct{}
	detachOnce sync.Once
}

// NewToken returns an unfired token.
func NewToken() *Token {
	return &Token{
		done:     make(chan struct{}),
		detached: make(chan struct{}),
	}
}

// Fire sets the flag. It reports whether this call fired the token while the
// consumer was still attached, meaning the request will be acted upon.
func (t *Token) Fire() bool {
	fired := false
	t.fireOnce.Do(func() {
		close(t.done)
		fired = true
	})
	if !fired {
		return false
	}
	select {
	case <-t.detached:
		return false
	default:
		return true
	}
}

// Done is closed once the token fired.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Fired reports whether the token has fired.
func (t *Token) Fired() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Detach records that the consumer stopped observing the token.
func (t *Token) Detach() {
	t.detachOnce.Do(func() { close(t.detached) })
}
