// Package heartbeat receives liveness datagrams and publishes the most recent
// arrival instant to a single reader.
package heartbeat

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrReaderGone is returned by Publish once the reader has detached.
var ErrReaderGone = errors.New("heartbeat reader detached")

// Clock holds the latest heartbeat instant. It has exactly one writer and one
// reader. Publishes are coalesced: the reader is woken at most once per
// batch of arrivals, and Last always returns the newest value.
type Clock struct {
	last    atomic.Pointer[time.Time]
	updated chan struct{}

	closed    chan struct{}
	closeOnce sync.Once

	detached   chan struct{}
	detachOnce sync.Once
}

// NewClock returns a clock whose last heartbeat is start, so that the idle
// period before the first datagram counts toward the timeout.
func NewClock(start time.Time) *Clock {
	c := &Clock{
		updated:  make(chan struct{}, 1),
		closed:   make(chan struct{}),
		detached: make(chan struct{}),
	}
	c.last.Store(&start)
	return c
}

// Publish records t as the latest heartbeat and wakes the reader.
func (c *Clock) Publish(t time.Time) error {
	select {
	case <-c.detached:
		return ErrReaderGone
	default:
	}
	c.last.Store(&t)
	select {
	case c.updated <- struct{}{}:
	default:
	}
	return nil
}

// Last returns the most recently published instant.
func (c *Clock) Last() time.Time {
	return *c.last.Load()
}

// Updated delivers a wake-up after one or more publishes.
func (c *Clock) Updated() <-chan struct{} {
	return c.updated
}

// Close marks the publishing side as severed.
func (c *Clock) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Closed is closed once the writer has given up.
func (c *Clock) Closed() <-chan struct{} {
	return c.closed
}

// Detach marks the reader as gone; later publishes fail with ErrReaderGone.
func (c *Clock) Detach() {
	c.detachOnce.Do(func() { close(c.detached) })
}
