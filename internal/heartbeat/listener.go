package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ReceiveBufferSize is the number of payload bytes read per datagram. The
// payload is discarded; longer datagrams are truncated.
const ReceiveBufferSize = 512

// Listener receives heartbeat datagrams on a bound UDP endpoint.
type Listener struct {
	conn   net.PacketConn
	now    func() time.Time
	onBeat func(time.Time)
}

// ListenOption customises Listen.
type ListenOption func(*Listener)

// WithClockSource overrides the time source used to stamp arrivals.
func WithClockSource(now func() time.Time) ListenOption {
	return func(l *Listener) {
		if now != nil {
			l.now = now
		}
	}
}

// WithHeartbeatHook is called after every published heartbeat.
func WithHeartbeatHook(fn func(time.Time)) ListenOption {
	return func(l *Listener) {
		l.onBeat = fn
	}
}

// Listen binds the UDP endpoint at addr. A bind failure is returned as is; the
// caller decides how to report it.
func Listen(ctx context.Context, addr string, opts ...ListenOption) (*Listener, error) {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp %s: %w", addr, err)
	}
	l := &Listener{conn: conn, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Close releases the socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Serve publishes every received datagram to clock until one of:
//   - ctx is cancelled: returns ctx.Err(), clock stays open;
//   - the reader detached: returns ErrReaderGone;
//   - a receive error: clock is closed and the error returned.
//
// The socket is closed when Serve returns.
func (l *Listener) Serve(ctx context.Context, clock *Clock) error {
	defer l.conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = l.conn.Close()
	})
	defer stop()

	buf := make([]byte, ReceiveBufferSize)
	for {
		if _, _, err := l.conn.ReadFrom(buf); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			clock.Close()
			return fmt.Errorf("receive heartbeat: %w", err)
		}
		now := l.now()
		if err := clock.Publish(now); err != nil {
			if errors.Is(err, ErrReaderGone) {
				return err
			}
			return fmt.Errorf("publish heartbeat: %w", err)
		}
		if l.onBeat != nil {
			l.onBeat(now)
		}
	}
}
