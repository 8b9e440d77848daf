package heartbeat

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func sendDatagram(t *testing.T, addr net.Addr, payload []byte) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write datagram: %v", err)
	}
}

func TestListenerPublishesArrivals(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewClock(start)
	stamp := start.Add(42 * time.Second)
	beats := make(chan time.Time, 4)

	l, err := Listen(context.Background(), "127.0.0.1:0",
		WithClockSource(func() time.Time { return stamp }),
		WithHeartbeatHook(func(at time.Time) { beats <- at }),
	)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- l.Serve(ctx, clock) }()

	// Payload content is irrelevant.
	sendDatagram(t, l.Addr(), []byte(strings.Repeat("x", ReceiveBufferSize)))

	select {
	case <-clock.Updated():
	case <-time.After(2 * time.Second):
		t.Fatalf("heartbeat was not published")
	}
	if got := clock.Last(); !got.Equal(stamp) {
		t.Fatalf("expected heartbeat at %v, got %v", stamp, got)
	}
	select {
	case at := <-beats:
		if !at.Equal(stamp) {
			t.Fatalf("hook saw %v, want %v", at, stamp)
		}
	case <-time.After(time.Second):
		t.Fatalf("heartbeat hook not invoked")
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("listener did not stop after cancel")
	}
	select {
	case <-clock.Closed():
		t.Fatalf("cancellation must not close the clock")
	default:
	}
}

func TestListenerStopsWhenReaderDetached(t *testing.T) {
	clock := NewClock(time.Now())
	clock.Detach()

	l, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- l.Serve(context.Background(), clock) }()

	sendDatagram(t, l.Addr(), []byte("ping"))

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrReaderGone) {
			t.Fatalf("expected ErrReaderGone, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("listener did not stop after reader detached")
	}
}

func TestListenerClosesClockOnReceiveError(t *testing.T) {
	clock := NewClock(time.Now())
	l, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- l.Serve(context.Background(), clock) }()

	// Closing the socket underneath Serve surfaces as a receive error.
	time.Sleep(20 * time.Millisecond)
	_ = l.Close()

	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "receive heartbeat") {
			t.Fatalf("expected receive error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("listener did not stop after socket close")
	}
	select {
	case <-clock.Closed():
	default:
		t.Fatalf("expected clock to be closed after receive error")
	}
}

func TestListenReportsBindFailure(t *testing.T) {
	occupied, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer occupied.Close()

	_, err = Listen(context.Background(), occupied.LocalAddr().String())
	if err == nil {
		t.Fatalf("expected bind failure on occupied port")
	}
	if !strings.Contains(err.Error(), "bind udp") {
		t.Fatalf("unexpected error: %v", err)
	}
}
