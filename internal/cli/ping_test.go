package cli

import (
	"bytes"
	stdcontext "context"
	"net"
	"strings"
	"testing"
	"time"
)

func TestPingSendsCountedHeartbeats(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"ping", "--addr", conn.LocalAddr().String(), "--interval", "5ms", "--count", "3", "--payload", "hb"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	for i := 0; i < 3; i++ {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			t.Fatalf("read heartbeat %d: %v", i+1, err)
		}
		if string(buf[:n]) != "hb" {
			t.Fatalf("unexpected payload %q", buf[:n])
		}
	}
	if got := strings.Count(out.String(), "sent to"); got != 3 {
		t.Fatalf("expected 3 progress lines, got %d: %q", got, out.String())
	}
}

func TestPingStopsOnCancel(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	ctx, cancel := stdcontext.WithCancel(stdcontext.Background())
	sent := 0
	err = sendHeartbeats(ctx, pingOptions{addr: conn.LocalAddr().String(), interval: time.Hour, payload: defaultPingPayload}, func(int) {
		sent++
		cancel()
	})
	if err != nil {
		t.Fatalf("sendHeartbeats: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected a single heartbeat before cancellation, got %d", sent)
	}
}

func TestPingRejectsBadFlags(t *testing.T) {
	for _, args := range [][]string{
		{"ping", "--addr", "nowhere"},
		{"ping", "--interval", "0s"},
		{"ping", "--count", "-1"},
	} {
		cmd := NewRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		if err := cmd.Execute(); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}
