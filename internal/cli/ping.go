package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/beatguard/internal/config"
)

const defaultPingPayload = "beat"

type pingOptions struct {
	addr     string
	interval time.Duration
	count    int
	payload  string
	quiet    bool
}

func newPingCmd() *cobra.Command {
	opts := pingOptions{}
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Send heartbeat datagrams to a beatguard listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ValidateAddr(opts.addr); err != nil {
				return fmt.Errorf("--addr: %w", err)
			}
			if opts.interval <= 0 {
				return errors.New("--interval must be positive")
			}
			if opts.count < 0 {
				return errors.New("--count must not be negative")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return sendHeartbeats(ctx, opts, func(n int) {
				if !opts.quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "heartbeat %d sent to %s\n", n, opts.addr)
				}
			})
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:12345", "UDP address of the beatguard listener")
	cmd.Flags().DurationVar(&opts.interval, "interval", time.Second, "Delay between heartbeats")
	cmd.Flags().IntVar(&opts.count, "count", 0, "Number of heartbeats to send (0 sends until interrupted)")
	cmd.Flags().StringVar(&opts.payload, "payload", defaultPingPayload, "Datagram payload")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print a line per heartbeat")
	return cmd
}

func sendHeartbeats(ctx stdcontext.Context, opts pingOptions, sent func(int)) error {
	target, err := net.ResolveUDPAddr("udp", opts.addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", opts.addr, err)
	}
	// An unconnected socket keeps sending while the listener is down instead
	// of failing on ICMP port unreachable.
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return fmt.Errorf("open udp socket: %w", err)
	}
	defer conn.Close()

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for n := 1; opts.count == 0 || n <= opts.count; n++ {
		if _, err := conn.WriteTo([]byte(opts.payload), target); err != nil {
			return fmt.Errorf("send heartbeat: %w", err)
		}
		if sent != nil {
			sent(n)
		}
		if opts.count != 0 && n == opts.count {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
