package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Paintersrp/beatguard/internal/config"
	"github.com/Paintersrp/beatguard/internal/engine"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

type superviseFunc func(stdcontext.Context, engine.Config, engine.Sink, func(int)) (engine.Outcome, error)

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{
		opts:       &options{},
		exit:       exitProcess,
		lookupEnv:  os.LookupEnv,
		isTerminal: term.IsTerminal,
		supervise:  runSupervisor,
	}

	root := &cobra.Command{
		Use:   "beatguard [flags] BINARY [-- ARGS...]",
		Short: "Run a child process and kill it when its UDP heartbeats stop",
		Long: `beatguard launches BINARY in its own process group and listens for UDP
heartbeat datagrams. If no datagram arrives within the timeout, or the
supervisor is asked to shut down, the whole process group is killed.

Exit codes: 0 child exited or shutdown, 1 heartbeat timeout or startup
failure, 2 error waiting for the child, 3 heartbeat listener failure,
128+n when terminated by signal n.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.runSupervise(cmd, args)
		},
	}
	// Everything after BINARY belongs to the child.
	root.Flags().SetInterspersed(false)

	root.PersistentFlags().StringVarP(&ctx.opts.configFile, "config", "f", "", "Path to a beatguard YAML config file")
	root.Flags().StringVarP(&ctx.opts.listenAddr, "listen-addr", "l", config.DefaultListenAddr, "UDP address to receive heartbeats on")
	root.Flags().IntVarP(&ctx.opts.timeoutSecs, "timeout-secs", "t", config.DefaultTimeoutSeconds, "Seconds without a heartbeat before the child is killed")
	root.Flags().StringVar(&ctx.opts.metricsAddr, "metrics-addr", "", "Serve status and Prometheus metrics on this address (disabled when empty)")
	root.Flags().StringVar(&ctx.opts.logFormat, "log-format", config.LogFormatAuto, "Log format: auto, text or json")

	root.AddCommand(newConfigCmd())
	root.AddCommand(newPingCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint and exits the process.
func Execute() {
	root, ctx := newRootCommand()
	if err := root.ExecuteContext(stdcontext.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitProcess(1)
	}
	exitProcess(ctx.exitCode)
}

var exitOnce sync.Once

// exitProcess ends the process with the first code it is given. The signal
// handler and the main path may race to exit; the loser blocks until the
// process is gone.
func exitProcess(code int) {
	exitOnce.Do(func() {
		os.Exit(code)
	})
	select {}
}

type options struct {
	configFile  string
	listenAddr  string
	timeoutSecs int
	metricsAddr string
	logFormat   string
}

type context struct {
	opts *options

	exit       func(int)
	lookupEnv  config.LookupFunc
	isTerminal func(fd int) bool
	supervise  superviseFunc

	exitCode int
}
