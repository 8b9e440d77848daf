//go:build !windows

package shutdown

import (
	"os"
	"syscall"
)

// terminationSignals are the requests that stop the supervisor.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}
