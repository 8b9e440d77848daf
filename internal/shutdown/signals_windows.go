//go:build windows

package shutdown

import (
	"os"
	"syscall"
)

// terminationSignals are the requests that stop the supervisor. Console close,
// logoff and shutdown events arrive as SIGTERM.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
