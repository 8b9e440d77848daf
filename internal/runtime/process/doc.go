// Package process launches and terminates the supervised child process.
//
// The child is started in its own process group so that the group id equals the
// child's pid. Terminate relies on that to deliver SIGKILL to every member of the
// group on POSIX systems. On Windows there is no equivalent signal target: the
// Terminator reports ErrGroupKillUnsupported and falls back to killing only the
// direct child. Grandchildren may survive on that platform and must be cleaned up
// by the caller; job objects would be required to close that gap.
//
// A Handle is owned by exactly one component at a time. Whoever passes a Handle
// on (for example the monitor handing it to the Terminator) must drop its own
// reference and stop interacting with the child.
package process
