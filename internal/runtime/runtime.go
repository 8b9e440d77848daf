package runtime

const (
	// LogSourceStdout marks a line read from the child's standard output.
	LogSourceStdout = "stdout"
	// LogSourceStderr marks a line read from the child's standard error.
	LogSourceStderr = "stderr"
	// LogSourceSystem marks messages produced by the supervisor itself.
	LogSourceSystem = "system"
)

// LogEntry is a single line of child output.
type LogEntry struct {
	Message string
	Source  string
	Level   string
}

// Spec describes the child process to launch.
type Spec struct {
	// Command is the path of the binary to execute.
	Command string
	// Args are passed to the binary verbatim.
	Args []string
	// Env entries are appended to the supervisor's own environment.
	Env map[string]string
	// Workdir is the child's working directory. Empty inherits ours.
	Workdir string
}
