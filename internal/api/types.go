package api

import (
	stdcontext "context"
	"errors"
	"time"

	"github.com/Paintersrp/beatguard/internal/runtime/process"
)

// ErrNotStarted is returned while the supervisor has no child yet.
var ErrNotStarted = errors.New("supervisor not started")

// ChildReport describes the supervised process.
type ChildReport struct {
	Pid        int                    `json:"pid"`
	Command    string                 `json:"command"`
	Args       []string               `json:"args"`
	Running    bool                   `json:"running"`
	Resources  *process.ResourceStats `json:"resources,omitempty"`
	StatsError string                 `json:"stats_error,omitempty"`
}

// HeartbeatReport describes heartbeat reception and the current deadline.
type HeartbeatReport struct {
	ListenAddr     string    `json:"listen_addr"`
	BoundAddr      string    `json:"bound_addr,omitempty"`
	Listening      bool      `json:"listening"`
	Received       int64     `json:"received"`
	Last           time.Time `json:"last"`
	TimeoutSeconds float64   `json:"timeout_seconds"`
	Deadline       time.Time `json:"deadline"`
	Remaining      string    `json:"remaining"`
}

// OutcomeReport describes the terminal outcome once supervision ended.
type OutcomeReport struct {
	Kind       string    `json:"kind"`
	ExitCode   int       `json:"exit_code"`
	At         time.Time `json:"at"`
	Status     string    `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
	Terminated bool      `json:"terminated"`
}

// StatusReport aggregates supervisor status.
type StatusReport struct {
	RunID       string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	GeneratedAt time.Time       `json:"generated_at"`
	Child       ChildReport     `json:"child"`
	Heartbeat   HeartbeatReport `json:"heartbeat"`
	Outcome     *OutcomeReport  `json:"outcome,omitempty"`
}

// Controller exposes supervisor state to the status server.
type Controller interface {
	Status(stdcontext.Context) (*StatusReport, error)
}
