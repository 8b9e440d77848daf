package engine

import (
	"sync"
	"time"

	"github.com/Paintersrp/beatguard/internal/logmux"
	"github.com/Paintersrp/beatguard/internal/metrics"
	"github.com/Paintersrp/beatguard/internal/runtime"
)

const (
	outputBufferSize   = 1024
	outputFlushTimeout = 2 * time.Second
)

// outputPump decouples the child's pipe readers from the event sink. Lines
// are buffered by a logmux.Mux and dropped, with a summary, when the sink
// falls behind.
type outputPump struct {
	mu     sync.Mutex
	closed bool
	src    chan runtime.LogEntry
	mux    *logmux.Mux
	done   chan struct{}
}

func newOutputPump(sink Sink, size int) *outputPump {
	p := &outputPump{
		src:  make(chan runtime.LogEntry),
		mux:  logmux.New(size),
		done: make(chan struct{}),
	}
	p.mux.OnDrop(metrics.AddDroppedOutput)
	p.mux.Add(p.src)

	child := logEntryFunc(sink, "")
	dropped := logEntryFunc(sink, ReasonOutputDropped)
	go func() {
		defer close(p.done)
		for entry := range p.mux.Output() {
			if entry.Source == runtime.LogSourceSystem {
				dropped(entry)
				continue
			}
			child(entry)
		}
	}()
	return p
}

// Send forwards one line. Lines sent after Close are discarded.
func (p *outputPump) Send(entry runtime.LogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.src <- entry
}

// Close stops accepting lines and lets the mux drain.
func (p *outputPump) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.src)
	p.mu.Unlock()
	go p.mux.Close()
}

// Wait blocks until every buffered line reached the sink or timeout passes.
func (p *outputPump) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}
