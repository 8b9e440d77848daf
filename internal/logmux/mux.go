package logmux

import (
	"fmt"
	"sync"

	"github.com/Paintersrp/beatguard/internal/runtime"
)

// Mux fans in child output lines from one or more sources and delivers them
// via a bounded channel. When the consumer cannot keep up and the output
// buffer would overflow, the mux drops lines and later emits a synthesized
// warning entry carrying the number of discarded lines per source.
type Mux struct {
	out chan runtime.LogEntry

	mu     sync.Mutex
	drops  map[string]int
	inputs sync.WaitGroup

	onDrop func(source string, n int)
}

// New constructs a mux backed by a channel of the provided size. A size of
// zero results in a minimally buffered channel.
func New(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:   make(chan runtime.LogEntry, size),
		drops: make(map[string]int),
	}
}

// OnDrop registers fn to be called for every discarded line. It must be set
// before the first source is added.
func (m *Mux) OnDrop(fn func(source string, n int)) {
	m.onDrop = fn
}

// Output exposes the muxed entry channel.
func (m *Mux) Output() <-chan runtime.LogEntry {
	return m.out
}

// Add registers a new source channel. The mux consumes entries until the
// source channel is closed. Producers never block on a slow consumer.
func (m *Mux) Add(source <-chan runtime.LogEntry) {
	if source == nil {
		return
	}
	m.inputs.Add(1)
	go func() {
		defer m.inputs.Done()
		for entry := range source {
			m.deliver(normalize(entry))
		}
	}()
}

// Close waits for all sources to be drained, emits any pending drop metadata,
// and closes the output channel.
func (m *Mux) Close() {
	m.inputs.Wait()
	m.flushDrops()
	close(m.out)
}

func (m *Mux) deliver(entry runtime.LogEntry) {
	if !m.flushPending(entry.Source) {
		m.recordDrop(entry.Source, 1)
		return
	}
	if m.trySend(entry) {
		return
	}
	m.recordDrop(entry.Source, 1)
}

func (m *Mux) flushPending(source string) bool {
	count := m.takeDrops(source)
	if count == 0 {
		return true
	}
	if m.trySend(synthesizeDropEntry(source, count)) {
		return true
	}
	m.restoreDrops(source, count)
	return false
}

func (m *Mux) takeDrops(source string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.drops[source]
	delete(m.drops, source)
	return count
}

func (m *Mux) restoreDrops(source string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops[source] += count
}

func (m *Mux) recordDrop(source string, count int) {
	m.restoreDrops(source, count)
	if m.onDrop != nil {
		m.onDrop(source, count)
	}
}

func (m *Mux) flushDrops() {
	m.mu.Lock()
	pending := m.drops
	m.drops = make(map[string]int)
	m.mu.Unlock()

	for _, source := range []string{runtime.LogSourceStdout, runtime.LogSourceStderr} {
		if count := pending[source]; count > 0 {
			m.out <- synthesizeDropEntry(source, count)
			delete(pending, source)
		}
	}
	for source, count := range pending {
		if count > 0 {
			m.out <- synthesizeDropEntry(source, count)
		}
	}
}

func (m *Mux) trySend(entry runtime.LogEntry) bool {
	select {
	case m.out <- entry:
		return true
	default:
		return false
	}
}

// normalize leaves Level alone; the log writer infers it from the message.
func normalize(entry runtime.LogEntry) runtime.LogEntry {
	if entry.Source == "" {
		entry.Source = runtime.LogSourceStdout
	}
	return entry
}

func synthesizeDropEntry(source string, count int) runtime.LogEntry {
	return runtime.LogEntry{
		Message: fmt.Sprintf("dropped=%d source=%s", count, source),
		Level:   "warn",
		Source:  runtime.LogSourceSystem,
	}
}
