package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	heartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "beatguard",
		Name:      "heartbeats_total",
		Help:      "Total number of heartbeat datagrams received.",
	})

	lastHeartbeat = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "beatguard",
		Name:      "last_heartbeat_timestamp_seconds",
		Help:      "Unix time of the most recent heartbeat datagram.",
	})

	timeoutSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "beatguard",
		Name:      "timeout_seconds",
		Help:      "Configured heartbeat timeout in seconds.",
	})

	childRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "beatguard",
		Name:      "child_running",
		Help:      "Whether the supervised child is running (1) or not (0).",
	})

	terminationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beatguard",
		Name:      "terminations_total",
		Help:      "Child terminations issued by the supervisor, by reason.",
	}, []string{"reason"})

	outputDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beatguard",
		Name:      "child_output_dropped_lines_total",
		Help:      "Child output lines discarded because the log writer fell behind, by stream.",
	}, []string{"stream"})

	outcome = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "beatguard",
		Name:      "outcome",
		Help:      "Terminal supervision outcome (1 for the outcome that occurred).",
	}, []string{"kind"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "beatguard",
		Name:      "build_info",
		Help:      "Build metadata for the running beatguard binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(heartbeatsTotal, lastHeartbeat, timeoutSeconds, childRunning, terminationsTotal, outputDropped, outcome, buildInfo)
}

// Registry returns the Prometheus registry containing all beatguard metrics.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveHeartbeat records a received heartbeat.
func ObserveHeartbeat(at time.Time) {
	heartbeatsTotal.Inc()
	lastHeartbeat.Set(float64(at.UnixNano()) / float64(time.Second))
}

// SetTimeout publishes the configured timeout.
func SetTimeout(d time.Duration) {
	timeoutSeconds.Set(d.Seconds())
}

// SetChildRunning records whether the child is alive.
func SetChildRunning(running bool) {
	value := 0.0
	if running {
		value = 1.0
	}
	childRunning.Set(value)
}

// IncrementTermination counts a termination issued for reason.
func IncrementTermination(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	terminationsTotal.WithLabelValues(reason).Inc()
}

// AddDroppedOutput counts n child output lines discarded from stream.
func AddDroppedOutput(stream string, n int) {
	if n <= 0 {
		return
	}
	outputDropped.WithLabelValues(stream).Add(float64(n))
}

// RecordOutcome marks kind as the terminal outcome.
func RecordOutcome(kind string) {
	if kind == "" {
		return
	}
	outcome.WithLabelValues(kind).Set(1)
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
