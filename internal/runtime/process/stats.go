package process

import (
	"context"
	"errors"
	"fmt"

	units "github.com/docker/go-units"
	gops "github.com/shirou/gopsutil/v3/process"
)

// ResourceStats is a point-in-time view of the child's resource usage.
type ResourceStats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	RSS        string  `json:"rss"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
	Children   int     `json:"children"`
}

// Stats samples resource usage for pid. Fields that cannot be read on the
// current platform are left zero.
func Stats(ctx context.Context, pid int) (ResourceStats, error) {
	var stats ResourceStats
	if pid <= 0 {
		return stats, fmt.Errorf("invalid pid %d", pid)
	}
	proc, err := gops.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return stats, fmt.Errorf("inspect pid %d: %w", pid, err)
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
		stats.RSS = units.BytesSize(float64(mem.RSS))
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		stats.Threads = threads
	}
	children, err := proc.ChildrenWithContext(ctx)
	switch {
	case err == nil:
		stats.Children = len(children)
	case errors.Is(err, gops.ErrorNoChildren):
	default:
		return stats, fmt.Errorf("list children of pid %d: %w", pid, err)
	}
	return stats, nil
}
