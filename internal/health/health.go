// Package health periodically samples host resource usage and the
// running session count, publishing the result to the event bus as
// supervisor.health. It generalizes the reference agent's heartbeat
// ticker and gopsutil metrics collector into a single best-effort
// reporter: any individual metric that fails to sample is simply
// omitted rather than aborting the whole snapshot.
package health

import (
	"context"
	"log"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/fyplabs/sessiond/internal/eventbus"
)

// DefaultInterval is the heartbeat cadence used when no positive
// interval is supplied.
const DefaultInterval = 10 * time.Second

// Snapshot is published on eventbus.TopicSupervisorHealth.
type Snapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	UptimeSeconds  int64     `json:"uptimeSeconds"`
	SessionCount   int       `json:"sessionCount"`
	CoreCount      int       `json:"coreCount"`
	CPUPercent     float64   `json:"cpuPercent,omitempty"`
	LoadAvg1       float64   `json:"loadAvg1,omitempty"`
	MemUsedPercent float64   `json:"memUsedPercent,omitempty"`
}

// SessionCounter reports how many sessions the registry currently
// tracks; session.Registry.List satisfies this via its length.
type SessionCounter func() int

// Reporter ticks at Interval, publishing a Snapshot to Bus each time.
type Reporter struct {
	Bus      *eventbus.Hub
	Counter  SessionCounter
	Interval time.Duration

	start time.Time
}

// NewReporter constructs a Reporter with DefaultInterval when interval
// is zero.
func NewReporter(bus *eventbus.Hub, counter SessionCounter, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{Bus: bus, Counter: counter, Interval: interval, start: time.Now()}
}

// Run blocks, publishing snapshots until ctx is cancelled. The first
// snapshot is sent immediately so subscribers connecting right after
// startup don't wait a full interval for their first reading.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.publishOnce(ctx)
	for {
		select {
		case <-ticker.C:
			r.publishOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reporter) publishOnce(ctx context.Context) {
	snap := Snapshot{
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(r.start).Seconds()),
		CoreCount:     runtime.NumCPU(),
	}
	if r.Counter != nil {
		snap.SessionCount = r.Counter()
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	} else if err != nil {
		log.Printf("health: cpu sample failed: %v", err)
	}

	if avg, err := load.Avg(); err == nil {
		snap.LoadAvg1 = avg.Load1
	}

	if v, err := mem.VirtualMemory(); err == nil {
		snap.MemUsedPercent = v.UsedPercent
	}

	r.Bus.Publish(eventbus.TopicSupervisorHealth, snap)
}
