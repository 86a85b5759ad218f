package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type perfGauges struct {
	cpuPercent   metric.Float64Gauge
	systemMemory metric.Float64Gauge
	heapMB       metric.Int64Gauge
	goroutines   metric.Int64Gauge
	browserProcs metric.Int64Gauge
	browserRSSMB metric.Int64Gauge
}

func newPerfGauges() perfGauges {
	m := otel.Meter("runharvest/perf_stats")
	var g perfGauges
	g.cpuPercent, _ = m.Float64Gauge("cpu_usage")
	g.systemMemory, _ = m.Float64Gauge("system_memory_used_percent")
	g.heapMB, _ = m.Int64Gauge("allocated_mb")
	g.goroutines, _ = m.Int64Gauge("goroutine_count")
	g.browserProcs, _ = m.Int64Gauge("browser_process_count")
	g.browserRSSMB, _ = m.Int64Gauge("browser_rss_mb")
	return g
}

// InstrumentPerfStats samples cpu and memory every interval until ctx is done. Chrome
// processes dominate a harvest, so their count and resident memory are sampled alongside
// the go runtime.
func InstrumentPerfStats(ctx context.Context, interval time.Duration) {
	g := newPerfGauges()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.sample(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (g perfGauges) sample(ctx context.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	g.heapMB.Record(ctx, int64(ms.Alloc/1_000_000))
	g.goroutines.Record(ctx, int64(runtime.NumGoroutine()))

	if usage, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		slog.Debug("failed to read cpu usage", "err", err)
	} else if len(usage) > 0 {
		g.cpuPercent.Record(ctx, usage[0])
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		g.systemMemory.Record(ctx, vm.UsedPercent)
	}

	count, rss, err := browserUsage(ctx)
	if err != nil {
		slog.Debug("failed to list processes", "err", err)
		return
	}
	g.browserProcs.Record(ctx, count)
	g.browserRSSMB.Record(ctx, int64(rss/1_000_000))
}

// browserUsage sums the resident memory of every chrome or chromium process on the host.
func browserUsage(ctx context.Context) (int64, uint64, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	var (
		count int64
		rss   uint64
	)
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !isBrowserProcess(name) {
			continue
		}
		count++
		if info, err := p.MemoryInfoWithContext(ctx); err == nil {
			rss += info.RSS
		}
	}
	return count, rss, nil
}

func isBrowserProcess(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "chrome") || strings.Contains(name, "chromium")
}
