// Package metrics samples host CPU, memory, and per-NIC throughput on a
// fixed period and publishes each sample as a metrics event (§4.7). It is
// grounded on the teacher's StatsCollector (tvarr internal/daemon/stats.go),
// trimmed to the fields the metrics event actually carries (no disk, load
// average, or GPU stats — this domain has no scheduler to report them to)
// and retargeted from a one-shot Collect call to a self-driving ticker loop.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/lavacaster/broadcaster/internal/eventbus"
	"github.com/lavacaster/broadcaster/internal/observability"
)

// defaultInterval is used when the configured sample interval is zero.
const defaultInterval = 5 * time.Second

// Sampler periodically publishes a metrics event onto the bus (§5: "its own
// goroutine at a fixed period using time.Ticker").
type Sampler struct {
	bus      *eventbus.Bus
	logger   *slog.Logger
	interval time.Duration
	nics     map[string]bool

	lastNet     map[string]psnet.IOCountersStat
	lastNetTime time.Time
}

// New builds a Sampler. nics restricts NIC reporting to the named
// interfaces; an empty list reports every interface gopsutil finds.
func New(bus *eventbus.Bus, logger *slog.Logger, interval time.Duration, nics []string) *Sampler {
	if interval <= 0 {
		interval = defaultInterval
	}
	set := make(map[string]bool, len(nics))
	for _, n := range nics {
		set[n] = true
	}
	return &Sampler{bus: bus, logger: logger, interval: interval, nics: set}
}

// Run samples and publishes until ctx is cancelled. Intended to be started
// in its own goroutine at boot; returns when ctx.Done() fires.
func (s *Sampler) Run(ctx context.Context) {
	observability.System(ctx, s.logger, "metrics sampler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			observability.System(ctx, s.logger, "metrics sampler stopped")
			return
		case <-ticker.C:
			s.bus.Publish(eventbus.Event{Type: eventbus.Metrics, Payload: s.sample(ctx)})
		}
	}
}

// sample collects one reading. Every gopsutil call is best-effort: a
// failure leaves that reading's fields at their zero value rather than
// aborting the whole sample (same discipline as the teacher's collector).
func (s *Sampler) sample(ctx context.Context) eventbus.MetricsPayload {
	var payload eventbus.MetricsPayload

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		payload.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		payload.MemPercent = vm.UsedPercent
		payload.MemUsedGB = bytesToGB(vm.Used)
		payload.MemTotalGB = bytesToGB(vm.Total)
	}

	payload.NICs = s.sampleNICs(ctx)
	return payload
}

// sampleNICs computes per-interface tx/rx throughput in Mbps from the
// counter delta since the previous sample, mirroring the teacher's
// lastNetStats/lastNetTime rate calculation but per-NIC instead of
// aggregated across the host.
func (s *Sampler) sampleNICs(ctx context.Context) map[string]eventbus.NICMetrics {
	counters, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil
	}

	now := time.Now()
	out := make(map[string]eventbus.NICMetrics, len(counters))
	elapsed := now.Sub(s.lastNetTime).Seconds()

	cur := make(map[string]psnet.IOCountersStat, len(counters))
	for _, c := range counters {
		if len(s.nics) > 0 && !s.nics[c.Name] {
			continue
		}
		cur[c.Name] = c

		var m eventbus.NICMetrics
		if prev, ok := s.lastNet[c.Name]; ok && elapsed > 0 {
			m.TxMbps = bytesToMbps(c.BytesSent-prev.BytesSent, elapsed)
			m.RxMbps = bytesToMbps(c.BytesRecv-prev.BytesRecv, elapsed)
		}
		out[c.Name] = m
	}

	s.lastNet = cur
	s.lastNetTime = now
	return out
}

func bytesToGB(b uint64) float64 {
	return float64(b) / (1 << 30)
}

func bytesToMbps(deltaBytes uint64, elapsedSec float64) float64 {
	return (float64(deltaBytes) * 8 / 1_000_000) / elapsedSec
}
