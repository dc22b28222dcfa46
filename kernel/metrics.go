package kernel

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentation = "github.com/delaneyj/deltasim/kernel"

var tracer = otel.Tracer(instrumentation)

// Stats counts kernel work since the simulator was created.
type Stats struct {
	Deltas      uint64
	CombEvals   uint64
	SyncEvals   uint64
	Commits     uint64
	Resumptions uint64
	Instants    uint64
}

type instruments struct {
	deltas      metric.Int64Counter
	combEvals   metric.Int64Counter
	syncEvals   metric.Int64Counter
	commits     metric.Int64Counter
	resumptions metric.Int64Counter
	simTime     metric.Float64Counter
}

// initMetrics lazily creates the otel instruments. Failures are logged and
// leave the failing instrument nil.
func (s *Simulator) initMetrics() {
	s.metricsOnce.Do(func() {
		mp := s.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		meter := mp.Meter(instrumentation)

		var initErrors []string
		var err error
		s.inst.deltas, err = meter.Int64Counter("sim_delta_cycles_total",
			metric.WithDescription("Delta iterations executed"),
		)
		if err != nil {
			initErrors = append(initErrors, "deltas: "+err.Error())
		}
		s.inst.combEvals, err = meter.Int64Counter("sim_comb_evaluations_total",
			metric.WithDescription("Comb process evaluations"),
		)
		if err != nil {
			initErrors = append(initErrors, "comb_evals: "+err.Error())
		}
		s.inst.syncEvals, err = meter.Int64Counter("sim_sync_evaluations_total",
			metric.WithDescription("Sync process evaluations"),
		)
		if err != nil {
			initErrors = append(initErrors, "sync_evals: "+err.Error())
		}
		s.inst.commits, err = meter.Int64Counter("sim_commits_total",
			metric.WithDescription("Deferred write commits"),
		)
		if err != nil {
			initErrors = append(initErrors, "commits: "+err.Error())
		}
		s.inst.resumptions, err = meter.Int64Counter("sim_task_resumptions_total",
			metric.WithDescription("Task resumptions"),
		)
		if err != nil {
			initErrors = append(initErrors, "resumptions: "+err.Error())
		}
		s.inst.simTime, err = meter.Float64Counter("sim_time_advanced_seconds",
			metric.WithDescription("Simulated time advanced"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "sim_time: "+err.Error())
		}

		if len(initErrors) > 0 {
			s.log.Error("failed to initialize some kernel metrics",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// flushMetrics publishes the counters accumulated since the last flush.
func (s *Simulator) flushMetrics(ctx context.Context) {
	s.initMetrics()
	attrs := metric.WithAttributes(attribute.String("design", s.root.typ.Name))
	cur, last := s.stats, s.flushed
	add := func(c metric.Int64Counter, n, m uint64) {
		if c != nil && n > m {
			c.Add(ctx, int64(n-m), attrs)
		}
	}
	add(s.inst.deltas, cur.Deltas, last.Deltas)
	add(s.inst.combEvals, cur.CombEvals, last.CombEvals)
	add(s.inst.syncEvals, cur.SyncEvals, last.SyncEvals)
	add(s.inst.commits, cur.Commits, last.Commits)
	add(s.inst.resumptions, cur.Resumptions, last.Resumptions)
	if s.inst.simTime != nil && s.now > s.flushedNow {
		s.inst.simTime.Add(ctx, (s.now - s.flushedNow).Seconds(), attrs)
	}
	s.flushed = cur
	s.flushedNow = s.now
}
