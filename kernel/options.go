package kernel

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
)

type Option func(*Simulator)

func WithConfig(cfg Config) Option {
	return func(s *Simulator) { s.cfg = cfg }
}

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

func WithTracer(tr Tracer) Option {
	return func(s *Simulator) { s.tracer = tr }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Simulator) { s.meterProvider = mp }
}
