package memory

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ralph-memory/internal/memory"

// Metrics counts hot path operations.
type Metrics struct {
	meter      metric.Meter
	logger     *zap.Logger
	operations metric.Int64Counter
	errors     metric.Int64Counter
	injections metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.operations, err = m.meter.Int64Counter(
		"ralph.memory.operations_total",
		metric.WithDescription("Memory operations by operation and store type"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		m.logger.Warn("failed to create operations counter", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"ralph.memory.errors_total",
		metric.WithDescription("Memory operations that returned an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.injections, err = m.meter.Int64Counter(
		"ralph.memory.prompt_injections_total",
		metric.WithDescription("Rule prompts added to hook responses"),
		metric.WithUnit("{prompt}"),
	)
	if err != nil {
		m.logger.Warn("failed to create injections counter", zap.Error(err))
	}
}

// record counts one operation against a store type.
func (m *Metrics) record(ctx context.Context, operation string, t MemoryType, err error) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("type", string(t)),
	)
	if m.operations != nil {
		m.operations.Add(ctx, 1, attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) injected(ctx context.Context, point string, n int) {
	if m.injections != nil && n > 0 {
		m.injections.Add(ctx, int64(n), metric.WithAttributes(attribute.String("hook", point)))
	}
}
