package reflection

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ralph-memory/internal/reflection"

// Metrics holds cold path instruments.
type Metrics struct {
	meter             metric.Meter
	logger            *zap.Logger
	episodesExtracted metric.Int64Counter
	rulesDetected     metric.Int64Counter
	rulesSaved        metric.Int64Counter
	episodesRemoved   metric.Int64Counter
	factsExpired      metric.Int64Counter
	rulesDecayed      metric.Int64Counter
	errors            metric.Int64Counter
	duration          metric.Float64Histogram
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
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := m.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			m.logger.Warn("failed to create counter", zap.String("name", name), zap.Error(err))
			return nil
		}
		return c
	}

	m.episodesExtracted = counter("ralph.reflection.episodes_extracted_total",
		"Episodes extracted from transcripts", "{episode}")
	m.rulesDetected = counter("ralph.reflection.rules_detected_total",
		"Candidate rules synthesized by pattern mining", "{rule}")
	m.rulesSaved = counter("ralph.reflection.rules_saved_total",
		"Rules kept after a merge pass", "{rule}")
	m.episodesRemoved = counter("ralph.reflection.episodes_removed_total",
		"Episodes removed by the retention sweep", "{episode}")
	m.factsExpired = counter("ralph.reflection.facts_expired_total",
		"Semantic facts removed after their TTL", "{fact}")
	m.rulesDecayed = counter("ralph.reflection.rules_decayed_total",
		"Unused rules whose confidence was lowered", "{rule}")
	m.errors = counter("ralph.reflection.errors_total",
		"Cold path operations that failed", "{error}")

	var err error
	m.duration, err = m.meter.Float64Histogram(
		"ralph.reflection.operation.duration_seconds",
		metric.WithDescription("Duration of cold path operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}
}

func add(ctx context.Context, c metric.Int64Counter, n int) {
	if c != nil && n > 0 {
		c.Add(ctx, int64(n))
	}
}

// observe records the duration and, on failure, an error for operation.
func (m *Metrics) observe(ctx context.Context, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	if m.duration != nil {
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
