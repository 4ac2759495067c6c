package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestTelemetry_Disabled(t *testing.T) {
	tel := New(false)
	assert.False(t, tel.IsEnabled())

	ms, err := tel.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ms)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetry_Snapshot(t *testing.T) {
	ctx := context.Background()
	tel := New(true)
	defer tel.Shutdown(ctx)
	require.True(t, tel.IsEnabled())

	meter := tel.Meter("test")
	counter, err := meter.Int64Counter("test.ops_total")
	require.NoError(t, err)
	hist, err := meter.Float64Histogram("test.duration_seconds")
	require.NoError(t, err)

	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("operation", "write")))
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "write")))
	hist.Record(ctx, 0.25)
	hist.Record(ctx, 0.75)

	ms, err := tel.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 2)

	assert.Equal(t, "test.duration_seconds", ms[0].Name)
	assert.Equal(t, uint64(2), ms[0].Count)
	assert.InDelta(t, 1.0, ms[0].Sum, 1e-9)

	assert.Equal(t, "test.ops_total", ms[1].Name)
	assert.InDelta(t, 3.0, ms[1].Value, 1e-9)
	assert.Equal(t, map[string]string{"operation": "write"}, ms[1].Attributes)
}

func TestTelemetry_WriteSnapshot(t *testing.T) {
	ctx := context.Background()
	tel := New(true)
	defer tel.Shutdown(ctx)

	counter, err := tel.Meter("test").Int64Counter("test.events_total")
	require.NoError(t, err)
	counter.Add(ctx, 4)

	var buf bytes.Buffer
	require.NoError(t, tel.WriteSnapshot(ctx, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var m Measurement
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "test.events_total", m.Name)
	assert.InDelta(t, 4.0, m.Value, 1e-9)
}

func TestTelemetry_ShutdownDisables(t *testing.T) {
	tel := New(true)
	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.IsEnabled())
}
