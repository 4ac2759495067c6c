package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Telemetry holds the process meter provider.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	reader        *sdkmetric.ManualReader

	healthy atomic.Bool
}

// New creates Telemetry. When enabled it installs a MeterProvider with a
// manual reader as the global provider.
func New(enabled bool) *Telemetry {
	t := &Telemetry{}
	if !enabled {
		return t
	}
	t.reader = sdkmetric.NewManualReader()
	t.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(t.reader))
	otel.SetMeterProvider(t.meterProvider)
	t.healthy.Store(true)
	return t
}

// Meter returns a meter for the given instrumentation scope.
//
// Returns the global meter if telemetry is disabled.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// IsEnabled reports whether a meter provider is installed and not shut down.
func (t *Telemetry) IsEnabled() bool {
	return t != nil && t.healthy.Load()
}

// Measurement is one data point of a collected metric. Histograms report
// their count and sum.
type Measurement struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value,omitempty"`
	Count      uint64            `json:"count,omitempty"`
	Sum        float64           `json:"sum,omitempty"`
}

// Snapshot collects every metric recorded so far, sorted by name.
func (t *Telemetry) Snapshot(ctx context.Context) ([]Measurement, error) {
	if !t.IsEnabled() {
		return []Measurement{}, nil
	}

	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collecting metrics: %w", err)
	}

	out := make([]Measurement, 0)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out = append(out, Measurement{Name: m.Name, Attributes: attrMap(dp.Attributes), Value: float64(dp.Value)})
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					out = append(out, Measurement{Name: m.Name, Attributes: attrMap(dp.Attributes), Value: dp.Value})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out = append(out, Measurement{Name: m.Name, Attributes: attrMap(dp.Attributes), Count: dp.Count, Sum: dp.Sum})
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// WriteSnapshot writes the snapshot to w as one JSON object per line.
func (t *Telemetry) WriteSnapshot(ctx context.Context, w io.Writer) error {
	ms, err := t.Snapshot(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, m := range ms {
		if err := enc.Encode(m); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown releases the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.meterProvider == nil {
		return nil
	}
	t.healthy.Store(false)
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}
	return nil
}

func attrMap(set attribute.Set) map[string]string {
	if set.Len() == 0 {
		return nil
	}
	out := make(map[string]string, set.Len())
	for iter := set.Iter(); iter.Next(); {
		kv := iter.Attribute()
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
