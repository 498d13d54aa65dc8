package observability

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestParseMetricsExporterType(t *testing.T) {
	testcases := []struct {
		name   string
		input  string
		want   MetricsExporterType
		hasErr bool
	}{
		{"empty", "", NoneExporter, false},
		{"none", "none", NoneExporter, false},
		{"console", " Console ", ConsoleExporter, false},
		{"prometheus", "PROMETHEUS", PrometheusExporter, false},
		{"unknown", "statsd", NoneExporter, true},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(tt *testing.T) {
			typ, err := ParseMetricsExporterType(tc.input)
			if tc.hasErr {
				require.Error(tt, err)
			} else {
				require.NoError(tt, err)
			}
			require.Equal(tt, tc.want, typ)
		})
	}
}

func TestSetupMetricsExporter_None(t *testing.T) {
	shutdown, err := SetupMetricsExporter(NoneExporter, time.Second)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestAppMeterName(t *testing.T) {
	require.Equal(t, "rbbench/app/default", appMeterName(" "))
	require.Equal(t, "rbbench/app/cli", appMeterName("cli"))
}

func TestBenchMeter_RecordInsert(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	defer func() {
		require.NoError(t, mp.Shutdown(context.Background()))
	}()

	meter, err := NewBenchMeter(mp)
	require.NoError(t, err)
	ctx := context.Background()
	meter.RecordInsert(ctx, "rbtree", 12*time.Millisecond, 1000, 3)
	meter.RecordInsert(ctx, "rbtree", 8*time.Millisecond, 1000, 0)
	meter.RecordInsert(ctx, "btree", 10*time.Millisecond, 1000, 0)

	var nilMeter *BenchMeter
	nilMeter.RecordInsert(ctx, "rbtree", time.Millisecond, 1, 1)

	rm := metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Equal(t, benchMeterName, rm.ScopeMetrics[0].Scope.Name)
	metrics := lo.SliceToMap(rm.ScopeMetrics[0].Metrics, func(m metricdata.Metrics) (string, metricdata.Metrics) {
		return m.Name, m
	})
	require.Len(t, metrics, 3)

	rbtreeAttr := attribute.NewSet(attribute.String("container", "rbtree"))
	btreeAttr := attribute.NewSet(attribute.String("container", "btree"))

	hist, ok := metrics["rbbench.insert.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Equal(t, "ms", metrics["rbbench.insert.duration"].Unit)
	for _, dp := range hist.DataPoints {
		switch {
		case dp.Attributes.Equals(&rbtreeAttr):
			require.Equal(t, uint64(2), dp.Count)
			require.InDelta(t, 20.0, dp.Sum, 1e-9)
		case dp.Attributes.Equals(&btreeAttr):
			require.Equal(t, uint64(1), dp.Count)
		default:
			t.Fatalf("unexpected attributes %v", dp.Attributes)
		}
	}

	keys, ok := metrics["rbbench.insert.keys"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, keys.DataPoints, 2)
	for _, dp := range keys.DataPoints {
		if dp.Attributes.Equals(&rbtreeAttr) {
			require.Equal(t, int64(2000), dp.Value)
		} else {
			require.Equal(t, int64(1000), dp.Value)
		}
	}

	dups, ok := metrics["rbbench.insert.duplicates"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, dups.DataPoints, 1)
	require.Equal(t, int64(3), dups.DataPoints[0].Value)
}

func TestInitAppStats(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(mp)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	InitAppStats(ctx, "test", func(ctx context.Context) error {
		defer close(stopped)
		return mp.Shutdown(ctx)
	})

	rm := metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(context.Background(), &rm))
	scope, ok := lo.Find(rm.ScopeMetrics, func(sm metricdata.ScopeMetrics) bool {
		return sm.Scope.Name == "rbbench/app/test"
	})
	require.True(t, ok)
	names := lo.Map(scope.Metrics, func(m metricdata.Metrics, _ int) string {
		return m.Name
	})
	require.ElementsMatch(t, []string{"app.core.goroutines", "app.core.processes"}, names)

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("app stats shutdown timeout")
	}
}
