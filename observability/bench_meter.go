package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/qwtsc/yarb-tree/lib/infra"
)

const benchMeterName = "rbbench/insert"

// BenchMeter records the insertion rounds per container.
type BenchMeter struct {
	duration   metric.Float64Histogram
	keys       metric.Int64Counter
	duplicates metric.Int64Counter
}

func NewBenchMeter(mp metric.MeterProvider) (*BenchMeter, error) {
	meter := mp.Meter(benchMeterName)
	duration, err := meter.Float64Histogram(
		"rbbench.insert.duration",
		metric.WithDescription("The elapsed time to insert one workload into a container."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "insert duration histogram")
	}
	keys, err := meter.Int64Counter(
		"rbbench.insert.keys",
		metric.WithDescription("The inserted keys."),
	)
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "insert keys counter")
	}
	duplicates, err := meter.Int64Counter(
		"rbbench.insert.duplicates",
		metric.WithDescription("The rejected duplicate keys."),
	)
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "insert duplicates counter")
	}
	return &BenchMeter{
		duration:   duration,
		keys:       keys,
		duplicates: duplicates,
	}, nil
}

func (m *BenchMeter) RecordInsert(ctx context.Context, container string, elapsed time.Duration, keys, duplicates int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("container", container))
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1e3, attrs)
	m.keys.Add(ctx, keys, attrs)
	if duplicates > 0 {
		m.duplicates.Add(ctx, duplicates, attrs)
	}
}
