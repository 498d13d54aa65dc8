package observability

import (
	"context"
	"runtime"
	"strings"
	"sync"

	"github.com/samber/lo"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	once sync.Once
)

type appStats struct {
	ctx              context.Context
	shutdownCallback ShutdownCallback
	goroutines       metric.Int64ObservableUpDownCounter
	processes        metric.Int64ObservableUpDownCounter
}

func (stats *appStats) waitForShutdown() {
	if stats == nil || stats.shutdownCallback == nil {
		return
	}
	go func() {
		<-stats.ctx.Done()
		_ = stats.shutdownCallback(context.Background())
	}()
}

func appMeterName(name string) string {
	builder := &strings.Builder{}
	builder.WriteString("rbbench/app/")
	if len(strings.TrimSpace(name)) > 0 {
		builder.WriteString(strings.TrimSpace(name))
	} else {
		builder.WriteString("default")
	}
	return builder.String()
}

// InitAppStats registers the process level instruments once. The
// shutdown callback is invoked after ctx is done.
func InitAppStats(ctx context.Context, name string, shutdown ShutdownCallback) {
	once.Do(func() {
		meter := otel.Meter(
			appMeterName(name),
			metric.WithInstrumentationVersion(otelruntime.Version()),
		)
		stats := &appStats{
			ctx:              ctx,
			shutdownCallback: shutdown,
			goroutines: lo.Must[metric.Int64ObservableUpDownCounter](meter.Int64ObservableUpDownCounter(
				"app.core.goroutines",
				metric.WithDescription(`The application goroutines' info.`),
				metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
					ob.Observe(int64(runtime.NumGoroutine()))
					return nil
				}),
			)),
			processes: lo.Must[metric.Int64ObservableUpDownCounter](meter.Int64ObservableUpDownCounter(
				"app.core.processes",
				metric.WithDescription(`The application processes' info.`),
				metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
					ob.Observe(int64(runtime.GOMAXPROCS(0)))
					return nil
				}),
			)),
		}
		_ = otelruntime.Start()
		stats.waitForShutdown()
	})
}
