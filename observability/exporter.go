package observability

// https://opentelemetry.io/docs/languages/go/exporters/

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/qwtsc/yarb-tree/lib/infra"
)

type MetricsExporterType string

const (
	NoneExporter       MetricsExporterType = "none"
	ConsoleExporter    MetricsExporterType = "console"
	PrometheusExporter MetricsExporterType = "prometheus"
)

func ParseMetricsExporterType(typ string) (MetricsExporterType, error) {
	switch _typ := MetricsExporterType(strings.ToLower(strings.TrimSpace(typ))); _typ {
	case "", NoneExporter:
		return NoneExporter, nil
	case ConsoleExporter, PrometheusExporter:
		return _typ, nil
	default:
	}
	return NoneExporter, infra.NewErrorStack("unknown metrics exporter " + typ)
}

// ShutdownCallback flushes and stops the registered meter provider.
type ShutdownCallback func(ctx context.Context) error

func noopShutdown(context.Context) error {
	return nil
}

// NewConsoleMetricsExporter serves for test/dev environment.
func NewConsoleMetricsExporter(interval, timeout time.Duration, opts ...stdoutmetric.Option) (ShutdownCallback, error) {
	exporter, err := stdoutmetric.New(opts...)
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "stdout metrics exporter")
	}
	mp := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(
		exporter,
		metric.WithInterval(interval),
		metric.WithTimeout(timeout),
	)))
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// NewPrometheusMetricsExporter registers the metrics into the prometheus
// default registry, fetched by HTTP (see ServePrometheus).
func NewPrometheusMetricsExporter() (ShutdownCallback, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "prometheus metrics exporter")
	}
	mp := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// SetupMetricsExporter installs the global meter provider by type.
// The none type keeps the otel noop provider.
func SetupMetricsExporter(typ MetricsExporterType, interval time.Duration) (ShutdownCallback, error) {
	switch typ {
	case ConsoleExporter:
		return NewConsoleMetricsExporter(interval, interval)
	case PrometheusExporter:
		return NewPrometheusMetricsExporter()
	default:
	}
	return noopShutdown, nil
}

// ServePrometheus exposes /metrics on addr. The returned server is
// already listening in background.
func ServePrometheus(addr string, errCallback func(err error)) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && errCallback != nil {
			errCallback(infra.WrapErrorStackWithMessage(err, "prometheus http server"))
		}
	}()
	return srv
}
