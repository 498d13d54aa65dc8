package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qwtsc/yarb-tree/bench"
	"github.com/qwtsc/yarb-tree/lib/infra"
	"github.com/qwtsc/yarb-tree/observability"
	"github.com/qwtsc/yarb-tree/xlog"
)

func errUnknownLogEncoder(enc string) error {
	return infra.NewErrorStack("unknown log encoder " + enc)
}

type rbbenchBanner struct{}

func (rbbenchBanner) JSON() string {
	return `{"app":"rbbench","desc":"red-black tree vs btree insertion benchmark"}`
}

func (rbbenchBanner) PlainText() string {
	return "rbbench: red-black tree vs btree insertion benchmark"
}

func newLogger(cfg bench.Config) xlog.XLogger {
	encOpt, err := parseLogEncoder(cfg.LogEncoder)
	if err != nil {
		encOpt = xlog.WithXLoggerEncoder(xlog.JSON)
	}
	return xlog.NewXLogger(
		xlog.WithXLoggerLevel(xlog.ParseLogLevel(cfg.LogLevel)),
		encOpt,
		xlog.WithXLoggerLevelEncoder(zapcore.CapitalLevelEncoder),
		xlog.WithXLoggerTimeEncoder(zapcore.RFC3339NanoTimeEncoder),
		xlog.WithXLoggerContextFieldExtract(bench.RunIDContextKey),
	)
}

func appOptions(cfg bench.Config, logger xlog.XLogger) []fx.Option {
	return []fx.Option{
		fx.WithLogger(func() fxevent.Logger {
			return xlog.NewFxXLogger(logger)
		}),
		fx.Supply(cfg),
		fx.Provide(
			func() xlog.XLogger { return logger },
			newMeterProvider,
			observability.NewBenchMeter,
			newRunner,
			newReportStore,
			newBenchJob,
		),
		fx.Invoke(func(*benchJob) {}),
	}
}

func newMeterProvider(lc fx.Lifecycle, cfg bench.Config, logger xlog.XLogger) (metric.MeterProvider, error) {
	typ, err := observability.ParseMetricsExporterType(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	shutdown, err := observability.SetupMetricsExporter(typ, cfg.MetricsPeriod)
	if err != nil {
		return nil, err
	}
	if typ == observability.NoneExporter {
		return otel.GetMeterProvider(), nil
	}

	observability.InitAppStats(context.Background(), "rbbench", nil)
	stop := []func(ctx context.Context) error{shutdown}
	if typ == observability.PrometheusExporter {
		srv := observability.ServePrometheus(cfg.MetricsAddr, func(err error) {
			logger.ErrorStack(err, "metrics server stopped")
		})
		logger.Info("metrics server started", zap.String("addr", cfg.MetricsAddr))
		stop = append([]func(ctx context.Context) error{srv.Shutdown}, stop...)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			var err error
			for _, fn := range stop {
				err = multierr.Append(err, fn(ctx))
			}
			return err
		},
	})
	return otel.GetMeterProvider(), nil
}

func newRunner(lc fx.Lifecycle, cfg bench.Config, logger xlog.XLogger, meter *observability.BenchMeter) (*bench.Runner, error) {
	runner, err := bench.NewRunner(cfg, logger, meter)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(runner.Close))
	return runner, nil
}

// newReportStore is nil if no report db is configured.
func newReportStore(lc fx.Lifecycle, cfg bench.Config, logger xlog.XLogger) (*bench.ReportStore, error) {
	if len(cfg.ReportDB) == 0 {
		return nil, nil
	}
	store, err := bench.OpenReportStore(cfg.ReportDB, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(store.Close))
	return store, nil
}

// benchJob runs the benchmark once the app started and shuts the
// app down when it is finished.
type benchJob struct {
	runner     *bench.Runner
	store      *bench.ReportStore
	logger     xlog.XLogger
	shutdowner fx.Shutdowner
	done       chan struct{}
	cancel     context.CancelFunc
	err        error
	results    []bench.RoundResult
}

func newBenchJob(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	runner *bench.Runner,
	store *bench.ReportStore,
	logger xlog.XLogger,
) *benchJob {
	job := &benchJob{
		runner:     runner,
		store:      store,
		logger:     logger,
		shutdowner: shutdowner,
		done:       make(chan struct{}),
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			job.cancel = cancel
			go job.run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if job.cancel != nil {
				job.cancel()
			}
			select {
			case <-job.done:
			case <-ctx.Done():
				return infra.WrapErrorStackWithMessage(ctx.Err(), "bench job stop")
			}
			return nil
		},
	})
	return job
}

func (job *benchJob) run(ctx context.Context) {
	defer close(job.done)
	ctx = context.WithValue(ctx, xlog.ContextKey(bench.RunIDContextKey), job.runner.RunID())

	results, err := job.runner.Run(ctx)
	job.results = results
	bench.LogSummaries(job.logger, bench.Summarize(results))
	if job.store != nil {
		err = multierr.Append(err, job.store.Save(ctx, results))
	}
	job.err = err

	code := 0
	if err != nil {
		code = 1
		job.logger.ErrorStackContext(ctx, err, "bench run failed")
	} else {
		job.logger.InfoContext(ctx, "bench run finished", zap.Int("results", len(results)))
	}
	if _err := job.shutdowner.Shutdown(fx.ExitCode(code)); _err != nil {
		job.logger.Error(_err, "shutdown")
	}
}
