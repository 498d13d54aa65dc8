package main

import (
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/qwtsc/yarb-tree/bench"
	"github.com/qwtsc/yarb-tree/xlog"
)

// parseConfig binds the flags over the RBBENCH_* environment config.
func parseConfig(args []string, lookup func(key string) (string, bool)) (bench.Config, error) {
	cfg, err := bench.LoadConfigFromEnv(lookup)
	if err != nil {
		return cfg, err
	}

	fs := pflag.NewFlagSet("rbbench", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.IntVar(&cfg.Total, "total", cfg.Total, "keys inserted per round")
	fs.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "rounds per container")
	workload := fs.String("workload", cfg.Workload.String(), "random, sequential or reverse")
	containers := fs.StringSlice("containers", cfg.Containers, "containers under benchmark, rbtree and btree")
	fs.BoolVar(&cfg.Parallel, "parallel", cfg.Parallel, "run the containers of a round concurrently")
	fs.IntVar(&cfg.PoolSize, "pool-size", cfg.PoolSize, "worker pool size in parallel mode")
	fs.IntVar(&cfg.VerifyInterval, "verify-interval", cfg.VerifyInterval, "validate the tree rules every n keys, 0 disables")
	fs.StringVar(&cfg.ReportDB, "report-db", cfg.ReportDB, "sqlite file to store the results, empty disables")
	fs.StringVar(&cfg.Metrics, "metrics", cfg.Metrics, "metrics exporter, none, console or prometheus")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "prometheus /metrics listen address")
	fs.DurationVar(&cfg.MetricsPeriod, "metrics-period", cfg.MetricsPeriod, "console metrics export interval")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "DEBUG, INFO, WARN or ERROR")
	fs.StringVar(&cfg.LogEncoder, "log-encoder", cfg.LogEncoder, "json or text")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random workload seed, 0 picks one by time")
	if err = fs.Parse(args); err != nil {
		return cfg, err
	}

	for _, o := range []bench.Option{
		bench.WithWorkload(bench.WorkloadKind(*workload)),
		bench.WithContainers(*containers...),
	} {
		err = multierr.Append(err, o(&cfg))
	}
	if _, _err := parseLogEncoder(cfg.LogEncoder); _err != nil {
		err = multierr.Append(err, _err)
	}
	return cfg, multierr.Append(err, cfg.Validate())
}

func parseLogEncoder(enc string) (xlog.XLoggerOption, error) {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "", "json":
		return xlog.WithXLoggerEncoder(xlog.JSON), nil
	case "text", "plain":
		return xlog.WithXLoggerEncoder(xlog.PlainText), nil
	default:
	}
	return nil, errUnknownLogEncoder(enc)
}
