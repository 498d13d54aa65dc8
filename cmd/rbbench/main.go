package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := parseConfig(os.Args[1:], nil)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "rbbench: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg)
	logger.Banner(rbbenchBanner{})
	if _, err = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Logf(zapcore.InfoLevel, format, args...)
	})); err != nil {
		logger.Warn("set GOMAXPROCS", zap.String("error", err.Error()))
	}
	defer func() {
		_ = logger.Sync()
	}()

	fx.New(appOptions(cfg, logger)...).Run()
}
