package xlog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	glogger "gorm.io/gorm/logger"
	gutils "gorm.io/gorm/utils"
)

var _ glogger.Interface = (*GormXLogger)(nil)

type GormXLogger struct {
	logger    XLogger
	cfg       glogger.Config
	gormLevel int32
}

func (l *GormXLogger) level() glogger.LogLevel {
	return glogger.LogLevel(atomic.LoadInt32(&l.gormLevel))
}

func (l *GormXLogger) LogMode(lvl glogger.LogLevel) glogger.Interface {
	atomic.StoreInt32(&l.gormLevel, int32(lvl))
	return l
}

func (l *GormXLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level() >= glogger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...), zap.String("fileAndLine", gutils.FileWithLineNum()))
	}
}

func (l *GormXLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level() >= glogger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...), zap.String("fileAndLine", gutils.FileWithLineNum()))
	}
}

func (l *GormXLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level() >= glogger.Error {
		l.logger.ErrorContext(ctx, nil, fmt.Sprintf(msg, data...), zap.String("fileAndLine", gutils.FileWithLineNum()))
	}
}

func (l *GormXLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	lvl := l.level()
	if lvl <= glogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	traceFields := func() []zap.Field {
		sql, rows := fc()
		return []zap.Field{
			zap.String("fileAndLine", gutils.FileWithLineNum()),
			zap.Int64("rows", rows),
			zap.Int64("elapsedMs", elapsed.Milliseconds()),
			zap.String("sql", sql),
		}
	}
	switch {
	case err != nil && lvl >= glogger.Error &&
		(!errors.Is(err, glogger.ErrRecordNotFound) || !l.cfg.IgnoreRecordNotFoundError):
		l.logger.ErrorContext(ctx, err, "error trace", traceFields()...)
	case l.cfg.SlowThreshold != 0 && elapsed > l.cfg.SlowThreshold && lvl >= glogger.Warn:
		l.logger.WarnContext(ctx, "slow sql",
			append(traceFields(), zap.Int64("thresholdMs", l.cfg.SlowThreshold.Milliseconds()))...,
		)
	case lvl == glogger.Info:
		l.logger.InfoContext(ctx, "common sql info", traceFields()...)
	}
}

type GormXLoggerOption func(*glogger.Config)

func WithGormXLoggerSlowThreshold(threshold time.Duration) GormXLoggerOption {
	return func(cfg *glogger.Config) {
		cfg.SlowThreshold = threshold
	}
}

func WithGormXLoggerLogLevel(lvl glogger.LogLevel) GormXLoggerOption {
	return func(cfg *glogger.Config) {
		cfg.LogLevel = lvl
	}
}

func WithGormXLoggerIgnoreRecord404Err() GormXLoggerOption {
	return func(cfg *glogger.Config) {
		cfg.IgnoreRecordNotFoundError = true
	}
}

func NewGormXLogger(logger XLogger, opts ...GormXLoggerOption) *GormXLogger {
	gl := &GormXLogger{
		logger: logger.Named("Gorm"),
		cfg: glogger.Config{
			LogLevel: glogger.Warn,
		},
	}
	for _, o := range opts {
		o(&gl.cfg)
	}
	if gl.cfg.SlowThreshold <= 0 {
		gl.cfg.SlowThreshold = 500 * time.Millisecond
	}
	gl.gormLevel = int32(gl.cfg.LogLevel)
	return gl
}
