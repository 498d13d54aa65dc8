package xlog

import (
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap/zapcore"
)

var _ ants.Logger = (*AntsXLogger)(nil)

// AntsXLogger receives the ants pool logs, mostly the recovered
// task panics.
type AntsXLogger struct {
	logger XLogger
}

func (l *AntsXLogger) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Logf(zapcore.ErrorLevel, format, args...)
}

func NewAntsXLogger(logger XLogger) *AntsXLogger {
	return &AntsXLogger{
		logger: logger.Named("Ants"),
	}
}
