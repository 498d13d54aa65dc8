package xlog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qwtsc/yarb-tree/lib/infra"
)

var printBanner = sync.Once{}

// xLogger is wrapper logger of Uber zap logger.
type xLogger struct {
	logger              atomic.Pointer[zap.Logger]
	ctxFields           map[string]string // read only after built
	dynamicLevelEnabler zap.AtomicLevel
	writer              logOutWriterType
	encoder             logEncoderType
}

func (l *xLogger) zap() *zap.Logger {
	return l.logger.Load()
}

func (l *xLogger) Named(component string) XLogger {
	child := &xLogger{
		ctxFields:           l.ctxFields,
		dynamicLevelEnabler: l.dynamicLevelEnabler,
		writer:              l.writer,
		encoder:             l.encoder,
	}
	child.logger.Store(l.logger.Load().Named(component))
	return child
}

// IncreaseLogLevel we can increase or decrease the log level concurrently.
// The child loggers share the same level enabler.
func (l *xLogger) IncreaseLogLevel(level zapcore.Level) {
	l.dynamicLevelEnabler.SetLevel(level)
}

func (l *xLogger) Level() string {
	return l.dynamicLevelEnabler.Level().CapitalString()
}

func (l *xLogger) Sync() error {
	return l.logger.Load().Sync()
}

func (l *xLogger) Banner(banner Banner) {
	printBanner.Do(func() {
		cfg := zapcore.EncoderConfig{
			MessageKey:    "banner", // Required, but the plain text will be ignored.
			LevelKey:      coreKeyIgnored,
			TimeKey:       coreKeyIgnored,
			CallerKey:     coreKeyIgnored,
			StacktraceKey: coreKeyIgnored,
		}
		enc := getEncoderByType(l.encoder)(cfg)
		ws := getOutWriterByType(l.writer)
		_l := l.logger.Load().WithOptions(
			zap.WrapCore(func(core zapcore.Core) zapcore.Core {
				return zapcore.NewCore(enc, ws, zapcore.InfoLevel)
			}),
		)
		switch l.encoder {
		case PlainText:
			_l.Info(banner.PlainText())
		default:
			_l.Info(banner.JSON())
		}
	})
}

func (l *xLogger) Debug(msg string, fields ...zap.Field) {
	l.logger.Load().Debug(msg, fields...)
}

func (l *xLogger) Info(msg string, fields ...zap.Field) {
	l.logger.Load().Info(msg, fields...)
}

func (l *xLogger) Warn(msg string, fields ...zap.Field) {
	l.logger.Load().Warn(msg, fields...)
}

func (l *xLogger) Error(err error, msg string, fields ...zap.Field) {
	l.logger.Load().Error(msg, withError(err, nil, fields)...)
}

func (l *xLogger) ErrorStack(err error, msg string, fields ...zap.Field) {
	l.logger.Load().Error(msg, withErrorStack(err, nil, fields)...)
}

func (l *xLogger) DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.logger.Load().Debug(msg, append(extractFieldsFromContext(ctx, l.ctxFields), fields...)...)
}

func (l *xLogger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.logger.Load().Info(msg, append(extractFieldsFromContext(ctx, l.ctxFields), fields...)...)
}

func (l *xLogger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.logger.Load().Warn(msg, append(extractFieldsFromContext(ctx, l.ctxFields), fields...)...)
}

func (l *xLogger) ErrorContext(ctx context.Context, err error, msg string, fields ...zap.Field) {
	l.logger.Load().Error(msg, withError(err, extractFieldsFromContext(ctx, l.ctxFields), fields)...)
}

func (l *xLogger) ErrorStackContext(ctx context.Context, err error, msg string, fields ...zap.Field) {
	l.logger.Load().Error(msg, withErrorStack(err, extractFieldsFromContext(ctx, l.ctxFields), fields)...)
}

func (l *xLogger) Logf(lvl zapcore.Level, format string, args ...any) {
	l.logger.Load().Log(lvl, fmt.Sprintf(format, args...))
}

func (l *xLogger) ErrorStackf(err error, format string, args ...any) {
	l.logger.Load().Error(fmt.Sprintf(format, args...), withErrorStack(err, nil, nil)...)
}

func withError(err error, prefix, fields []zap.Field) []zap.Field {
	newFields := make([]zap.Field, 0, len(prefix)+len(fields)+1)
	newFields = append(newFields, prefix...)
	if err != nil {
		newFields = append(newFields, zap.String("error", err.Error()))
	}
	return append(newFields, fields...)
}

// A plain error falls back to the error string.
func withErrorStack(err error, prefix, fields []zap.Field) []zap.Field {
	newFields := make([]zap.Field, 0, len(prefix)+len(fields)+1)
	newFields = append(newFields, prefix...)
	if es, ok := err.(infra.ErrorStack); ok && es != nil {
		newFields = append(newFields, zap.Inline(es))
	} else if err != nil {
		newFields = append(newFields, zap.String("error", err.Error()))
	}
	return append(newFields, fields...)
}

type loggerCfg struct {
	ctxFields   map[string]string
	writerType  *logOutWriterType
	encoderType *logEncoderType
	lvlEncoder  zapcore.LevelEncoder
	tsEncoder   zapcore.TimeEncoder
	level       *zapcore.Level
}

func (cfg *loggerCfg) apply(l *xLogger) {
	if cfg.writerType != nil {
		l.writer = *cfg.writerType
	} else {
		l.writer = StdOut
	}

	if cfg.encoderType != nil {
		l.encoder = *cfg.encoderType
	} else {
		l.encoder = JSON
	}

	if cfg.level != nil {
		l.dynamicLevelEnabler = zap.NewAtomicLevelAt(*cfg.level)
	} else {
		l.dynamicLevelEnabler = zap.NewAtomicLevelAt(getLogLevelOrDefault(os.Getenv("XLOG_LVL")))
	}

	l.ctxFields = cfg.ctxFields

	if cfg.lvlEncoder == nil {
		cfg.lvlEncoder = zapcore.CapitalLevelEncoder
	}

	if cfg.tsEncoder == nil {
		cfg.tsEncoder = zapcore.ISO8601TimeEncoder
	}
}

type XLoggerOption func(*loggerCfg) error

func NewXLogger(opts ...XLoggerOption) XLogger {
	cfg := &loggerCfg{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(cfg); err != nil {
			panic(err)
		}
	}
	xl := &xLogger{}
	cfg.apply(xl)

	core := newConsoleCore(
		xl.dynamicLevelEnabler,
		xl.encoder,
		xl.writer,
		cfg.lvlEncoder,
		cfg.tsEncoder,
	)
	// Disable zap logger error stack.
	l := zap.New(
		core,
		zap.AddCallerSkip(1), // Use caller filename as service
		zap.AddCaller(),
	)
	xl.logger.Store(l)
	return xl
}

func WithXLoggerWriter(w logOutWriterType) XLoggerOption {
	return func(cfg *loggerCfg) error {
		if w >= _writerMax {
			return infra.NewErrorStack("unknown xlogger writer")
		}
		cfg.writerType = &w
		return nil
	}
}

func WithXLoggerEncoder(logEnc logEncoderType) XLoggerOption {
	return func(cfg *loggerCfg) error {
		if logEnc >= _encMax {
			return infra.NewErrorStack("unknown xlogger encoder")
		}
		cfg.encoderType = &logEnc
		return nil
	}
}

func WithXLoggerLevel(lvl logLevel) XLoggerOption {
	return func(cfg *loggerCfg) error {
		_lvl := lvl.zapLevel()
		cfg.level = &_lvl
		return nil
	}
}

func WithXLoggerLevelEncoder(lvlEnc zapcore.LevelEncoder) XLoggerOption {
	return func(cfg *loggerCfg) error {
		if lvlEnc == nil {
			lvlEnc = zapcore.CapitalColorLevelEncoder
		}
		cfg.lvlEncoder = lvlEnc
		return nil
	}
}

func WithXLoggerTimeEncoder(tsEnc zapcore.TimeEncoder) XLoggerOption {
	return func(cfg *loggerCfg) error {
		if tsEnc == nil {
			tsEnc = zapcore.ISO8601TimeEncoder
		}
		cfg.tsEncoder = tsEnc
		return nil
	}
}

// WithXLoggerContextFieldExtract registers a context key to be logged
// by the *Context methods. mapTo renames the field, "_" drops a nil value.
func WithXLoggerContextFieldExtract(field string, mapTo ...string) XLoggerOption {
	return func(cfg *loggerCfg) error {
		if len(field) == 0 {
			return nil
		}
		if cfg.ctxFields == nil {
			cfg.ctxFields = make(map[string]string, 8)
		}
		if len(mapTo) == 0 || mapTo[0] == ContextKeyMapToItself {
			mapTo = []string{field}
		}
		cfg.ctxFields[field] = mapTo[0]
		return nil
	}
}

func getLogLevelOrDefault(level string) zapcore.Level {
	if len(strings.TrimSpace(level)) == 0 {
		return zapcore.DebugLevel
	}

	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LogLevelInfo.String():
		return zapcore.InfoLevel
	case LogLevelWarn.String():
		return zapcore.WarnLevel
	case LogLevelError.String():
		return zapcore.ErrorLevel
	case LogLevelDebug.String():
		fallthrough
	default:
	}
	return zapcore.DebugLevel
}

// ContextKey is the key type to store the extracted fields in
// a context, i.e. context.WithValue(ctx, xlog.ContextKey("runId"), id).
type ContextKey string

func extractFieldsFromContext(ctx context.Context, targets map[string]string) []zap.Field {
	if ctx == nil || len(targets) == 0 {
		return []zap.Field{}
	}

	keys := make([]string, 0, len(targets))
	for key := range targets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	newFields := make([]zap.Field, 0, len(keys))
	for _, key := range keys {
		v := ctx.Value(ContextKey(key))
		mapTo := targets[key]
		if mapTo == ContextKeyMapToOmitempty {
			if v != nil {
				newFields = append(newFields, zap.Any(key, v))
			}
			continue
		}
		if v == nil {
			newFields = append(newFields, zap.String(mapTo, "nil"))
		} else {
			newFields = append(newFields, zap.Any(mapTo, v))
		}
	}
	return newFields
}
