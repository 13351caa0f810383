// Package-level configuration for structured logging.
//
// Every reactor component (Poller, EventLoop, Acceptor, TcpConnection,
// TcpServer) logs exclusively through the narrow Logger interface below,
// never by calling a concrete logging library directly. This keeps the
// logging backend an external collaborator: swap SetLogger's argument and
// every component follows, with no core file touched.
package reactor

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the sink every reactor component writes diagnostics to.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	// Fatalf logs at fatal severity; EventLoop.AssertInLoopThread reports
	// loop-thread affinity violations through it. The default zap-backed
	// Logger exits the process; NoopLogger's Fatalf returns, so execution
	// continues past the violation.
	Fatalf(format string, args ...any)
}

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

func init() {
	globalLogger.logger = NewZapLogger()
}

// SetLogger installs l as the process-wide default Logger. Passing nil
// restores the default zap-backed logger.
func SetLogger(l Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	if l == nil {
		l = NewZapLogger()
	}
	globalLogger.logger = l
}

func getLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.logger
}

// zapLogger adapts *zap.SugaredLogger to the Logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger builds the default Logger, a zap.SugaredLogger running in
// production mode (JSON, ISO8601 timestamps). Additional zap.Options (e.g.
// zap.AddCaller()) may be supplied.
func NewZapLogger(opts ...zap.Option) Logger {
	cfg := zap.NewProductionConfig()
	base, err := cfg.Build(opts...)
	if err != nil {
		// zap.NewProductionConfig().Build only fails on a malformed encoder
		// config, which this package never constructs; fall back to a
		// no-op core rather than panicking from an init-time helper.
		base = zap.NewNop()
	}
	return &zapLogger{s: base.Sugar()}
}

// NewRotatingFileLogger builds a Logger that writes JSON lines to path,
// rotated by lumberjack once it exceeds maxSizeMB megabytes, keeping at
// most maxBackups old files.
func NewRotatingFileLogger(path string, maxSizeMB, maxBackups int) Logger {
	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(sink),
		zap.InfoLevel,
	)
	return &zapLogger{s: zap.New(core).Sugar()}
}

func (l *zapLogger) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...any)  { l.s.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...any)  { l.s.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...any) { l.s.Errorf(format, args...) }
func (l *zapLogger) Fatalf(format string, args ...any) { l.s.Fatalf(format, args...) }

// NoopLogger discards every message. Useful for benchmarks and tests that
// don't want log output interleaved with -v test output.
type NoopLogger struct{}

func (NoopLogger) Debugf(string, ...any) {}
func (NoopLogger) Infof(string, ...any)  {}
func (NoopLogger) Warnf(string, ...any)  {}
func (NoopLogger) Errorf(string, ...any) {}
func (NoopLogger) Fatalf(string, ...any) {}
