package redisserver

import (
	"github.com/raniellyferreira/redis-inmemory-server/logger"
)

// loggerAdapter adapts our Logger interface to the key/value loggers of the
// server and replication packages
type loggerAdapter struct {
	logger Logger
}

func (la *loggerAdapter) Debug(msg string, fields ...interface{}) {
	la.logger.Debug(msg, convertFields(fields...)...)
}

func (la *loggerAdapter) Info(msg string, fields ...interface{}) {
	la.logger.Info(msg, convertFields(fields...)...)
}

func (la *loggerAdapter) Error(msg string, fields ...interface{}) {
	la.logger.Error(msg, convertFields(fields...)...)
}

func convertFields(fields ...interface{}) []Field {
	result := make([]Field, 0, len(fields)/2)
	for i := 0; i < len(fields)-1; i += 2 {
		if key, ok := fields[i].(string); ok {
			result = append(result, Field{
				Key:   key,
				Value: fields[i+1],
			})
		}
	}
	return result
}

// structuredLogger implements Logger on top of a logger.Logger
type structuredLogger struct {
	logger logger.Logger
}

// FromLogger wraps a structured logger so it can be passed to WithLogger
func FromLogger(l logger.Logger) Logger {
	if l == nil {
		l = logger.Nop()
	}
	return &structuredLogger{logger: l}
}

func (l *structuredLogger) Debug(msg string, fields ...Field) {
	l.logger.Debug(msg, flattenFields(fields)...)
}

func (l *structuredLogger) Info(msg string, fields ...Field) {
	l.logger.Info(msg, flattenFields(fields)...)
}

func (l *structuredLogger) Error(msg string, fields ...Field) {
	l.logger.Error(msg, flattenFields(fields)...)
}

func flattenFields(fields []Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			args = append(args, f.Key, err.Error())
			continue
		}
		args = append(args, f.Key, f.Value)
	}
	return args
}

// defaultLogger logs text to stderr at info level
func defaultLogger() Logger {
	l, err := logger.New(logger.DefaultConfig())
	if err != nil {
		return FromLogger(logger.Nop())
	}
	return FromLogger(l)
}
