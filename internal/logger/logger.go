package logger

import (
	"log"
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
)

// Logger is a small leveled wrapper over the standard logger. Components
// get their own tagged instance via WithTag.
type Logger struct {
	logger *log.Logger
	level  LogLevel
	prefix string
}

func NewLogger(logger *log.Logger, level LogLevel) *Logger {
	return &Logger{logger: logger, level: level}
}

// WithTag creates a new logger whose messages carry a [tag] prefix.
func (l *Logger) WithTag(tag string) *Logger {
	return &Logger{
		logger: l.logger,
		level:  l.level,
		prefix: "[" + tag + "] ",
	}
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.level >= LogLevelDebug {
		l.logger.Printf(l.prefix+"DEBUG: "+format, v...)
	}
}

func (l *Logger) Infof(format string, v ...interface{}) {
	if l.level >= LogLevelInfo {
		l.logger.Printf(l.prefix+format, v...)
	}
}

// Printf is an alias for Infof for compatibility
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.level >= LogLevelWarning {
		l.logger.Printf(l.prefix+"WARN: "+format, v...)
	}
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	if l.level >= LogLevelError {
		l.logger.Printf(l.prefix+"ERROR: "+format, v...)
	}
}

func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatalf(l.prefix+"FATAL: "+format, v...)
}
