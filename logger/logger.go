package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	InfoLogger  *logrus.Logger
	WarnLogger  *logrus.Logger
	ErrorLogger *logrus.Logger
	DebugLogger *logrus.Logger
)

func init() {
	// Packages log from their own init and from tests before main runs.
	InitLoggers()
}

// InitLoggers (re)creates the package loggers. Output goes to stdout and,
// when LOG_FILE is set, to a rotated file.
func InitLoggers() {
	var out io.Writer = os.Stdout
	if path := os.Getenv("LOG_FILE"); path != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	InfoLogger = newLogger(out, logrus.InfoLevel)
	WarnLogger = newLogger(out, logrus.WarnLevel)
	ErrorLogger = newLogger(out, logrus.ErrorLevel)
	DebugLogger = newLogger(out, debugLevel())
}

func newLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(level)
	return l
}

func debugLevel() logrus.Level {
	if os.Getenv("APP_ENV") == "dev" {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

// Silence discards all log output. Used by tests.
func Silence() {
	for _, l := range []*logrus.Logger{InfoLogger, WarnLogger, ErrorLogger, DebugLogger} {
		l.SetOutput(io.Discard)
	}
}
