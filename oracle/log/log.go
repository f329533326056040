package log

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// Fields is an alias so callers do not import logrus for structured events.
type Fields = logrus.Fields

var customLog = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableQuote:     true,
	})

	return l
}

func InitLogger() {
	customLog = newLogger()
}

// ResetLogger keeps console output and additionally writes every entry to
// <home>/logs/<binary>.<pid>.log.
func ResetLogger(oracleHome string) {
	var dir string
	if oracleHome == "" {
		osHome, err := os.UserHomeDir()
		if err != nil {
			Fatalf("Failed to get user home directory: %v", err)
		}
		dir = filepath.Join(osHome, ".flightoracled", "logs")
	} else {
		dir = filepath.Join(oracleHome, "logs")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		Fatalf("Failed to create log directory %s: %v", dir, err)
	}

	name := fmt.Sprintf("%s.%d.log", filepath.Base(os.Args[0]), os.Getpid())
	path := filepath.Join(dir, name)

	customLog.AddHook(lfshook.NewHook(path, &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
		DisableColors:   true,
	}))

	Infof("From now on, all logs will also be written to %s", path)
}

// SetLevel accepts logrus level names ("debug", "info", "warn", "error").
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	customLog.SetLevel(lvl)

	return nil
}

func WithFields(fields Fields) *logrus.Entry {
	return customLog.WithFields(fields)
}

func Debug(v ...any) {
	customLog.Debug(v...)
}

func Debugf(format string, v ...any) {
	customLog.Debugf(format, v...)
}

func Info(v ...any) {
	customLog.Info(v...)
}

func Infof(format string, v ...any) {
	customLog.Infof(format, v...)
}

func Warnf(format string, v ...any) {
	customLog.Warnf(format, v...)
}

func Error(v ...any) {
	customLog.Error(v...)
}

func Errorf(format string, v ...any) {
	customLog.Errorf(format, v...)
}

func Fatal(v ...any) {
	customLog.Fatal(v...)
}

func Fatalf(format string, v ...any) {
	customLog.Fatalf(format, v...)
}
