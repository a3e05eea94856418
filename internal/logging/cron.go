package logging

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// CronLogger adapts a slog logger to cron.Logger. Cron's chatty info
// messages (schedule, wake, run) are emitted at debug.
func CronLogger(logger *slog.Logger) cron.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return cronLogger{logger: logger}
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
