package log

import (
	stdlog "log"
	"strings"
)

// stdLogWriter adapts a Logger to io.Writer so the standard library logger
// (used by Pebble and net/http internals) can be redirected through it.
type stdLogWriter struct {
	logger Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		w.logger.Info(msg, Component("stdlog"))
	}
	return len(p), nil
}

// RedirectStdLog routes the standard library's default logger through the
// provided Logger, stripping the stdlib prefix and timestamps.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{logger: logger})
}
