// Package logging sets up the leveled, colorized logger shared by the
// rendezvous and agent binaries, and the panic-recovery helper that
// every FlowHandler goroutine runs under.
package logging

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/fatih/color"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("kr-tunnel")

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.4s} ▶%{color:reset} %{message}`,
)

// New configures the package logger for prefix (typically the binary
// name) and returns it. Verbosity defaults to defaultLevel but can be
// overridden with the KR_LOG_LEVEL environment variable.
func New(prefix string, defaultLevel logging.Level) *logging.Logger {
	backend := logging.NewLogBackend(os.Stderr, prefix+" ", 0)
	logging.SetFormatter(stderrFormat)

	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(levelFromEnv(defaultLevel), "")
	logging.SetBackend(leveled)

	if !color.NoColor {
		color.New(color.FgCyan).Fprintf(os.Stderr, "%s starting\n", prefix)
	}
	return log
}

func levelFromEnv(def logging.Level) logging.Level {
	switch os.Getenv("KR_LOG_LEVEL") {
	case "CRITICAL":
		return logging.CRITICAL
	case "ERROR":
		return logging.ERROR
	case "WARNING":
		return logging.WARNING
	case "NOTICE":
		return logging.NOTICE
	case "INFO":
		return logging.INFO
	case "DEBUG":
		return logging.DEBUG
	default:
		return def
	}
}

// Log returns the shared package logger. New must have been called once
// at process start; before that it logs to a disabled default backend.
func Log() *logging.Logger {
	return log
}

// RecoverToLog runs f and, if it panics, logs the panic and stack trace
// instead of propagating it. Used to wrap each FlowHandler goroutine the
// Session loops spawn, so a single panicking flow cannot take down the
// process; deferred cleanup inside f still runs. The Session's inbound
// pump, the rendezvous accept loop and a FlowHandler's socket-read pump
// are not wrapped.
func RecoverToLog(f func(), log *logging.Logger) {
	defer func() {
		if x := recover(); x != nil {
			if log != nil {
				log.Error(fmt.Sprintf("run time panic: %v", x))
				log.Error(string(debug.Stack()))
			}
		}
	}()
	f()
}
