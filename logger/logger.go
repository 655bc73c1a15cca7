package logger

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

var Verbose bool

var current atomic.Pointer[log.Logger]

func init() {
	current.Store(newLogger(os.Stderr, log.InfoLevel))
}

func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// Init replaces the process logger. Debug output is only emitted when verbose is set.
func Init(w io.Writer, verbose bool) {
	Verbose = verbose
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	current.Store(newLogger(w, level))
}

func L() *log.Logger {
	return current.Load()
}

func Printf(format string, args ...any) {
	L().Debugf(format, args...)
}

func Infof(format string, args ...any) {
	L().Infof(format, args...)
}

func Errorf(format string, args ...any) {
	L().Errorf(format, args...)
}
