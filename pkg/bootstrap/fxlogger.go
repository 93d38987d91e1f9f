package bootstrap

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"go.uber.org/fx/fxevent"
)

// FxLogger adapts charmbracelet log.Logger to fx's fxevent.Logger
// interface so dependency-injection lifecycle events share the same
// structured sink as the rest of the application.
type FxLogger struct {
	logger *log.Logger
}

// NewFxLogger wraps logger for use with fx.WithLogger.
func NewFxLogger(logger *log.Logger) fxevent.Logger {
	return &FxLogger{logger: logger.With("component", "fx")}
}

func (l *FxLogger) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		l.logger.Debug("hook OnStart", "function", e.FunctionName, "caller", e.CallerName)
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			l.logger.Error("hook OnStart failed", "function", e.FunctionName, "error", e.Err)
		} else {
			l.logger.Debug("hook OnStart succeeded", "function", e.FunctionName, "runtime", e.Runtime)
		}
	case *fxevent.OnStopExecuting:
		l.logger.Debug("hook OnStop", "function", e.FunctionName, "caller", e.CallerName)
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			l.logger.Error("hook OnStop failed", "function", e.FunctionName, "error", e.Err)
		} else {
			l.logger.Debug("hook OnStop succeeded", "function", e.FunctionName, "runtime", e.Runtime)
		}
	case *fxevent.Provided:
		l.logger.Debug("provide", "constructor", e.ConstructorName, "type", e.OutputTypeNames)
	case *fxevent.Invoked:
		if e.Err != nil {
			l.logger.Error("invoke failed", "function", e.FunctionName, "error", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			l.logger.Error("fx start failed", "error", e.Err)
		} else {
			l.logger.Info("application started")
		}
	case *fxevent.Stopping:
		l.logger.Info("stopping", "signal", strings.ToUpper(e.Signal.String()))
	case *fxevent.Stopped:
		if e.Err != nil {
			l.logger.Error("stop failed", "error", e.Err)
		} else {
			l.logger.Info("stopped")
		}
	default:
		l.logger.Debug("fx event", "type", fmt.Sprintf("%T", e))
	}
}
