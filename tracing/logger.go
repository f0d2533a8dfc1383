package tracing

import (
	"fmt"

	"logur.dev/logur"
)

// jaegerLogger reports jaeger reporter events through a logur logger.
type jaegerLogger struct {
	logger logur.Logger
}

func newLogger(logger logur.Logger) *jaegerLogger {
	return &jaegerLogger{logger: logger}
}

func (t *jaegerLogger) Error(msg string) {
	t.logger.Error("jaeger: " + msg)
}

func (t *jaegerLogger) Infof(msg string, args ...interface{}) {
	t.logger.Debug("jaeger: " + fmt.Sprintf(msg, args...))
}
