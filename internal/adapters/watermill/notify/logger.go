package notify

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// logrusAdapter routes watermill's logging through the service logger.
type logrusAdapter struct {
	log logrus.FieldLogger
}

// NewLogger adapts log for watermill publishers, subscribers and routers.
func NewLogger(log logrus.FieldLogger) watermill.LoggerAdapter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &logrusAdapter{log: log}
}

func (a *logrusAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.WithError(err).WithFields(logrus.Fields(fields)).Error(msg)
}

func (a *logrusAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.WithFields(logrus.Fields(fields)).Info(msg)
}

func (a *logrusAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.WithFields(logrus.Fields(fields)).Debug(msg)
}

// Trace is folded into Debug; watermill's trace output is per-message noise.
func (a *logrusAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (a *logrusAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &logrusAdapter{log: a.log.WithFields(logrus.Fields(fields))}
}
