package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/log"
)

// TemporalAdapter lets the Temporal client and worker log through logrus.
type TemporalAdapter struct {
	entry logrus.FieldLogger
}

var _ log.Logger = (*TemporalAdapter)(nil)
var _ log.WithLogger = (*TemporalAdapter)(nil)

func NewTemporalAdapter(l logrus.FieldLogger) *TemporalAdapter {
	return &TemporalAdapter{entry: l.WithField("component", "temporal")}
}

func (a *TemporalAdapter) Debug(msg string, keyvals ...interface{}) {
	a.entry.WithFields(fields(keyvals)).Debug(msg)
}

func (a *TemporalAdapter) Info(msg string, keyvals ...interface{}) {
	a.entry.WithFields(fields(keyvals)).Info(msg)
}

func (a *TemporalAdapter) Warn(msg string, keyvals ...interface{}) {
	a.entry.WithFields(fields(keyvals)).Warn(msg)
}

func (a *TemporalAdapter) Error(msg string, keyvals ...interface{}) {
	a.entry.WithFields(fields(keyvals)).Error(msg)
}

func (a *TemporalAdapter) With(keyvals ...interface{}) log.Logger {
	return &TemporalAdapter{entry: a.entry.WithFields(fields(keyvals))}
}

func fields(keyvals []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 >= len(keyvals) {
			out[key] = "(missing)"
			break
		}
		out[key] = keyvals[i+1]
	}
	return out
}
