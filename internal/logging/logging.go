// Package logging provides the default logger used when a caller configures none.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

var discard = newDiscard()

func newDiscard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)

	return l
}

// Discard returns a logger that drops every entry.
func Discard() logrus.FieldLogger {
	return discard
}

// OrDiscard returns l, or the discarding logger when l is nil.
func OrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return discard
	}

	return l
}
