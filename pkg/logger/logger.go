// Package logger provides component-tagged structured logging for the
// whole client, backed by logrus. Every entry carries a "component"
// field so transport, session and chat logs can be filtered apart.
package logger

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Level mirrors the logrus levels the client actually uses.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the global log level.
func SetLevel(level Level) {
	switch level {
	case DEBUG:
		log.SetLevel(logrus.DebugLevel)
	case INFO:
		log.SetLevel(logrus.InfoLevel)
	case WARN:
		log.SetLevel(logrus.WarnLevel)
	case ERROR:
		log.SetLevel(logrus.ErrorLevel)
	}
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func entry(component string, fields map[string]any) *logrus.Entry {
	e := log.WithField("component", component)
	if len(fields) > 0 {
		e = e.WithFields(logrus.Fields(fields))
	}
	return e
}

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { entry(component, nil).Debug(msg) }

// DebugCF logs a debug message with extra fields.
func DebugCF(component, msg string, fields map[string]any) { entry(component, fields).Debug(msg) }

// InfoC logs an info message for a component.
func InfoC(component, msg string) { entry(component, nil).Info(msg) }

// InfoCF logs an info message with extra fields.
func InfoCF(component, msg string, fields map[string]any) { entry(component, fields).Info(msg) }

// WarnC logs a warning for a component.
func WarnC(component, msg string) { entry(component, nil).Warn(msg) }

// WarnCF logs a warning with extra fields.
func WarnCF(component, msg string, fields map[string]any) { entry(component, fields).Warn(msg) }

// ErrorC logs an error for a component.
func ErrorC(component, msg string) { entry(component, nil).Error(msg) }

// ErrorCF logs an error with extra fields.
func ErrorCF(component, msg string, fields map[string]any) { entry(component, fields).Error(msg) }
