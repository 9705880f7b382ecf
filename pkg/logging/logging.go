// Package logging provides structured logging for every subsystem of the
// orchestration core. It wraps logrus the way the rest of this codebase's
// lineage does, rather than reaching for context-magic globals.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with a fixed component field.
type Logger struct {
	*logrus.Logger
	component string
}

// Config controls logger construction.
type Config struct {
	Level     string `yaml:"level" env:"LOG_LEVEL"`
	Format    string `yaml:"format" env:"LOG_FORMAT"`
	Component string `yaml:"-"`
}

// New builds a Logger for the given component.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: cfg.Component}
}

// NewDefault builds a Logger with info/text defaults for the given component.
func NewDefault(component string) *Logger {
	return New(Config{Level: "info", Format: "text", Component: component})
}

// WithFields returns an entry tagged with the component plus the given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	if l.component != "" {
		fields["component"] = l.component
	}
	return l.Logger.WithFields(fields)
}

// WithField returns an entry tagged with the component plus one field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.WithFields(logrus.Fields{key: value})
}

// WithError returns an entry tagged with the component plus an error field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.WithFields(logrus.Fields{"error": err.Error()})
}
