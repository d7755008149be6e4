package config

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. format is "json" (default) or
// "text"; an unknown level falls back to info.
func NewLogger(level, format string) *logrus.Logger {
	return newLogger(level, format, os.Stdout)
}

func newLogger(level, format string, out io.Writer) *logrus.Logger {
	logg := logrus.New()
	switch strings.ToLower(format) {
	case "text":
		logg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logg.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logg.SetLevel(lvl)
	logg.SetOutput(out)
	return logg
}

// LogError logs err with the calling module and function.
func LogError(logger logrus.FieldLogger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
