// Package mnblog builds the logrus logger used throughout mnb, following
// the split between a file-backed development logger and a quiet
// production logger in lazydocker's pkg/log/log.go.
package mnblog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/berkgaut/mnb/internal/config"
	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger entry pre-populated with run-scoped
// fields. In debug mode, logs are written to a file under the config
// directory so a run can be inspected after the fact; otherwise only
// errors are emitted, to stderr.
func NewLogger(cfg *config.AppConfig) *logrus.Entry {
	var log *logrus.Logger
	if cfg.Debug {
		log = newDevelopmentLogger(cfg)
	} else {
		log = newProductionLogger()
	}

	return log.WithFields(logrus.Fields{
		"version":     cfg.Version,
		"commit":      cfg.Commit,
		"workingRoot": cfg.WorkingRoot,
		"devMode":     cfg.DevMode,
	})
}

func getLogLevel() logrus.Level {
	strLevel := os.Getenv("LOG_LEVEL")
	level, err := logrus.ParseLevel(strLevel)
	if err != nil {
		return logrus.DebugLevel
	}
	return level
}

func newDevelopmentLogger(cfg *config.AppConfig) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(getLogLevel())
	log.Formatter = &logrus.JSONFormatter{}
	file, err := os.OpenFile(filepath.Join(cfg.ConfigDir, "mnb.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unable to log to file:", err)
		log.SetOutput(os.Stderr)
		return log
	}
	log.SetOutput(file)
	return log
}

func newProductionLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	log.SetOutput(os.Stderr)
	return log
}
