package main

import (
	"io"

	"github.com/sirupsen/logrus"
)

// setupLogger builds the logger for a run.  Everything goes to w, normally
// stderr, so stdout stays clean for PIPE output.
func setupLogger(cfg LogConfig, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	if err != nil {
		log.Warnf("unknown log level %q, using info", cfg.Level)
	}
	return log
}
