package logging

import (
	"os"
	"path/filepath"

	"github.com/eliziario/sf-connector/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the connector logger. Output goes to a rotated file when
// one is configured (or derivable from the config dir), otherwise to
// stderr so headless host invocations still capture progress.
func New(cfg config.LoggingSettings) *logrus.Logger {
	logger := logrus.New()

	logFile := cfg.File
	if logFile == "" {
		if configDir, err := config.ConfigDir(); err == nil {
			logDir := filepath.Join(configDir, "logs")
			if err := os.MkdirAll(logDir, 0755); err == nil {
				logFile = filepath.Join(logDir, "sf-connector.log")
			}
		}
	}

	if logFile != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}

	logger.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
