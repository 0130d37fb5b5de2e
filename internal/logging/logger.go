// Package logging configures the process-wide structured logger used by
// the engine and its CLI, built on logrus the way the rest of this project
// does.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds logger configuration.
type Config struct {
	Level      logrus.Level
	OutputFile string // path to log file; empty means stdout only
	JSONFormat bool
}

var (
	global     *logrus.Logger
	globalOnce sync.Once
)

// Initialize configures the global logger. Safe to call more than once;
// only the first call takes effect.
func Initialize(config Config) error {
	var initErr error
	globalOnce.Do(func() {
		logger, err := NewLogger(config)
		if err != nil {
			initErr = fmt.Errorf("initializing logger: %w", err)
			return
		}
		global = logger
	})
	return initErr
}

// NewLogger builds a standalone logrus.Logger from config.
func NewLogger(config Config) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetLevel(config.Level)

	writers := []io.Writer{os.Stdout}
	if config.OutputFile != "" {
		dir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
		}
		file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", config.OutputFile, err)
		}
		writers = append(writers, file)
	}
	logger.SetOutput(io.MultiWriter(writers...))

	if config.JSONFormat {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger, nil
}

// Global returns the process-wide logger, initializing a sensible default
// if Initialize was never called.
func Global() *logrus.Logger {
	globalOnce.Do(func() {
		logger, _ := NewLogger(DefaultConfig(false))
		global = logger
	})
	return global
}

// DefaultConfig returns a sensible default configuration: human-readable
// text to stdout in debug mode, JSON to stdout and a timestamped file
// otherwise.
func DefaultConfig(debug bool) Config {
	level := logrus.InfoLevel
	if debug {
		level = logrus.DebugLevel
	}

	logFile := ""
	if !debug {
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		logFile = filepath.Join("logs", fmt.Sprintf("smartlog_%s.log", timestamp))
	}

	return Config{
		Level:      level,
		OutputFile: logFile,
		JSONFormat: !debug,
	}
}
