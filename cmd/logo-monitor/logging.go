package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sweeney/logo-monitor/internal/config"
)

// setupLogging sends the standard logger to stderr and, when a file is
// configured, to a size-rotated compressed log file.
func setupLogging(cfg config.LogConfig) (func(), error) {
	if cfg.File == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("log dir: %w", err)
	}

	lj := &lumberjack.Logger{
		Filename: cfg.File,
		MaxSize:  cfg.MaxSizeMB,
		MaxAge:   cfg.MaxAgeDays,
		Compress: true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	return func() {
		log.SetOutput(os.Stderr)
		lj.Close()
	}, nil
}
