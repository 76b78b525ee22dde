package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// logOutput receives every component log line.
var logOutput io.Writer = os.Stderr

func setupLogging() error {
	switch {
	case quiet:
		logOutput = io.Discard
	case logFile != "":
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		logOutput = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	default:
		logOutput = os.Stderr
	}
	return nil
}

// newLogger returns a component logger with the given prefix, e.g. "sync".
func newLogger(component string) *log.Logger {
	return log.New(logOutput, "["+component+"] ", log.LstdFlags)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
