package loadgen

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/visiontags/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log output to both stdout and a file. If logFile is
// empty, a timestamped filename is generated. The returned closer releases
// the file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		logFile = "loadgen_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	if err := logger.Init(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the load tool.
func ShowHelp() {
	os.Stdout.WriteString(`VisionTags Load Tool
====================

Uploads synthetic images to a running VisionTags service, submits ground
truth for a share of them, fetches neighbors and checks the summary.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -images int
        Number of images to generate and analyze (default 500)
  -size int
        Side length of generated images (default 64)
  -workers int
        Number of concurrent workers (default CPU cores)
  -feedback float
        Share of predictions that receive ground truth (default 0.5)
  -model string
        Model key; empty uses the service default
  -user string
        X-User header (default "loadgen")
  -seed int
        Seed for image generation (default 1)
  -timeout duration
        HTTP request timeout (default 30s)
  -log string
        Log file (default: loadgen_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  go run ./cmd/loadgen -images 2000 -workers 16
  go run ./cmd/loadgen -model tinycnn-wide -feedback 1
`)
}
