package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/visiontags/internal/loadgen"
)

// Default configuration constants.
const (
	defaultNumImages     = 500
	defaultImageSize     = 64
	defaultFeedbackRatio = 0.5
	defaultTimeout       = 30 * time.Second
	defaultRunTimeout    = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numImages = flag.Int("images", defaultNumImages, "Number of images to generate and analyze")
		imageSize = flag.Int("size", defaultImageSize, "Side length of generated images")
		workers   = flag.Int("workers", runtime.NumCPU(), "Number of concurrent workers")
		feedback  = flag.Float64("feedback", defaultFeedbackRatio, "Share of predictions that receive ground truth")
		model     = flag.String("model", "", "Model key; empty uses the service default")
		user      = flag.String("user", "loadgen", "X-User header")
		seed      = flag.Int64("seed", 1, "Seed for image generation")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile   = flag.String("log", "", "Log file (default: loadgen_TIMESTAMP.log)")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	closer, err := loadgen.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &loadgen.Config{
		BaseURL:       *baseURL,
		NumImages:     *numImages,
		ImageSize:     *imageSize,
		Workers:       *workers,
		Timeout:       *timeout,
		FeedbackRatio: *feedback,
		Seed:          *seed,
		User:          *user,
		Model:         *model,
		LogFile:       *logFile,
		Verbose:       *verbose,
	}

	if _, err := loadgen.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
