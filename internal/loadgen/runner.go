package loadgen

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/visiontags/internal/domain/types"
	"github.com/okian/visiontags/pkg/logger"
)

// Runner configuration constants.
const (
	neighborK            = 5
	percentageMultiplier = 100
)

// Run executes a complete load run and returns its statistics.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	log.Info(ctx, "starting visiontags load run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("images", config.NumImages),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Float64("feedbackRatio", config.FeedbackRatio))

	client := newHTTPClient(config)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate images
	samples, err := generateImages(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("image generation failed: %w", err)
	}

	// Step 3: Analyze concurrently
	results := submitImages(ctx, config, client, samples, stats)
	if len(results) == 0 {
		return stats, fmt.Errorf("no image was analyzed")
	}

	// Step 4: Ground truth for a share of the predictions
	submitFeedback(ctx, config, client, results, stats)

	// Step 5: Neighbors of every analyzed image
	neighbors := retrieveNeighbors(ctx, config, client, results, stats)

	// Step 6: Embedding map, summary and invariants
	points, err := client.Points(ctx, 0)
	if err != nil {
		return stats, fmt.Errorf("embedding map retrieval failed: %w", err)
	}
	stats.PointsRetrieved = len(points.Points)

	summary, err := client.Summary(ctx, 0)
	if err != nil {
		return stats, fmt.Errorf("summary retrieval failed: %w", err)
	}
	if err := verifyResults(ctx, summary, neighbors, points); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats, summary)
	return stats, nil
}

// fanOut runs fn for every index in [0, n) on at most workers goroutines.
// Indices not yet started when ctx is done are skipped.
func fanOut(ctx context.Context, workers, n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(max(1, workers))
	for i := 0; i < n && ctx.Err() == nil; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

// submitImages uploads every sample and keeps the successful analyses in
// sample order.
func submitImages(ctx context.Context, config *Config, client *HTTPClient, samples []sample, stats *Stats) []result {
	logger.Get().Info(ctx, "submitting images", logger.Int("count", len(samples)), logger.Int("workers", config.Workers))

	slots := make([]*result, len(samples))
	var submitted, failed int64
	fanOut(ctx, config.Workers, len(samples), func(i int) {
		atomic.AddInt64(&submitted, 1)
		analysis, err := client.Analyze(ctx, samples[i].png)
		if err != nil {
			atomic.AddInt64(&failed, 1)
			if config.Verbose {
				logger.Get().Warn(ctx, "analyze failed", logger.Int("index", i), logger.Error(err))
			}
			return
		}
		slots[i] = &result{sample: samples[i], id: analysis.ID}
	})

	results := make([]result, 0, len(samples))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	stats.ImagesSubmitted = int(submitted)
	stats.ImagesFailed = int(failed)
	stats.ImagesSuccessful = len(results)
	logger.Get().Info(ctx, "image submission completed",
		logger.Int("successful", stats.ImagesSuccessful),
		logger.Int("failed", stats.ImagesFailed))
	return results
}

// submitFeedback labels the first FeedbackRatio share of results with the
// pattern's ground truth.
func submitFeedback(ctx context.Context, config *Config, client *HTTPClient, results []result, stats *Stats) {
	n := int(float64(len(results)) * config.FeedbackRatio)
	var failed int64
	fanOut(ctx, config.Workers, n, func(i int) {
		if err := client.Feedback(ctx, results[i].id, results[i].truth); err != nil {
			atomic.AddInt64(&failed, 1)
			if config.Verbose {
				logger.Get().Warn(ctx, "feedback failed", logger.String("id", results[i].id), logger.Error(err))
			}
		}
	})
	stats.FeedbackSubmitted = n
	stats.FeedbackFailed = int(failed)
}

// retrieveNeighbors fetches the neighbors of every result, keyed by id.
func retrieveNeighbors(ctx context.Context, config *Config, client *HTTPClient, results []result, stats *Stats) map[string][]types.Neighbor {
	var mu sync.Mutex
	out := make(map[string][]types.Neighbor, len(results))
	fanOut(ctx, config.Workers, len(results), func(i int) {
		got, err := client.Neighbors(ctx, results[i].id, neighborK)
		if err != nil {
			if config.Verbose {
				logger.Get().Warn(ctx, "neighbors failed", logger.String("id", results[i].id), logger.Error(err))
			}
			return
		}
		mu.Lock()
		out[results[i].id] = got
		mu.Unlock()
	})
	stats.NeighborsRetrieved = len(out)
	return out
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats, summary types.Summary) {
	var successRate, imagesPerSecond float64
	if stats.ImagesSubmitted > 0 {
		successRate = float64(stats.ImagesSuccessful) / float64(stats.ImagesSubmitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		imagesPerSecond = float64(stats.ImagesSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("imagesGenerated", stats.ImagesGenerated),
		logger.Int("imagesSubmitted", stats.ImagesSubmitted),
		logger.Int("imagesSuccessful", stats.ImagesSuccessful),
		logger.Int("imagesFailed", stats.ImagesFailed),
		logger.Int("feedbackSubmitted", stats.FeedbackSubmitted),
		logger.Int("feedbackFailed", stats.FeedbackFailed),
		logger.Int("neighborsRetrieved", stats.NeighborsRetrieved),
		logger.Int("pointsRetrieved", stats.PointsRetrieved),
		logger.Int("windowTotal", summary.Total),
		logger.Float64("accuracy", summary.Accuracy),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("imagesPerSecond", imagesPerSecond))
}
