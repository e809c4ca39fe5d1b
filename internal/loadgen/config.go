package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL       string        // Base URL of the service
	NumImages     int           // Number of images to generate and analyze
	ImageSize     int           // Side length of generated images
	Workers       int           // Number of concurrent workers
	Timeout       time.Duration // HTTP request timeout
	FeedbackRatio float64       // Share of predictions that receive ground truth
	Seed          int64         // Seed for image generation
	User          string        // X-User header sent with uploads
	Model         string        // Model key, empty for the service default
	LogFile       string        // Log file for run output
	Verbose       bool          // Enable verbose logging
}

// Stats holds run statistics.
type Stats struct {
	ImagesGenerated    int
	ImagesSubmitted    int
	ImagesSuccessful   int
	ImagesFailed       int
	FeedbackSubmitted  int
	FeedbackFailed     int
	NeighborsRetrieved int
	PointsRetrieved    int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}

// sample is a generated upload with the label its pattern stands for.
type sample struct {
	index int
	truth string
	png   []byte
}

// result is a successful analysis of one sample.
type result struct {
	sample
	id string
}
