// Package types contains common types used across the application
package types

// Score is one entry of a top-k classification.
type Score struct {
	Label string  `json:"label"`
	P     float64 `json:"p"`
}

// Coordinates is a projected 2D position.
type Coordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Neighbor is a nearby record in projected space.
type Neighbor struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Label    string  `json:"label"`
	Thumb    string  `json:"thumb"`
	Distance float64 `json:"distance"`
}

// Analysis is the result of classifying one image.
type Analysis struct {
	ID        string      `json:"id"`
	Model     string      `json:"model"`
	TopK      []Score     `json:"topk"`
	Heatmap   string      `json:"heatmap_png_b64"`
	Embedding Coordinates `json:"embedding"`
	Neighbors []Neighbor  `json:"neighbors"`
}

// Summary is the label and confusion statistics of a window.
type Summary struct {
	Counts    map[string]int `json:"counts"`
	Confusion [][]int        `json:"confusion"`
	Classes   []string       `json:"classes"`
	Total     int            `json:"total"`
	Labeled   int            `json:"labeled"`
	Accuracy  float64        `json:"accuracy"`
}

// Feedback is a ground-truth submission for an earlier prediction.
type Feedback struct {
	PredictionID string `json:"predictionId" validate:"required,max=64,no_null_bytes"`
	TrueLabel    string `json:"trueLabel" validate:"required,max=128,no_null_bytes"`
}

// Point is one record placed on the embedding map. Dim names its dimension
// group; points of different groups come from different projections.
type Point struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
	Thumb string  `json:"thumb"`
	Dim   int     `json:"dim"`
}

// Points is the embedding map of the recent window, oldest first.
type Points struct {
	Points []Point `json:"points"`
}
