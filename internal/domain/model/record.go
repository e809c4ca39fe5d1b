// Package model contains domain models passed between layers.
package model

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// idPrefix marks prediction identifiers.
const idPrefix = "pred_"

// Point is a projected 2D coordinate.
type Point struct {
	X float64
	Y float64
}

// Record is one classification event with its embedding and derived state.
// Coords and TrueLabel are the only fields mutated after creation.
type Record struct {
	ID        string    // unique, opaque
	Label     string    // top-1 predicted label
	Prob      float64   // top-1 probability
	CreatedAt time.Time // classification time
	Seq       int64     // insertion sequence assigned by the store; orders equal timestamps
	User      string    // requesting user, may be empty
	TrueLabel string    // ground truth from feedback, empty until set
	Embedding []float64 // penultimate-layer features
	Coords    *Point    // projected coordinates, nil until computed
	Thumb     string    // thumbnail reference (data URI)
	Model     string    // name (key@kind) of the model that produced the record
}

// Dim returns the record's dimension group key.
func (r *Record) Dim() int { return len(r.Embedding) }

// HasFeedback reports whether a ground-truth label was set.
func (r *Record) HasFeedback() bool { return r.TrueLabel != "" }

// Clone returns a deep copy so callers never share mutable state with a store.
func (r *Record) Clone() Record {
	c := *r
	if r.Embedding != nil {
		c.Embedding = append([]float64(nil), r.Embedding...)
	}
	if r.Coords != nil {
		p := *r.Coords
		c.Coords = &p
	}
	return c
}

// NewRecordID returns a fresh identifier such as "pred_0f3a9c1d2b4e".
func NewRecordID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return idPrefix + hex[:12]
}

// SortChronological orders records oldest first, breaking timestamp ties by
// insertion sequence.
func SortChronological(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Seq < b.Seq
	})
}

// Group returns the members of window whose embedding length is dim, keeping
// window order.
func Group(window []Record, dim int) []Record {
	out := make([]Record, 0, len(window))
	for i := range window {
		if window[i].Dim() == dim {
			out = append(out, window[i])
		}
	}
	return out
}

// Find returns the index of id in records, or -1.
func Find(records []Record, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}
