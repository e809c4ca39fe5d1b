// Package confusion computes label frequencies and a bounded confusion
// matrix over a window of predictions.
package confusion

import (
	"sort"

	"github.com/okian/visiontags/internal/domain/model"
	"github.com/okian/visiontags/internal/domain/types"
)

// MaxClasses bounds the confusion matrix dimension.
const MaxClasses = 5

// Summarize aggregates a chronological window.
//
// Classes are the most frequent predicted labels (ties by first appearance),
// then ground-truth labels in chronological order, up to MaxClasses. Cell
// [i][j] counts records whose ground truth is Classes[i] and prediction is
// Classes[j]; records with a label outside Classes are left out.
func Summarize(window []model.Record) types.Summary {
	counts := make(map[string]int)
	first := make(map[string]int)
	for i := range window {
		l := window[i].Label
		if _, seen := first[l]; !seen {
			first[l] = i
		}
		counts[l]++
	}

	classes := topLabels(counts, first)
	for i := range window {
		if len(classes) >= MaxClasses {
			break
		}
		t := window[i].TrueLabel
		if t != "" && indexOf(classes, t) < 0 {
			classes = append(classes, t)
		}
	}

	matrix := make([][]int, len(classes))
	for i := range matrix {
		matrix[i] = make([]int, len(classes))
	}
	var labeled, correct int
	for i := range window {
		r := &window[i]
		if !r.HasFeedback() {
			continue
		}
		labeled++
		if r.TrueLabel == r.Label {
			correct++
		}
		ti, pi := indexOf(classes, r.TrueLabel), indexOf(classes, r.Label)
		if ti >= 0 && pi >= 0 {
			matrix[ti][pi]++
		}
	}

	var accuracy float64
	if labeled > 0 {
		accuracy = float64(correct) / float64(labeled)
	}
	return types.Summary{
		Counts:    counts,
		Confusion: matrix,
		Classes:   classes,
		Total:     len(window),
		Labeled:   labeled,
		Accuracy:  accuracy,
	}
}

func topLabels(counts, first map[string]int) []string {
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		a, b := labels[i], labels[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return first[a] < first[b]
	})
	if len(labels) > MaxClasses {
		labels = labels[:MaxClasses]
	}
	return labels
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
