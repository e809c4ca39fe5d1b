package projection

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/visiontags/internal/domain/faults"
	"github.com/okian/visiontags/internal/domain/model"
)

const (
	// Epsilon is added to each axis scale before normalization.
	Epsilon = 1e-8
	// rankTolerance is relative to the largest singular value.
	rankTolerance = 1e-12
	maxAxes       = 2
)

// Project computes normalized 2D PCA coordinates for records that all share
// embedding length dim. The result is index-aligned with records.
//
// With fewer than two usable axes the missing coordinates are 0. Each axis is
// scaled by max|value|+Epsilon so every coordinate lies in (-1, 1).
func Project(records []model.Record, dim int) ([]model.Point, error) {
	n := len(records)
	if n == 0 {
		return nil, nil
	}
	x, err := matrix(records, dim)
	if err != nil {
		return nil, err
	}
	center(x)

	axes := principalAxes(x)
	out := make([]model.Point, n)
	if len(axes) == 0 {
		return out, nil
	}

	cols := make([][]float64, len(axes))
	for j, axis := range axes {
		col := make([]float64, n)
		for i := 0; i < n; i++ {
			col[i] = floats.Dot(x.RawRowView(i), axis)
		}
		scale := math.Max(floats.Max(col), -floats.Min(col)) + Epsilon
		floats.Scale(1/scale, col)
		cols[j] = col
	}
	for i := range out {
		out[i].X = cols[0][i]
		if len(cols) > 1 {
			out[i].Y = cols[1][i]
		}
	}
	return out, nil
}

// matrix stacks the embeddings row-wise, rejecting any length other than dim.
func matrix(records []model.Record, dim int) (*mat.Dense, error) {
	data := make([]float64, 0, len(records)*dim)
	for i := range records {
		if got := len(records[i].Embedding); got != dim {
			return nil, &faults.IntegrityError{Dim: dim, RecordID: records[i].ID, Got: got}
		}
		data = append(data, records[i].Embedding...)
	}
	return mat.NewDense(len(records), dim, data), nil
}

func center(x *mat.Dense) {
	n, d := x.Dims()
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		mean := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			x.Set(i, j, col[i]-mean)
		}
	}
}

// principalAxes returns up to two right-singular vectors of the centered
// matrix, ordered by singular value, with deterministic signs.
func principalAxes(x *mat.Dense) [][]float64 {
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return nil
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] <= 0 {
		return nil
	}
	limit := rankTolerance * values[0]
	rank := 0
	for _, s := range values {
		if s > limit {
			rank++
		}
	}

	var v mat.Dense
	svd.VTo(&v)

	k := min(maxAxes, rank)
	axes := make([][]float64, k)
	for j := 0; j < k; j++ {
		axis := mat.Col(nil, j, &v)
		if axis[floats.MaxIdx(abs(axis))] < 0 {
			floats.Scale(-1, axis)
		}
		axes[j] = axis
	}
	return axes
}

func abs(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Abs(x)
	}
	return out
}
