// Package neighbors finds the records nearest to a target in projected 2D
// space, within the target's dimension group.
package neighbors

import (
	"context"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/okian/visiontags/internal/domain/faults"
	"github.com/okian/visiontags/internal/domain/model"
	"github.com/okian/visiontags/internal/domain/types"
	"github.com/okian/visiontags/pkg/metrics"
)

// DefaultK is used when a caller asks for k <= 0.
const DefaultK = 5

// Window reads the recent records.
type Window interface {
	LastN(ctx context.Context, n int) ([]model.Record, error)
}

// Projector refreshes a dimension group before it is read.
type Projector interface {
	EnsureProjected(ctx context.Context, dim int) ([]model.Record, error)
	WindowSize() int
}

// Finder answers nearest-neighbor queries.
type Finder struct {
	window    Window
	projector Projector
}

// New creates a Finder.
func New(window Window, projector Projector) *Finder {
	return &Finder{window: window, projector: projector}
}

// Neighbors returns up to k records closest to targetID, nearest first.
// Ties keep window order. The target is never included, and an unknown
// target or a group with no other member yields an empty result.
func (f *Finder) Neighbors(ctx context.Context, targetID string, k int) ([]types.Neighbor, error) {
	start := time.Now()
	defer func() { metrics.RecordNeighborQuery(metrics.Since(start)) }()

	if k <= 0 {
		k = DefaultK
	}
	window, err := f.window.LastN(ctx, f.projector.WindowSize())
	if err != nil {
		return nil, faults.Collaborator("neighbors: read window", err)
	}
	idx := model.Find(window, targetID)
	if idx < 0 {
		return []types.Neighbor{}, nil
	}
	dim := window[idx].Dim()
	if len(model.Group(window, dim)) < 2 {
		return []types.Neighbor{}, nil
	}

	group, err := f.projector.EnsureProjected(ctx, dim)
	if err != nil {
		return nil, err
	}
	return Nearest(group, targetID, k), nil
}

// Nearest ranks the projected members of group by distance to targetID.
// Members without coordinates are skipped.
func Nearest(group []model.Record, targetID string, k int) []types.Neighbor {
	if k <= 0 {
		k = DefaultK
	}
	idx := model.Find(group, targetID)
	if idx < 0 || group[idx].Coords == nil {
		return []types.Neighbor{}
	}
	origin := []float64{group[idx].Coords.X, group[idx].Coords.Y}

	out := make([]types.Neighbor, 0, len(group)-1)
	for i := range group {
		r := &group[i]
		if i == idx || r.Coords == nil {
			continue
		}
		out = append(out, types.Neighbor{
			ID:       r.ID,
			X:        r.Coords.X,
			Y:        r.Coords.Y,
			Label:    r.Label,
			Thumb:    r.Thumb,
			Distance: floats.Distance(origin, []float64{r.Coords.X, r.Coords.Y}, 2),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
