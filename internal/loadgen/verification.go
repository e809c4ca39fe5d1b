package loadgen

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/visiontags/internal/domain/confusion"
	"github.com/okian/visiontags/internal/domain/types"
	"github.com/okian/visiontags/pkg/logger"
)

// coordTolerance absorbs rounding in normalized coordinates.
const coordTolerance = 1e-6

// verifyResults checks the invariants a client can observe.
func verifyResults(ctx context.Context, summary types.Summary, neighbors map[string][]types.Neighbor, points types.Points) error {
	logger.Get().Info(ctx, "verifying results")

	if err := verifySummary(summary); err != nil {
		return err
	}
	for id, list := range neighbors {
		if err := verifyNeighbors(id, list); err != nil {
			return err
		}
	}
	if err := verifyPoints(points, summary.Total); err != nil {
		return err
	}

	logger.Get().Info(ctx, "result verification completed",
		logger.Int("classes", len(summary.Classes)),
		logger.Int("neighborLists", len(neighbors)),
		logger.Int("points", len(points.Points)))
	return nil
}

// verifySummary checks class cap, matrix shape and count totals.
func verifySummary(s types.Summary) error {
	if len(s.Classes) > confusion.MaxClasses {
		return fmt.Errorf("summary has %d classes, cap is %d", len(s.Classes), confusion.MaxClasses)
	}
	if len(s.Confusion) != len(s.Classes) {
		return fmt.Errorf("confusion has %d rows for %d classes", len(s.Confusion), len(s.Classes))
	}
	for i, row := range s.Confusion {
		if len(row) != len(s.Classes) {
			return fmt.Errorf("confusion row %d has %d cells for %d classes", i, len(row), len(s.Classes))
		}
	}
	sum := 0
	for _, n := range s.Counts {
		sum += n
	}
	if sum != s.Total {
		return fmt.Errorf("label counts sum to %d, total is %d", sum, s.Total)
	}
	if s.Labeled > s.Total {
		return fmt.Errorf("labeled %d exceeds total %d", s.Labeled, s.Total)
	}
	if s.Accuracy < 0 || s.Accuracy > 1 {
		return fmt.Errorf("accuracy %.3f outside [0, 1]", s.Accuracy)
	}
	return nil
}

// verifyNeighbors checks the target is excluded and order is nearest first.
func verifyNeighbors(id string, list []types.Neighbor) error {
	for i, n := range list {
		if n.ID == id {
			return fmt.Errorf("neighbors of %s include the target", id)
		}
		if i > 0 && n.Distance < list[i-1].Distance {
			return fmt.Errorf("neighbors of %s are not sorted at %d", id, i)
		}
	}
	return nil
}

// verifyPoints checks the embedding map holds each windowed record at most
// once and every coordinate is normalized.
func verifyPoints(p types.Points, windowTotal int) error {
	if len(p.Points) > windowTotal {
		return fmt.Errorf("embedding map has %d points for a window of %d", len(p.Points), windowTotal)
	}
	seen := make(map[string]bool, len(p.Points))
	for _, pt := range p.Points {
		if seen[pt.ID] {
			return fmt.Errorf("embedding map repeats %s", pt.ID)
		}
		seen[pt.ID] = true
		if math.Abs(pt.X) > 1+coordTolerance || math.Abs(pt.Y) > 1+coordTolerance {
			return fmt.Errorf("point %s at (%.4f, %.4f) is outside [-1, 1]", pt.ID, pt.X, pt.Y)
		}
	}
	return nil
}
