package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/visiontags/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAnalysisJSON(t *testing.T) {
	Convey("Given an analysis", t, func() {
		a := types.Analysis{
			ID:        "pred_000000000001",
			Model:     "tinycnn@builtin",
			TopK:      []types.Score{{Label: "cat", P: 0.75}},
			Heatmap:   "data:image/png;base64,AA==",
			Embedding: types.Coordinates{X: 0.5, Y: -1},
			Neighbors: []types.Neighbor{},
		}

		Convey("When it is encoded", func() {
			raw, err := json.Marshal(a)
			So(err, ShouldBeNil)

			var fields map[string]any
			So(json.Unmarshal(raw, &fields), ShouldBeNil)

			Convey("Then the wire keys are the public contract", func() {
				So(fields, ShouldContainKey, "topk")
				So(fields, ShouldContainKey, "heatmap_png_b64")
				So(fields, ShouldContainKey, "embedding")
				So(fields["neighbors"], ShouldResemble, []any{})
				So(fields["model"], ShouldEqual, "tinycnn@builtin")
			})
		})
	})

	Convey("Given a feedback payload", t, func() {
		var f types.Feedback
		err := json.Unmarshal([]byte(`{"predictionId":"pred_1","trueLabel":"dog"}`), &f)

		Convey("Then camelCase keys decode", func() {
			So(err, ShouldBeNil)
			So(f.PredictionID, ShouldEqual, "pred_1")
			So(f.TrueLabel, ShouldEqual, "dog")
		})
	})
}
