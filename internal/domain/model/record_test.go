package model

import (
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRecord(t *testing.T) {
	Convey("Given new record identifiers", t, func() {
		a, b := NewRecordID(), NewRecordID()

		Convey("Then they are prefixed, 17 chars long and unique", func() {
			So(strings.HasPrefix(a, "pred_"), ShouldBeTrue)
			So(len(a), ShouldEqual, 17)
			So(a, ShouldNotEqual, b)
		})
	})

	Convey("Given a record with coordinates", t, func() {
		r := Record{ID: "pred_1", Embedding: []float64{1, 2, 3}, Coords: &Point{X: 0.5, Y: -0.5}}

		Convey("When it is cloned and the clone is mutated", func() {
			c := r.Clone()
			c.Embedding[0] = 42
			c.Coords.X = 9

			Convey("Then the original is untouched", func() {
				So(r.Embedding[0], ShouldEqual, 1)
				So(r.Coords.X, ShouldEqual, 0.5)
				So(r.Dim(), ShouldEqual, 3)
			})
		})
	})

	Convey("Given records with equal timestamps", t, func() {
		ts := time.Unix(100, 0)
		records := []Record{
			{ID: "c", CreatedAt: ts, Seq: 3},
			{ID: "a", CreatedAt: ts.Add(-time.Second), Seq: 9},
			{ID: "b", CreatedAt: ts, Seq: 2},
		}
		SortChronological(records)

		Convey("Then order is by time then sequence", func() {
			So(records[0].ID, ShouldEqual, "a")
			So(records[1].ID, ShouldEqual, "b")
			So(records[2].ID, ShouldEqual, "c")
		})
	})

	Convey("Given a mixed-dimension window", t, func() {
		window := []Record{
			{ID: "a", Embedding: make([]float64, 4)},
			{ID: "b", Embedding: make([]float64, 8)},
			{ID: "c", Embedding: make([]float64, 4)},
		}

		Convey("Then Group keeps only matching lengths in order", func() {
			g := Group(window, 4)
			So(len(g), ShouldEqual, 2)
			So(g[0].ID, ShouldEqual, "a")
			So(g[1].ID, ShouldEqual, "c")
			So(Find(g, "c"), ShouldEqual, 1)
			So(Find(g, "b"), ShouldEqual, -1)
		})
	})
}
