package saliency

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func filled(c, h, w int, v float64) Tensor {
	t := NewTensor(c, h, w)
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

func TestHeatmap(t *testing.T) {
	Convey("Given mismatched or empty inputs", t, func() {
		a := filled(2, 3, 3, 1)

		Convey("When gradient shape differs", func() {
			_, err := Heatmap(a, filled(2, 3, 4, 1), 4, 4)
			So(errors.Is(err, ErrShapeMismatch), ShouldBeTrue)
		})

		Convey("When the tensor is empty", func() {
			_, err := Heatmap(Tensor{}, Tensor{}, 4, 4)
			So(errors.Is(err, ErrShapeMismatch), ShouldBeTrue)
		})

		Convey("When data length disagrees with the shape", func() {
			bad := Tensor{C: 2, H: 3, W: 3, Data: make([]float64, 5)}
			_, err := Heatmap(bad, bad, 4, 4)
			So(errors.Is(err, ErrShapeMismatch), ShouldBeTrue)
		})

		Convey("When the target size is not positive", func() {
			_, err := Heatmap(a, a, 0, 4)
			So(errors.Is(err, ErrInvalidSize), ShouldBeTrue)
		})
	})

	Convey("Given a single channel with unit gradient", t, func() {
		a := Tensor{C: 1, H: 2, W: 2, Data: []float64{0, 1, 2, 3}}
		g := filled(1, 2, 2, 1)

		Convey("When mapped at the native size", func() {
			m, err := Heatmap(a, g, 2, 2)
			So(err, ShouldBeNil)

			Convey("Then values are min-max normalized below one", func() {
				So(m.At(0, 0), ShouldEqual, 0)
				So(m.At(0, 1), ShouldAlmostEqual, 1.0/3, 1e-6)
				So(m.At(1, 1), ShouldBeLessThan, 1)
				So(m.At(1, 1), ShouldAlmostEqual, 1, 1e-6)
			})
		})
	})

	Convey("Given activations with negative contributions", t, func() {
		a := Tensor{C: 1, H: 2, W: 2, Data: []float64{-1, 2, 0, 0}}
		g := filled(1, 2, 2, 1)

		Convey("Then negatives are clamped before normalization", func() {
			m, err := Heatmap(a, g, 2, 2)
			So(err, ShouldBeNil)
			So(m.At(0, 0), ShouldEqual, 0)
			So(m.At(1, 0), ShouldEqual, 0)
			So(m.At(0, 1), ShouldAlmostEqual, 1, 1e-6)
		})
	})

	Convey("Given a uniform raw map", t, func() {
		a := filled(3, 4, 4, 2)
		g := filled(3, 4, 4, 0.5)

		Convey("Then the normalized map is all zeros rather than an error", func() {
			m, err := Heatmap(a, g, 8, 8)
			So(err, ShouldBeNil)
			for _, v := range m.Data {
				So(v, ShouldEqual, 0)
			}
		})
	})

	Convey("Given a gradient that only lowers the score", t, func() {
		a := filled(2, 3, 3, 1)
		g := filled(2, 3, 3, -1)

		Convey("Then every cell clamps to zero", func() {
			m, err := Heatmap(a, g, 5, 5)
			So(err, ShouldBeNil)
			for _, v := range m.Data {
				So(v, ShouldEqual, 0)
			}
		})
	})
}

func TestResize(t *testing.T) {
	Convey("Given a 1x2 row", t, func() {
		m := Map{H: 1, W: 2, Data: []float64{0, 4}}

		Convey("When upsampled to 1x4 on half-pixel centers", func() {
			out := Resize(m, 1, 4)

			Convey("Then edges clamp and inner taps interpolate", func() {
				So(out.Data, ShouldResemble, []float64{0, 1, 3, 4})
			})
		})
	})

	Convey("Given a 2x2 map resized to itself", t, func() {
		m := Map{H: 2, W: 2, Data: []float64{1, 2, 3, 4}}

		Convey("Then it is unchanged", func() {
			So(Resize(m, 2, 2).Data, ShouldResemble, m.Data)
		})
	})

	Convey("Given a 4x4 map downsampled to 2x2", t, func() {
		m := Map{H: 4, W: 4, Data: []float64{
			0, 1, 2, 3,
			4, 5, 6, 7,
			8, 9, 10, 11,
			12, 13, 14, 15,
		}}

		Convey("Then each output averages its 2x2 block center", func() {
			out := Resize(m, 2, 2)
			So(out.At(0, 0), ShouldAlmostEqual, 2.5, 1e-12)
			So(out.At(1, 1), ShouldAlmostEqual, 12.5, 1e-12)
		})
	})
}

func TestOverlay(t *testing.T) {
	Convey("Given a normalized map", t, func() {
		m := Map{H: 1, W: 2, Data: []float64{0, 1}}

		Convey("When rendered at half opacity", func() {
			img := Overlay(m, 0.5)

			Convey("Then red carries intensity and alpha carries opacity", func() {
				So(img.Bounds().Dx(), ShouldEqual, 2)
				So(img.Bounds().Dy(), ShouldEqual, 1)
				cold := img.NRGBAAt(0, 0)
				hot := img.NRGBAAt(1, 0)
				So(cold.R, ShouldEqual, 0)
				So(cold.A, ShouldEqual, 0)
				So(hot.R, ShouldEqual, 255)
				So(hot.G, ShouldEqual, 0)
				So(hot.B, ShouldEqual, 0)
				So(hot.A, ShouldEqual, 127)
			})
		})

		Convey("When opacity is out of range", func() {
			So(Overlay(m, 3).NRGBAAt(1, 0).A, ShouldEqual, 255)
			So(Overlay(m, -1).NRGBAAt(1, 0).A, ShouldEqual, 0)
		})
	})

	Convey("Given Render on valid tensors", t, func() {
		a := Tensor{C: 1, H: 2, W: 2, Data: []float64{0, 0, 0, 5}}
		g := filled(1, 2, 2, 1)

		Convey("Then the image has the target size", func() {
			img, err := Render(a, g, 6, 10, 0.9)
			So(err, ShouldBeNil)
			So(img.Bounds().Dx(), ShouldEqual, 10)
			So(img.Bounds().Dy(), ShouldEqual, 6)
		})
	})
}
