package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestDecodePixelCap(t *testing.T) {
	Convey("Given a small file that declares a large canvas", t, func() {
		var buf bytes.Buffer
		So(png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3000, 3000))), ShouldBeNil)
		So(buf.Len(), ShouldBeLessThan, 64<<10)

		Convey("When the canvas exceeds the pixel cap", func() {
			_, _, err := Decode(bytes.NewReader(buf.Bytes()), 1<<20)

			Convey("Then it is rejected before the pixels are decoded", func() {
				So(errors.Is(err, ErrTooLarge), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "3000x3000")
			})
		})

		Convey("When the cap admits the canvas", func() {
			img, _, err := Decode(bytes.NewReader(buf.Bytes()), 3000*3000)

			Convey("Then the whole image is decoded after the header check", func() {
				So(err, ShouldBeNil)
				So(img.Bounds().Dx(), ShouldEqual, 3000)
				So(img.Bounds().Dy(), ShouldEqual, 3000)
			})
		})
	})
}

func TestDecode(t *testing.T) {
	Convey("Given a PNG upload", t, func() {
		var buf bytes.Buffer
		So(png.Encode(&buf, solid(10, 6, color.NRGBA{R: 200, A: 255})), ShouldBeNil)

		img, format, err := Decode(&buf, 0)

		Convey("Then it decodes with its size and format", func() {
			So(err, ShouldBeNil)
			So(format, ShouldEqual, "png")
			So(img.Bounds().Dx(), ShouldEqual, 10)
			So(img.Bounds().Dy(), ShouldEqual, 6)
		})
	})

	Convey("Given bytes that are not an image", t, func() {
		_, _, err := Decode(strings.NewReader("hello"), 0)
		So(errors.Is(err, ErrDecode), ShouldBeTrue)
	})
}

func TestToTensor(t *testing.T) {
	Convey("Given a white image", t, func() {
		img := solid(40, 20, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

		Convey("When converted at size 8", func() {
			x := ToTensor(img, 8)

			Convey("Then it is 3x8x8 and normalized per channel", func() {
				So(x.C, ShouldEqual, 3)
				So(x.H, ShouldEqual, 8)
				So(x.W, ShouldEqual, 8)
				So(x.At(0, 3, 3), ShouldAlmostEqual, (1-0.485)/0.229, 0.02)
				So(x.At(2, 7, 0), ShouldAlmostEqual, (1-0.406)/0.225, 0.02)
			})
		})
	})
}

func TestThumbnail(t *testing.T) {
	Convey("Given a wide image", t, func() {
		thumb := Thumbnail(solid(200, 100, color.NRGBA{G: 255, A: 255}))

		Convey("Then it fits 64x64 keeping the aspect ratio", func() {
			So(thumb.Bounds().Dx(), ShouldEqual, 64)
			So(thumb.Bounds().Dy(), ShouldEqual, 32)
		})
	})

	Convey("Given a tall image", t, func() {
		thumb := Thumbnail(solid(30, 300, color.NRGBA{G: 255, A: 255}))
		So(thumb.Bounds().Dx(), ShouldEqual, 6)
		So(thumb.Bounds().Dy(), ShouldEqual, 64)
	})

	Convey("Given a small image", t, func() {
		src := solid(10, 12, color.NRGBA{B: 255, A: 255})
		So(Thumbnail(src) == image.Image(src), ShouldBeTrue)
	})
}

func TestDataURIs(t *testing.T) {
	Convey("Given an overlay", t, func() {
		img := solid(5, 5, color.NRGBA{R: 255, A: 128})

		Convey("When encoded as PNG", func() {
			uri, err := PNGDataURI(img)
			So(err, ShouldBeNil)
			So(strings.HasPrefix(uri, "data:image/png;base64,"), ShouldBeTrue)

			Convey("Then the payload round trips with alpha", func() {
				raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
				So(err, ShouldBeNil)
				back, err := png.Decode(bytes.NewReader(raw))
				So(err, ShouldBeNil)
				So(color.NRGBAModel.Convert(back.At(2, 2)), ShouldResemble, color.NRGBA{R: 255, A: 128})
			})
		})

		Convey("When rendered as a thumbnail reference", func() {
			uri, err := ThumbnailDataURI(solid(128, 128, color.NRGBA{R: 9, G: 9, B: 9, A: 255}))
			So(err, ShouldBeNil)
			So(strings.HasPrefix(uri, "data:image/jpeg;base64,"), ShouldBeTrue)

			raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/jpeg;base64,"))
			So(err, ShouldBeNil)
			back, err := jpeg.Decode(bytes.NewReader(raw))
			So(err, ShouldBeNil)
			So(back.Bounds().Dx(), ShouldEqual, 64)
		})
	})
}
