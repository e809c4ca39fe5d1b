// Package imaging decodes uploads, converts them to model input tensors and
// encodes overlays and thumbnails as data URIs.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	_ "image/gif" // register decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder

	"github.com/okian/visiontags/internal/domain/classifier"
	"github.com/okian/visiontags/internal/domain/saliency"
)

const (
	// ThumbSize bounds both thumbnail sides.
	ThumbSize = 64
	// ThumbQuality is the JPEG quality of thumbnails.
	ThumbQuality = 85

	pngPrefix  = "data:image/png;base64,"
	jpegPrefix = "data:image/jpeg;base64,"
)

// Per-channel normalization applied to model inputs (ImageNet statistics).
var (
	channelMean = [classifier.InputChannels]float64{0.485, 0.456, 0.406}
	channelStd  = [classifier.InputChannels]float64{0.229, 0.224, 0.225}
)

// Decode reads a PNG, JPEG, GIF or WebP image. The header is checked first:
// an image with more than maxPixels pixels is rejected with ErrTooLarge
// before its pixel data is decoded. maxPixels <= 0 disables the check.
func Decode(r io.Reader, maxPixels int) (image.Image, string, error) {
	var header bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrDecode)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrDecode)
	}
	return img, format, nil
}

// Scale resizes img to exactly w x h with bilinear filtering.
func Scale(img image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// ToTensor scales img to size x size and returns normalized CHW RGB values.
func ToTensor(img image.Image, size int) saliency.Tensor {
	src := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(src, src.Bounds(), img, img.Bounds(), draw.Src, nil)

	t := saliency.NewTensor(classifier.InputChannels, size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := src.PixOffset(x, y)
			for c := 0; c < classifier.InputChannels; c++ {
				v := float64(src.Pix[i+c]) / 255
				t.Set(c, y, x, (v-channelMean[c])/channelStd[c])
			}
		}
	}
	return t
}

// Thumbnail shrinks img to fit within ThumbSize x ThumbSize keeping its
// aspect ratio. Smaller images are returned unscaled.
func Thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= ThumbSize && h <= ThumbSize {
		return img
	}
	if w >= h {
		h = max(1, h*ThumbSize/w)
		w = ThumbSize
	} else {
		w = max(1, w*ThumbSize/h)
		h = ThumbSize
	}
	return Scale(img, w, h)
}

// PNGDataURI encodes img as a base64 PNG data URI.
func PNGDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("%w: png: %v", ErrEncode, err)
	}
	return pngPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// JPEGDataURI encodes img as a base64 JPEG data URI.
func JPEGDataURI(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("%w: jpeg: %v", ErrEncode, err)
	}
	return jpegPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ThumbnailDataURI renders the thumbnail reference stored with a record.
func ThumbnailDataURI(img image.Image) (string, error) {
	return JPEGDataURI(Thumbnail(img), ThumbQuality)
}
