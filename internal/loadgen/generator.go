package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"

	"github.com/okian/visiontags/pkg/logger"
)

// patterns maps each synthetic pattern to the label used as its ground truth.
var patterns = []struct {
	truth string
	draw  func(img *image.RGBA, rng *rand.Rand)
}{
	{"tree", stripes},
	{"house", checker},
	{"boat", gradient},
	{"flower", blob},
}

// generateImages draws NumImages PNGs cycling through the patterns with
// seeded color jitter.
func generateImages(ctx context.Context, config *Config, stats *Stats) ([]sample, error) {
	logger.Get().Info(ctx, "generating images", logger.Int("numImages", config.NumImages))

	rng := rand.New(rand.NewSource(config.Seed)) //nolint:gosec // reproducible inputs
	samples := make([]sample, 0, config.NumImages)
	for i := 0; i < config.NumImages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during image generation: %w", err)
		}
		p := patterns[i%len(patterns)]
		img := image.NewRGBA(image.Rect(0, 0, config.ImageSize, config.ImageSize))
		p.draw(img, rng)

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode image %d: %w", i, err)
		}
		samples = append(samples, sample{index: i, truth: p.truth, png: buf.Bytes()})
	}

	stats.ImagesGenerated = len(samples)
	logger.Get().Info(ctx, "generated images successfully", logger.Int("count", len(samples)))
	return samples, nil
}

func jitter(rng *rand.Rand, base uint8) uint8 {
	v := int(base) + rng.Intn(41) - 20
	return uint8(max(0, min(255, v)))
}

func stripes(img *image.RGBA, rng *rand.Rand) {
	b := img.Bounds()
	dark := color.RGBA{R: jitter(rng, 30), G: jitter(rng, 110), B: jitter(rng, 40), A: 255}
	light := color.RGBA{R: jitter(rng, 160), G: jitter(rng, 220), B: jitter(rng, 120), A: 255}
	width := 2 + rng.Intn(4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if (x/width)%2 == 0 {
				img.SetRGBA(x, y, dark)
			} else {
				img.SetRGBA(x, y, light)
			}
		}
	}
}

func checker(img *image.RGBA, rng *rand.Rand) {
	b := img.Bounds()
	a := color.RGBA{R: jitter(rng, 180), G: jitter(rng, 60), B: jitter(rng, 50), A: 255}
	c := color.RGBA{R: jitter(rng, 240), G: jitter(rng, 230), B: jitter(rng, 210), A: 255}
	cell := 3 + rng.Intn(5)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, a)
			} else {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

func gradient(img *image.RGBA, rng *rand.Rand) {
	b := img.Bounds()
	top := jitter(rng, 220)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		t := float64(y-b.Min.Y) / float64(max(1, b.Dy()-1))
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(float64(top) * (1 - t) * 0.3),
				G: uint8(float64(top) * (1 - t) * 0.6),
				B: uint8(float64(top)*(1-t) + 35*t),
				A: 255,
			})
		}
	}
}

func blob(img *image.RGBA, rng *rand.Rand) {
	b := img.Bounds()
	cx := b.Min.X + b.Dx()/4 + rng.Intn(max(1, b.Dx()/2))
	cy := b.Min.Y + b.Dy()/4 + rng.Intn(max(1, b.Dy()/2))
	r := max(2, b.Dx()/4)
	petal := color.RGBA{R: jitter(rng, 230), G: jitter(rng, 80), B: jitter(rng, 170), A: 255}
	grass := color.RGBA{R: jitter(rng, 60), G: jitter(rng, 150), B: jitter(rng, 60), A: 255}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, petal)
			} else {
				img.SetRGBA(x, y, grass)
			}
		}
	}
}
