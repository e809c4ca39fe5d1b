package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/visiontags/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.WindowSize, convey.ShouldEqual, 200)
			convey.So(cfg.NeighborCount, convey.ShouldEqual, 5)
			convey.So(cfg.TopK, convey.ShouldEqual, 5)
			convey.So(cfg.OverlayOpacity, convey.ShouldEqual, 0.9)
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.MaxConcurrentInference, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Models, convey.ShouldContainKey, cfg.DefaultModel)
			convey.So(cfg.MaxImagePixels, convey.ShouldEqual, 1<<24)
		})

		convey.Convey("Then the two builtin models land in different dimension groups", func() {
			convey.So(cfg.Models["tinycnn"].EmbeddingDim, convey.ShouldNotEqual, cfg.Models["tinycnn-wide"].EmbeddingDim)
		})

		convey.Convey("Then it validates", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid settings", t, func() {
		cases := map[string]func(c *config.Config){
			"window_size must be at least 1": func(c *config.Config) {
				c.WindowSize = 0
			},
			"neighbor_count must be at least 1": func(c *config.Config) {
				c.NeighborCount = -1
			},
			"overlay_opacity must be less than": func(c *config.Config) {
				c.OverlayOpacity = 1.5
			},
			"max_image_pixels must be at least 1": func(c *config.Config) {
				c.MaxImagePixels = 0
			},
			"log_format must be one of: text json": func(c *config.Config) {
				c.LogFormat = "xml"
			},
			"store must be one of": func(c *config.Config) {
				c.Store = "redis"
			},
			"postgres_dsn is required": func(c *config.Config) {
				c.Store = config.StorePostgres
			},
			"memory_retention": func(c *config.Config) {
				c.MemoryRetention = 10
			},
			"default_model": func(c *config.Config) {
				c.DefaultModel = "resnet"
			},
			"models[far].url is required": func(c *config.Config) {
				c.Models["far"] = config.ModelConfig{Kind: config.ModelRemote, InputSize: 32}
			},
			"models[odd].kind must be one of": func(c *config.Config) {
				c.Models["odd"] = config.ModelConfig{Kind: "onnx", InputSize: 32}
			},
			"models[tiny].input_size must be at least 3": func(c *config.Config) {
				c.Models["tiny"] = config.ModelConfig{Kind: config.ModelBuiltin, InputSize: 2}
			},
		}

		for want, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, want)
		}
	})

	convey.Convey("Given a config breaking two field rules at once", t, func() {
		cfg := config.New()
		cfg.TopK = 0
		cfg.RateLimitBurst = -1
		err := cfg.Validate()

		convey.Convey("Then both are reported", func() {
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "top_k must be at least 1")
			convey.So(err.Error(), convey.ShouldContainSubstring, "rate_limit_burst must be greater than or equal to 0")
		})
	})
}
