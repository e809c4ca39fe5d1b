package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/visiontags/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.WindowSize, convey.ShouldEqual, 200)
				convey.So(cfg.Models["tinycnn"].Channels, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("VISIONTAGS_ADDR", ":8080")
			_ = os.Setenv("VISIONTAGS_WINDOW_SIZE", "50")
			_ = os.Setenv("VISIONTAGS_OVERLAY_OPACITY", "0.5")
			_ = os.Setenv("VISIONTAGS_LOG_FORMAT", "json")
			_ = os.Setenv("VISIONTAGS_MODELS__TINYCNN__SEED", "7")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WindowSize, convey.ShouldEqual, 50)
				convey.So(cfg.OverlayOpacity, convey.ShouldEqual, 0.5)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})

			convey.Convey("Then a nested override keeps the rest of the model", func() {
				m := cfg.Models["tinycnn"]
				convey.So(m.Seed, convey.ShouldEqual, 7)
				convey.So(m.Channels, convey.ShouldEqual, 8)
				convey.So(m.EmbeddingDim, convey.ShouldEqual, 16)
				convey.So(cfg.Models, convey.ShouldContainKey, "tinycnn-wide")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
window_size: 100
store: sqlite
sqlite_path: /tmp/visiontags-test.db
default_model: far
models:
  far:
    kind: remote
    url: http://inference:8000
    input_size: 224
    rate_per_sec: 5
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("VISIONTAGS_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.WindowSize, convey.ShouldEqual, 100)
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreSQLite)
				convey.So(cfg.Models["far"].URL, convey.ShouldEqual, "http://inference:8000")
				convey.So(cfg.Models["far"].InputSize, convey.ShouldEqual, 224)
				convey.So(cfg.Models["far"].TimeoutMS, convey.ShouldEqual, 10_000)
				convey.So(cfg.Models, convey.ShouldContainKey, "tinycnn")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
neighbor_count: 3
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("VISIONTAGS_CONFIG", tmpFile)
			_ = os.Setenv("VISIONTAGS_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")    // Overridden by env
				convey.So(cfg.NeighborCount, convey.ShouldEqual, 3) // From file
				convey.So(cfg.TopK, convey.ShouldEqual, 5)          // From defaults
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("VISIONTAGS_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("VISIONTAGS_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("VISIONTAGS_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr is required")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the store name and log settings differ in case", func() {
			_ = os.Setenv("VISIONTAGS_STORE", "MEMORY")
			_ = os.Setenv("VISIONTAGS_LOG_LEVEL", "Debug")
			_ = os.Setenv("VISIONTAGS_LOG_FORMAT", "JSON")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then they are normalized", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})

		convey.Convey("When max_image_pixels is set from the environment", func() {
			_ = os.Setenv("VISIONTAGS_MAX_IMAGE_PIXELS", "4096")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the cap is applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.MaxImagePixels, convey.ShouldEqual, 4096)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				if name := kv[:i]; len(name) > len(config.EnvPrefix) && name[:len(config.EnvPrefix)] == config.EnvPrefix {
					_ = os.Unsetenv(name)
				}
				break
			}
		}
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "visiontags-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
