package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/faceid/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8001")
				convey.So(cfg.MatchThreshold, convey.ShouldEqual, 0.5)
				convey.So(cfg.AllowedImageFormats, convey.ShouldResemble, []string{"jpeg", "png"})
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("FACEID_ADDR", ":9090")
			_ = os.Setenv("FACEID_MATCH_THRESHOLD", "0.45")
			_ = os.Setenv("FACEID_REGISTRY_STALENESS", "2m")
			_ = os.Setenv("FACEID_JITTERS", "3")
			_ = os.Setenv("FACEID_ALLOWED_IMAGE_FORMATS", "jpeg,png,webp")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.MatchThreshold, convey.ShouldEqual, 0.45)
				convey.So(cfg.RegistryStaleness, convey.ShouldEqual, 2*time.Minute)
				convey.So(cfg.Jitters, convey.ShouldEqual, 3)
				convey.So(cfg.AllowedImageFormats, convey.ShouldResemble, []string{"jpeg", "png", "webp"})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":7070"
detection_model: cnn
blink_ear_threshold: 0.25
head_movement_threshold: 20
registry_staleness: 90s
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("FACEID_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.DetectionModel, convey.ShouldEqual, "cnn")
				convey.So(cfg.BlinkEARThreshold, convey.ShouldEqual, 0.25)
				convey.So(cfg.HeadMovementThreshold, convey.ShouldEqual, 20.0)
				convey.So(cfg.RegistryStaleness, convey.ShouldEqual, 90*time.Second)
				convey.So(cfg.EncodingModel, convey.ShouldEqual, "large")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile("addr: \":7070\"\njitters: 2\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("FACEID_CONFIG", tmpFile)
			_ = os.Setenv("FACEID_ADDR", ":6060")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
				convey.So(cfg.Jitters, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("FACEID_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("FACEID_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an out of range threshold", func() {
			_ = os.Setenv("FACEID_MATCH_THRESHOLD", "2")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("FACEID_JITTERS", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"FACEID_CONFIG",
		"FACEID_ADDR",
		"FACEID_MATCH_THRESHOLD",
		"FACEID_REGISTRY_STALENESS",
		"FACEID_JITTERS",
		"FACEID_ALLOWED_IMAGE_FORMATS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "faceid-config-*.yaml")
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
