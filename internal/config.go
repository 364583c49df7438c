package internal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ankit-pn/video-ocr-service/internal/dispatch"
	"github.com/ankit-pn/video-ocr-service/internal/ffmpeg"
	"github.com/ankit-pn/video-ocr-service/internal/ingest"
	"github.com/ankit-pn/video-ocr-service/internal/metrics"
	"github.com/ankit-pn/video-ocr-service/internal/notification"
	"github.com/ankit-pn/video-ocr-service/internal/ocr"
	"github.com/ankit-pn/video-ocr-service/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

// ServiceConfig is the struct used to contain the
// various user config supplied by file and/or the
// environment.
type ServiceConfig struct {
	Ingest       ingest.Config       `yaml:"ingest"`
	Dispatch     dispatch.Config     `yaml:"dispatch"`
	Store        store.Config        `yaml:"store"`
	Notification notification.Config `yaml:"notification"`
	OCR          ocr.Config          `yaml:"ocr"`
	Ffmpeg       ffmpeg.Config       `yaml:"ffmpeg"`
	Metrics      metrics.Config      `yaml:"metrics"`

	// Seconds between the sample points of a video.
	SampleStrideSeconds int    `yaml:"sample_stride_seconds" env:"SAMPLE_STRIDE_SECONDS" env-default:"10" validate:"gt=0"`
	LogLevel            string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=verbose debug info warn warning error fatal"`
}

// LoadConfig reads the configuration from the YAML file at the path given,
// if any, and then from the environment which takes precedence. The result
// is validated before being returned.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	config := &ServiceConfig{}
	if configPath != "" {
		expanded, err := homedir.Expand(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path %s: %w", configPath, err)
		}

		if err := cleanenv.ReadConfig(expanded, config); err != nil {
			return nil, fmt.Errorf("failed to load configuration from %s - %v", expanded, err.Error())
		}
	} else if err := cleanenv.ReadEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment - %v", err.Error())
	}

	if err := config.normalise(); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SampleStride returns the configured stride between sample points.
func (config *ServiceConfig) SampleStride() time.Duration {
	return time.Duration(config.SampleStrideSeconds) * time.Second
}

// normalise expands any home-relative paths in the config.
func (config *ServiceConfig) normalise() error {
	path, err := homedir.Expand(config.Ingest.Path)
	if err != nil {
		return fmt.Errorf("failed to expand videos path %s: %w", config.Ingest.Path, err)
	}
	config.Ingest.Path = path

	for _, bin := range []*string{&config.Ffmpeg.FfmpegBinPath, &config.Ffmpeg.FfprobeBinPath} {
		if expanded, err := homedir.Expand(*bin); err == nil {
			*bin = expanded
		}
	}

	return nil
}

// ConfigPathFromEnv returns the config file path named by the
// VIDEO_OCR_CONFIG environment variable, if the file exists.
func ConfigPathFromEnv() (string, error) {
	path := os.Getenv("VIDEO_OCR_CONFIG")
	if path == "" {
		return "", nil
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(expanded); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("config file %s does not exist", expanded)
	}

	return expanded, nil
}
