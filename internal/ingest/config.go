package ingest

import "github.com/ankit-pn/video-ocr-service/internal/task"

// Config contains configuration options that control which
// files are detected and how they are keyed in the store.
type Config struct {
	// The path to the directory the service should monitor
	// for new videos. Sub-directories are monitored too.
	Path string `yaml:"path" env:"VIDEOS_DIR" env-default:"/app/videos" validate:"required"`

	// File extensions (including the leading dot) which are
	// eligible for processing. Matching is case-insensitive.
	Extensions []string `yaml:"extensions" env:"VIDEO_EXTENSIONS" env-separator:"," env-default:".mp4" validate:"min=1,dive,startswith=."`

	// Controls how a video's store key is derived from its path.
	KeyStrategy task.KeyStrategy `yaml:"key_strategy" env:"KEY_STRATEGY" env-default:"basename" validate:"oneof=basename relpath"`
}
