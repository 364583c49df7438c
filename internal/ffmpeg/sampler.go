package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/ankit-pn/video-ocr-service/internal/task"
	"github.com/ankit-pn/video-ocr-service/pkg/logger"
)

var log = logger.Get("FFmpeg")

type (
	Config struct {
		FfmpegBinPath  string `yaml:"ffmpeg_binary" env:"FFMPEG_BIN" env-default:"ffmpeg"`
		FfprobeBinPath string `yaml:"ffprobe_binary" env:"FFPROBE_BIN" env-default:"ffprobe"`
	}

	// Sampler opens videos using ffprobe, and grabs individual frames
	// by seeking with the ffmpeg binary.
	Sampler struct {
		config Config
	}

	video struct {
		path   string
		info   VideoInfo
		config Config
	}
)

func NewSampler(config Config) *Sampler {
	if config.FfmpegBinPath == "" {
		config.FfmpegBinPath = "ffmpeg"
	}
	if config.FfprobeBinPath == "" {
		config.FfprobeBinPath = "ffprobe"
	}

	return &Sampler{config: config}
}

// Open probes the video at the path given. An error is returned if the file
// cannot be probed or contains no video stream.
func (sampler *Sampler) Open(ctx context.Context, path string) (task.Video, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	metadata, err := ProbeFile(path, sampler.config)
	if err != nil {
		return nil, err
	}

	info, err := Describe(metadata)
	if err != nil {
		return nil, err
	}

	log.Emit(logger.VERBOSE, "Opened %s (%.3f fps, %d frames)\n", path, info.FrameRate, info.FrameCount)
	return &video{path: path, info: info, config: sampler.config}, nil
}

func (v *video) FrameRate() float64 { return v.info.FrameRate }
func (v *video) FrameCount() int64  { return v.info.FrameCount }
func (v *video) Close() error       { return nil }

// FrameAt seeks to the timestamp and decodes a single frame. False is
// returned if ffmpeg produced no frame, which happens when seeking to
// (or past) the very end of the stream.
func (v *video) FrameAt(ctx context.Context, ts time.Duration) (image.Image, bool) {
	cmd := exec.CommandContext(ctx, v.config.FfmpegBinPath,
		"-v", "error",
		"-ss", strconv.FormatFloat(ts.Seconds(), 'f', 3, 64),
		"-i", v.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		log.Emit(logger.DEBUG, "ffmpeg failed to read frame at %v from %s: %v (%s)\n", ts, v.path, err, stderr.String())
		return nil, false
	}

	if stdout.Len() == 0 {
		return nil, false
	}

	frame, err := png.Decode(&stdout)
	if err != nil {
		log.Emit(logger.DEBUG, "Frame at %v from %s could not be decoded: %v\n", ts, v.path, err)
		return nil, false
	}

	return frame, true
}

func (v *video) String() string {
	return fmt.Sprintf("%s@%.3ffps", v.path, v.info.FrameRate)
}
