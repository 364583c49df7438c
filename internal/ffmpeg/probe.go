package ffmpeg

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
)

var ErrNoVideoStream = errors.New("file contains no video stream")

type (
	// streamInfo holds the subset of ffprobe stream information
	// needed to sample a video.
	streamInfo struct {
		codecType    string
		avgFrameRate string
		duration     string
		nbFrames     string
	}

	// VideoInfo describes the primary video stream of a file.
	VideoInfo struct {
		FrameRate  float64
		FrameCount int64
		Duration   float64
	}
)

// ProbeFile runs ffprobe against the file at the path given.
func ProbeFile(path string, config Config) (transcoder.Metadata, error) {
	cfg := ffmpeg.Config{FfprobeBinPath: config.FfprobeBinPath, FfmpegBinPath: config.FfmpegBinPath}
	transcoder := ffmpeg.New(&cfg).Input(path)
	metadata, err := transcoder.GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to extract file metadata information using ffprobe: %s", err.Error())
	}

	return metadata, nil
}

// Describe extracts the frame rate and frame count of the first video
// stream in the metadata provided.
func Describe(metadata transcoder.Metadata) (VideoInfo, error) {
	streams := make([]streamInfo, 0)
	for _, stream := range metadata.GetStreams() {
		streams = append(streams, streamInfo{
			codecType:    stream.GetCodecType(),
			avgFrameRate: stream.GetAvgFrameRate(),
			duration:     stream.GetDuration(),
			nbFrames:     stream.GetNbFrames(),
		})
	}

	return describeStreams(streams, metadata.GetFormat().GetDuration())
}

// describeStreams computes the VideoInfo for the first video stream. The
// frame count reported by the stream is used when present, otherwise it is
// estimated from the duration. The stream duration is preferred, falling back
// to the container duration as not all containers report a per-stream duration.
func describeStreams(streams []streamInfo, formatDuration string) (VideoInfo, error) {
	for _, stream := range streams {
		if stream.codecType != "video" {
			continue
		}

		fps, err := parseRational(stream.avgFrameRate)
		if err != nil {
			return VideoInfo{}, fmt.Errorf("invalid frame rate %q: %w", stream.avgFrameRate, err)
		}

		duration, durationErr := strconv.ParseFloat(strings.TrimSpace(stream.duration), 64)
		if durationErr != nil {
			duration, durationErr = strconv.ParseFloat(strings.TrimSpace(formatDuration), 64)
		}

		if frames, err := strconv.ParseInt(strings.TrimSpace(stream.nbFrames), 10, 64); err == nil && frames > 0 {
			if durationErr != nil && fps > 0 {
				duration = float64(frames) / fps
			}

			return VideoInfo{FrameRate: fps, FrameCount: frames, Duration: duration}, nil
		}

		if durationErr != nil {
			return VideoInfo{}, fmt.Errorf("video reports no usable duration: %w", durationErr)
		}

		return VideoInfo{
			FrameRate:  fps,
			FrameCount: int64(math.Round(duration * fps)),
			Duration:   duration,
		}, nil
	}

	return VideoInfo{}, ErrNoVideoStream
}

// parseRational parses ffprobe rates such as "30000/1001" or "25". A zero
// denominator (reported by ffprobe as "0/0") yields a rate of zero.
func parseRational(value string) (float64, error) {
	num, den, found := strings.Cut(strings.TrimSpace(value), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	if !found {
		return n, nil
	}

	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, nil
	}

	return n / d, nil
}
