package task

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	"github.com/ankit-pn/video-ocr-service/internal/stats"
	"github.com/ankit-pn/video-ocr-service/pkg/logger"
)

var log = logger.Get("VideoTask")

const DefaultSampleStride = 10 * time.Second

// MaxVideoDuration is the longest duration a video may report. Anything
// longer is treated as corrupt metadata rather than sampled.
const MaxVideoDuration = 7 * 24 * time.Hour

type (
	// ResultStore is the key-value store OCR results are persisted to. The
	// presence of a key is the only signal used to skip a video.
	ResultStore interface {
		Exists(ctx context.Context, key string) (bool, error)
		Set(ctx context.Context, key string, value string) error
	}

	// FrameSampler opens videos for frame-by-frame sampling.
	FrameSampler interface {
		Open(ctx context.Context, path string) (Video, error)
	}

	// Video is an opened video. FrameAt returns false if no frame could be
	// decoded at the timestamp given.
	Video interface {
		FrameRate() float64
		FrameCount() int64
		FrameAt(ctx context.Context, ts time.Duration) (image.Image, bool)
		Close() error
	}

	// TextExtractor recognises the text contained in a single frame.
	TextExtractor interface {
		Extract(ctx context.Context, frame image.Image) (string, error)
	}

	// Processor runs the end-to-end pipeline for a single video: dedup check,
	// frame sampling, text extraction and storage of the result.
	Processor struct {
		store     ResultStore
		sampler   FrameSampler
		extractor TextExtractor
		counters  *stats.Counters
		stride    time.Duration
	}
)

func NewProcessor(store ResultStore, sampler FrameSampler, extractor TextExtractor, counters *stats.Counters, stride time.Duration) *Processor {
	if stride <= 0 {
		stride = DefaultSampleStride
	}

	return &Processor{
		store:     store,
		sampler:   sampler,
		extractor: extractor,
		counters:  counters,
		stride:    stride,
	}
}

// Process runs the task described by the descriptor and classifies the
// result. Process never panics; any panic raised by a collaborator is
// recovered and reported as an UnexpectedFailure.
func (processor *Processor) Process(ctx context.Context, d Descriptor) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Emit(logger.ERROR, "Recovered panic while processing %s: %v\n", d, r)
			outcome = failed(UnexpectedFailure, fmt.Errorf("panic: %v", r), outcome.Frames)
		}
	}()

	if exists, err := processor.store.Exists(ctx, d.Key); err != nil {
		log.Emit(logger.WARNING, "Existence check for %s failed, processing anyway: %v\n", d, err)
	} else if exists {
		log.Emit(logger.DEBUG, "Video %s has already been processed\n", d)
		return Outcome{Kind: Skipped}
	}

	log.Emit(logger.NEW, "Processing video %s\n", d)
	text, frames, err := processor.extractText(ctx, d.Path)
	if err != nil {
		log.Emit(logger.ERROR, "Error processing %s: %v\n", d, err)
		var failure Failure
		if errors.As(err, &failure) {
			return Outcome{Kind: Failed, Reason: failure, Frames: frames}
		}

		return failed(UnexpectedFailure, err, frames)
	}

	if err := processor.store.Set(ctx, d.Key, text); err != nil {
		log.Emit(logger.ERROR, "Failed to post OCR data for %s: %v\n", d, err)
		return failed(StoreFailure, err, frames)
	}

	processor.counters.IncrementProcessed()
	log.Emit(logger.SUCCESS, "OCR data for %s stored (%d frames sampled)\n", d, frames)
	return Outcome{Kind: Stored, Frames: frames}
}

// extractText samples the video every stride, running OCR over every frame
// that could be decoded. Frames that cannot be read are skipped.
func (processor *Processor) extractText(ctx context.Context, path string) (string, int, error) {
	video, err := processor.sampler.Open(ctx, path)
	if err != nil {
		return "", 0, newFailure(DecodeFailure, fmt.Errorf("failed to open video: %w", err))
	}
	defer video.Close()

	duration, err := videoDuration(video)
	if err != nil {
		return "", 0, newFailure(DecodeFailure, err)
	}

	var builder strings.Builder
	frames := 0
	for _, ts := range SampleTimestamps(duration, processor.stride) {
		if err := ctx.Err(); err != nil {
			return "", frames, newFailure(UnexpectedFailure, err)
		}

		frame, ok := video.FrameAt(ctx, ts)
		if !ok {
			log.Emit(logger.VERBOSE, "No frame could be read at %v in %s\n", ts, path)
			continue
		}

		frames++
		text, err := processor.extractor.Extract(ctx, frame)
		if err != nil {
			return "", frames, newFailure(ExtractFailure, fmt.Errorf("text extraction at %v failed: %w", ts, err))
		}

		builder.WriteString(text)
		builder.WriteString(" ")
	}

	return strings.TrimSpace(builder.String()), frames, nil
}

// videoDuration derives the duration of the video from its reported
// frame count and frame rate.
func videoDuration(video Video) (time.Duration, error) {
	fps := video.FrameRate()
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		return 0, ErrInvalidFrameRate
	}

	count := video.FrameCount()
	if count < 0 {
		return 0, ErrInvalidFrameCount
	}

	seconds := float64(count) / fps
	if seconds > MaxVideoDuration.Seconds() {
		return 0, ErrInvalidDuration
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// SampleTimestamps returns every sample point from zero up to and including
// the duration, stepping by stride. A video of duration D yields
// floor(D/stride)+1 timestamps.
func SampleTimestamps(duration time.Duration, stride time.Duration) []time.Duration {
	if duration < 0 || stride <= 0 {
		return nil
	}

	count := int(duration/stride) + 1
	timestamps := make([]time.Duration, 0, count)
	for i := 0; i < count; i++ {
		timestamps = append(timestamps, time.Duration(i)*stride)
	}

	return timestamps
}
