// Package ocr recognises text in video frames using the Tesseract engine.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/ankit-pn/video-ocr-service/pkg/logger"
	"github.com/otiai10/gosseract/v2"
)

var log = logger.Get("OCR")

type (
	Config struct {
		// Tesseract language codes joined by '+', e.g. "eng+hin".
		Languages string `yaml:"languages" env:"OCR_LANGUAGES" env-default:"eng+hin" validate:"required"`
	}

	// Extractor runs OCR over frames using a fixed pool of Tesseract
	// clients. A client is not safe for concurrent use, so each
	// extraction borrows one exclusively.
	Extractor struct {
		clients chan *gosseract.Client
		size    int
	}
)

// NewExtractor creates an extractor with one client per concurrent caller
// expected, typically the number of workers.
func NewExtractor(config Config, size int) (*Extractor, error) {
	if size <= 0 {
		size = 1
	}

	languages := splitLanguages(config.Languages)
	extractor := &Extractor{clients: make(chan *gosseract.Client, size), size: size}
	for i := 0; i < size; i++ {
		client := gosseract.NewClient()
		if err := client.SetLanguage(languages...); err != nil {
			client.Close()
			extractor.Close()
			return nil, fmt.Errorf("failed to set OCR language %v: %w", languages, err)
		}
		if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
			client.Close()
			extractor.Close()
			return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
		}

		extractor.clients <- client
	}

	log.Emit(logger.INFO, "Initialised %d OCR clients (languages=%s)\n", size, strings.Join(languages, "+"))
	return extractor, nil
}

// Extract returns the text recognised in the frame given. It blocks until a
// client is available or the context is cancelled.
func (extractor *Extractor) Extract(ctx context.Context, frame image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}

	var client *gosseract.Client
	select {
	case client = <-extractor.clients:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { extractor.clients <- client }()

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to load frame into OCR engine: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("text recognition failed: %w", err)
	}

	return text, nil
}

// Close releases every client held by the pool. It must only be called
// once no extraction is in progress.
func (extractor *Extractor) Close() error {
	for {
		select {
		case client := <-extractor.clients:
			client.Close()
		default:
			return nil
		}
	}
}

func splitLanguages(languages string) []string {
	out := make([]string, 0)
	for _, lang := range strings.Split(languages, "+") {
		if lang = strings.TrimSpace(lang); lang != "" {
			out = append(out, lang)
		}
	}

	if len(out) == 0 {
		return []string{"eng"}
	}

	return out
}
