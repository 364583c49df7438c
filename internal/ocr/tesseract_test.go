package ocr

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_SplitLanguages(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"eng", "hin"}, splitLanguages("eng+hin"))
	assert.Equal(t, []string{"eng"}, splitLanguages(" eng + "))
	assert.Equal(t, []string{"eng"}, splitLanguages(""))
}

func blankFrame() image.Image {
	frame := image.NewRGBA(image.Rect(0, 0, 64, 32))
	draw.Draw(frame, frame.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return frame
}

// Test_ExtractWaitsForBorrowedClient ensures an extraction blocks while
// every client is borrowed, and gives up once its context expires.
func Test_ExtractWaitsForBorrowedClient(t *testing.T) {
	t.Parallel()
	extractor := &Extractor{clients: make(chan *gosseract.Client, 1), size: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := extractor.Extract(ctx, blankFrame())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, len(extractor.clients), "no client should be returned that was never borrowed")
	assert.NoError(t, extractor.Close())
}

func Test_ExtractorReturnsClientsToPool(t *testing.T) {
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract is not installed")
	}

	extractor, err := NewExtractor(Config{Languages: "eng"}, 2)
	require.NoError(t, err)
	require.Equal(t, 2, len(extractor.clients))

	wg := sync.WaitGroup{}
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			text, err := extractor.Extract(ctx, blankFrame())
			assert.NoError(t, err)
			assert.Empty(t, strings.TrimSpace(text))
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, len(extractor.clients), "every borrowed client should be returned")
	require.NoError(t, extractor.Close())
	assert.Zero(t, len(extractor.clients), "close should release every client")
}
