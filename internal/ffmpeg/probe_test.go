package ffmpeg

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseRational(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected float64
		err      bool
	}{
		{"25", 25, false},
		{"25/1", 25, false},
		{"30000/1001", 29.97002997002997, false},
		{"0/0", 0, false},
		{"", 0, true},
		{"abc/1", 0, true},
		{"30/x", 0, true},
	}

	for _, test := range tests {
		value, err := parseRational(test.input)
		if test.err {
			assert.Error(t, err, test.input)
			continue
		}

		assert.NoError(t, err, test.input)
		assert.InDelta(t, test.expected, value, 1e-9, test.input)
	}
}

func Test_DescribeStreamsUsesFirstVideoStream(t *testing.T) {
	t.Parallel()
	streams := []streamInfo{
		{codecType: "audio", avgFrameRate: "0/0", duration: "60.0"},
		{codecType: "video", avgFrameRate: "30/1", duration: "25.5"},
		{codecType: "video", avgFrameRate: "60/1", duration: "10"},
	}

	info, err := describeStreams(streams, "61.0")
	require.NoError(t, err)
	assert.Equal(t, 30.0, info.FrameRate)
	assert.EqualValues(t, 765, info.FrameCount)
	assert.Equal(t, 25.5, info.Duration)
}

func Test_DescribeStreamsFallsBackToFormatDuration(t *testing.T) {
	t.Parallel()
	info, err := describeStreams([]streamInfo{{codecType: "video", avgFrameRate: "25/1", duration: "N/A"}}, "12.0")
	require.NoError(t, err)
	assert.EqualValues(t, 300, info.FrameCount)

	_, err = describeStreams([]streamInfo{{codecType: "video", avgFrameRate: "25/1"}}, "")
	assert.Error(t, err)
}

func Test_DescribeStreamsPrefersReportedFrameCount(t *testing.T) {
	t.Parallel()
	info, err := describeStreams([]streamInfo{{codecType: "video", avgFrameRate: "30/1", duration: "10.0", nbFrames: "297"}}, "10.5")
	require.NoError(t, err)
	assert.EqualValues(t, 297, info.FrameCount)
	assert.Equal(t, 10.0, info.Duration)

	// Containers such as MKV report frames without a stream duration
	info, err = describeStreams([]streamInfo{{codecType: "video", avgFrameRate: "25/1", duration: "N/A", nbFrames: "250"}}, "")
	require.NoError(t, err)
	assert.EqualValues(t, 250, info.FrameCount)
	assert.Equal(t, 10.0, info.Duration)

	// An absent or zero count falls back to the estimate
	info, err = describeStreams([]streamInfo{{codecType: "video", avgFrameRate: "25/1", duration: "4", nbFrames: "0"}}, "")
	require.NoError(t, err)
	assert.EqualValues(t, 100, info.FrameCount)
}

func Test_DescribeStreamsWithoutVideo(t *testing.T) {
	t.Parallel()
	_, err := describeStreams([]streamInfo{{codecType: "audio", avgFrameRate: "0/0", duration: "3"}}, "3")
	assert.ErrorIs(t, err, ErrNoVideoStream)
}

func Test_OpenMissingFile(t *testing.T) {
	t.Parallel()
	_, err := NewSampler(Config{}).Open(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	assert.Error(t, err)
}
