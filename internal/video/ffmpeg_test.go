// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package video_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/util/ffmpeg"

	"github.com/jaycherian/fencing-judge/internal/core/model"
	"github.com/jaycherian/fencing-judge/internal/video"
)

func videoStream(avg string, r string, frames int, duration float64) *ffmpeg.Stream {
	return &ffmpeg.Stream{
		CodecType:      "video",
		Width:          1280,
		Height:         720,
		AvgFrameRate:   avg,
		RFrameRate:     r,
		NumberOfFrames: frames,
		Duration:       duration,
	}
}

func TestPropertiesFromProbe(t *testing.T) {
	result := &ffmpeg.ProbeResult{
		Streams: []*ffmpeg.Stream{videoStream("30/1", "30/1", 90, 3)},
		Format:  &ffmpeg.Format{Duration: 3.01},
	}
	props, err := video.PropertiesFromProbe(result)
	require.NoError(t, err)
	assert.Equal(t, video.Properties{FPS: 30, FrameCount: 90, Width: 1280, Height: 720}, props)
}

func TestPropertiesFromProbeFrameRates(t *testing.T) {
	cases := []struct {
		name string
		avg  string
		r    string
		want float64
	}{
		{"ntsc", "30000/1001", "30000/1001", 30000.0 / 1001.0},
		// Variable frame rate: r_frame_rate is the timebase maximum.
		{"variable", "24/1", "90000/1", 24},
		{"average missing", "0/0", "25/1", 25},
		{"plain number", "25", "", 25},
		{"unparseable", "abc", "30/x", 0},
		{"empty", "", "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			props, err := video.PropertiesFromProbe(&ffmpeg.ProbeResult{
				Streams: []*ffmpeg.Stream{videoStream(tc.avg, tc.r, 10, 0)},
			})
			require.NoError(t, err)
			assert.InDelta(t, tc.want, props.FPS, 1e-9)
		})
	}
}

func TestPropertiesFromProbeEstimatesFrameCount(t *testing.T) {
	// webm containers usually omit nb_frames and the stream duration.
	result := &ffmpeg.ProbeResult{
		Streams: []*ffmpeg.Stream{
			{CodecType: "audio", Duration: 4},
			{CodecType: "video", Width: 640, Height: 360, AvgFrameRate: "25/1"},
		},
		Format: &ffmpeg.Format{Duration: 4},
	}
	props, err := video.PropertiesFromProbe(result)
	require.NoError(t, err)
	assert.Equal(t, 25.0, props.FPS)
	assert.Equal(t, 100, props.FrameCount)
	assert.Equal(t, 640, props.Width)

	result.Streams[1].AvgFrameRate = "0/0"
	props, err = video.PropertiesFromProbe(result)
	require.NoError(t, err)
	assert.Zero(t, props.FPS)
	assert.Zero(t, props.FrameCount)
}

func TestPropertiesFromProbeWithoutVideo(t *testing.T) {
	_, err := video.PropertiesFromProbe(&ffmpeg.ProbeResult{Streams: []*ffmpeg.Stream{{CodecType: "audio"}}})
	assert.Error(t, err)

	_, err = video.PropertiesFromProbe(nil)
	assert.Error(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	d := &video.FFmpegDecoder{}
	_, err := d.Open(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	assert.ErrorIs(t, err, model.ErrFileNotFound)
}

func TestOpenUnreadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not a video"), 0o644))

	// Without ffprobe the file cannot be probed either, so the result is the same.
	d := &video.FFmpegDecoder{}
	_, err := d.Open(context.Background(), path)
	assert.ErrorIs(t, err, model.ErrUnreadable)
}

// writeTestPattern renders a 3 second, 30 fps test pattern with ffmpeg.
func writeTestPattern(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if !ffmpeg.Supported() || !ffmpeg.ProbeSupported() {
		t.Skip("ffmpeg or ffprobe not installed")
	}

	path := filepath.Join(t.TempDir(), "pattern.mp4")
	err := ffmpeg.ConvertPathWithDestination(context.Background(),
		"testsrc=rate=30:duration=3:size=320x240", path,
		[]string{"-f", "lavfi"},
		[]string{"-c:v", "mpeg4", "-pix_fmt", "yuv420p"},
		false,
	)
	require.NoError(t, err)
	return path
}

func TestDecodeTestPattern(t *testing.T) {
	path := writeTestPattern(t)
	ctx := context.Background()

	d := video.NewFFmpegDecoder("ffprobe", "ffmpeg")
	h, err := d.Open(ctx, path)
	require.NoError(t, err)
	defer h.Close()

	props := h.Properties()
	assert.InDelta(t, 30.0, props.FPS, 1e-9)
	assert.Equal(t, 90, props.FrameCount)
	assert.Equal(t, 320, props.Width)
	assert.Equal(t, 240, props.Height)
	assert.InDelta(t, 3.0, float64(props.FrameCount)/props.FPS, 1e-9)

	outDir := t.TempDir()
	for _, index := range []int{0, 45, 89} {
		dest := filepath.Join(outDir, "frame.jpg")
		require.NoError(t, h.ExtractFrame(ctx, index, dest), "frame %d", index)

		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		require.Greater(t, len(data), 2)
		assert.Equal(t, []byte{0xFF, 0xD8}, data[:2], "frame %d is not a JPEG", index)
	}

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary frame files are cleaned up")
}

func TestExtractFramePastEndKeepsPreviousArtifact(t *testing.T) {
	path := writeTestPattern(t)
	ctx := context.Background()

	h, err := video.NewFFmpegDecoder("", "").Open(ctx, path)
	require.NoError(t, err)
	defer h.Close()

	dest := filepath.Join(t.TempDir(), "frames", "kept.jpg")
	require.NoError(t, h.ExtractFrame(ctx, 30, dest))
	before, err := os.ReadFile(dest)
	require.NoError(t, err)

	assert.Error(t, h.ExtractFrame(ctx, 500, dest))
	after, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestClosedHandleRejectsExtraction(t *testing.T) {
	path := writeTestPattern(t)

	h, err := (&video.FFmpegDecoder{}).Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Error(t, h.ExtractFrame(context.Background(), 0, filepath.Join(t.TempDir(), "out.jpg")))
}
