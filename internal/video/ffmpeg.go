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

package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"go.mau.fi/util/ffmpeg"

	"github.com/jaycherian/fencing-judge/internal/core/model"
)

// JPEGQuality is the ffmpeg -q:v value used for frame artifacts (2 is near lossless, 31 worst).
const JPEGQuality = "2"

var (
	errHandleClosed   = errors.New("decode handle is closed")
	errProbeMissing   = errors.New("ffprobe is not available")
	errConvertMissing = errors.New("ffmpeg is not available")
)

// FFmpegDecoder opens handles by probing files with ffprobe and extracts
// frames with ffmpeg. Both binaries are located once, when the decoder is
// created, and shared by every handle in the process.
type FFmpegDecoder struct{}

// NewFFmpegDecoder points the ffmpeg helpers at the given executables. Bare
// names are resolved against PATH; an empty or unresolvable value keeps the
// binary found on PATH at startup.
func NewFFmpegDecoder(ffprobePath string, ffmpegPath string) *FFmpegDecoder {
	if p := resolveBinary(ffprobePath); p != "" {
		ffmpeg.SetProbePath(p)
	}
	if p := resolveBinary(ffmpegPath); p != "" {
		ffmpeg.SetPath(p)
	}
	if !ffmpeg.ProbeSupported() || !ffmpeg.Supported() {
		slog.Warn("ffmpeg tools missing, videos will be reported unreadable",
			"ffprobe", ffmpeg.ProbeSupported(), "ffmpeg", ffmpeg.Supported())
	}
	return &FFmpegDecoder{}
}

func resolveBinary(name string) string {
	if name == "" {
		return ""
	}
	p, err := exec.LookPath(name)
	if err != nil {
		slog.Warn("configured binary not found", "binary", name, "error", err)
		return ""
	}
	return p
}

// withCapturedLog routes the warnings the ffmpeg helpers write to the context
// logger into a buffer so they can be attached to the returned error.
func withCapturedLog(ctx context.Context) (context.Context, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).Level(zerolog.WarnLevel)
	return logger.WithContext(ctx), buf
}

func (d *FFmpegDecoder) Open(ctx context.Context, path string) (Handle, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, model.ErrFileNotFound)
		}
		return nil, fmt.Errorf("%s: %w: %v", path, model.ErrUnreadable, err)
	}
	if !ffmpeg.ProbeSupported() {
		return nil, fmt.Errorf("%s: %w: %v", path, model.ErrUnreadable, errProbeMissing)
	}

	probeCtx, stderr := withCapturedLog(ctx)
	result, err := ffmpeg.Probe(probeCtx, path)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w: %v: %s", path, model.ErrUnreadable, err, strings.TrimSpace(stderr.String()))
	}

	props, err := PropertiesFromProbe(result)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w: %v", path, model.ErrUnreadable, err)
	}
	return &ffmpegHandle{path: path, props: props}, nil
}

// PropertiesFromProbe reads the first video stream of an ffprobe result.
//
// The frame rate is taken from avg_frame_rate, which for variable frame rate
// sources is the real average, and falls back to r_frame_rate. When the
// container does not record a frame count it is estimated as
// round(duration * fps), using the stream duration or else the format
// duration.
func PropertiesFromProbe(result *ffmpeg.ProbeResult) (Properties, error) {
	if result == nil {
		return Properties{}, errors.New("empty ffprobe result")
	}
	for _, s := range result.Streams {
		if s == nil || s.CodecType != "video" {
			continue
		}
		props := Properties{Width: s.Width, Height: s.Height}

		props.FPS = parseFrameRate(s.AvgFrameRate)
		if props.FPS <= 0 {
			props.FPS = parseFrameRate(s.RFrameRate)
		}

		props.FrameCount = s.NumberOfFrames
		if props.FrameCount <= 0 {
			props.FrameCount = 0
			duration := s.Duration
			if duration <= 0 && result.Format != nil {
				duration = result.Format.Duration
			}
			if duration > 0 && props.FPS > 0 {
				props.FrameCount = int(math.Round(duration * props.FPS))
			}
		}
		return props, nil
	}
	return Properties{}, errors.New("no video stream found")
}

// parseFrameRate accepts ffprobe rationals such as "30000/1001" or plain
// numbers. Anything unparseable, including "0/0", yields 0.
func parseFrameRate(in string) float64 {
	in = strings.TrimSpace(in)
	if in == "" {
		return 0
	}
	num, den, found := strings.Cut(in, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

type ffmpegHandle struct {
	path   string
	props  Properties
	closed bool
}

func (h *ffmpegHandle) Properties() Properties {
	return h.props
}

// seekOffset returns the input seek position for a frame. It lands half a
// frame before the frame's timestamp so rounding never skips to the next one.
func (h *ffmpegHandle) seekOffset(index int) (string, error) {
	if index == 0 {
		return "0", nil
	}
	if h.props.FPS <= 0 {
		return "", fmt.Errorf("cannot seek to frame %d without a frame rate", index)
	}
	offset := math.Max(0, (float64(index)-0.5)/h.props.FPS)
	return strconv.FormatFloat(offset, 'f', 6, 64), nil
}

// ExtractFrame seeks to the frame and writes it to a temporary file next to
// dest, which is renamed over dest only once ffmpeg produced an image. A
// failed extraction leaves any previous artifact in place.
func (h *ffmpegHandle) ExtractFrame(ctx context.Context, index int, dest string) error {
	if h.closed {
		return errHandleClosed
	}
	if index < 0 {
		return fmt.Errorf("invalid frame index %d", index)
	}
	if !ffmpeg.Supported() {
		return errConvertMissing
	}
	offset, err := h.seekOffset(index)
	if err != nil {
		return err
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create frame directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".frame-*"+filepath.Ext(dest))
	if err != nil {
		return fmt.Errorf("failed to create temporary frame file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	convertCtx, stderr := withCapturedLog(ctx)
	err = ffmpeg.ConvertPathWithDestination(convertCtx, h.path, tmpPath,
		[]string{"-ss", offset},
		[]string{"-y", "-frames:v", "1", "-q:v", JPEGQuality},
		false,
	)
	if err != nil {
		return fmt.Errorf("ffmpeg frame %d of %s: %w: %s", index, h.path, err, strings.TrimSpace(stderr.String()))
	}

	// ffmpeg exits cleanly without writing anything when the seek lands past the last frame.
	if info, err := os.Stat(tmpPath); err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no image for frame %d of %s", index, h.path)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move frame into %s: %w", dest, err)
	}
	return nil
}

func (h *ffmpegHandle) Close() error {
	h.closed = true
	return nil
}
