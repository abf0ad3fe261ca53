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

package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/jaycherian/fencing-judge/internal/core/model"
	"github.com/jaycherian/fencing-judge/internal/video"
)

// FrameSampler writes the frames at given timestamps to the frames directory.
// A timestamp maps to frame floor(ts * fps) of the video.
type FrameSampler struct {
	decoder   video.Decoder
	framesDir string
}

func NewFrameSampler(decoder video.Decoder, framesDir string) *FrameSampler {
	return &FrameSampler{decoder: decoder, framesDir: framesDir}
}

// FramePath returns the artifact path for a frame index. Paths are stable so
// sampling the same frame twice overwrites the same file.
func (s *FrameSampler) FramePath(videoPath string, index int) string {
	return filepath.Join(s.framesDir, fmt.Sprintf("%s_frame_%d.jpg", model.BaseName(videoPath), index))
}

// Sample extracts one frame per timestamp, in the order given. Timestamps
// past the last frame, negative ones and frames that fail to decode are
// logged and reported in Skipped. Only failing to open the video is an error.
func (s *FrameSampler) Sample(ctx context.Context, path string, timestamps []float64) (*model.FrameSample, error) {
	handle, err := s.decoder.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close decode handle", "path", path, "error", err)
		}
	}()

	props := handle.Properties()
	out := model.NewFrameSample()
	for _, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if ts < 0 || math.IsNaN(ts) || math.IsInf(ts, 0) {
			slog.WarnContext(ctx, "skipping invalid timestamp", "path", path, "timestamp", ts)
			out.Skipped = append(out.Skipped, ts)
			continue
		}

		position := math.Floor(ts * props.FPS)
		if position >= float64(props.FrameCount) {
			slog.InfoContext(ctx, "timestamp beyond last frame", "path", path, "timestamp", ts, "frame", position, "frame_count", props.FrameCount)
			out.Skipped = append(out.Skipped, ts)
			continue
		}
		index := int(position)

		dest := s.FramePath(path, index)
		if err := handle.ExtractFrame(ctx, index, dest); err != nil {
			slog.WarnContext(ctx, "failed to extract frame", "path", path, "timestamp", ts, "frame", index, "error", err)
			out.Skipped = append(out.Skipped, ts)
			continue
		}
		out.Frames[ts] = dest
	}
	return out, nil
}
