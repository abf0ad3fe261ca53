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

package commands

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaycherian/fencing-judge/internal/core/cor"
)

// VideoMetadataExtractor reads the stored video's metadata so later steps
// know its duration.
type VideoMetadataExtractor struct {
	cor.BaseCommand
	reader MetadataReader
}

// NewVideoMetadataExtractor reads VideoPathParam and writes MetadataParam.
func NewVideoMetadataExtractor(name string, reader MetadataReader) *VideoMetadataExtractor {
	out := &VideoMetadataExtractor{BaseCommand: *cor.NewBaseCommand(name), reader: reader}
	out.InputParamName = VideoPathParam
	out.OutputParamName = MetadataParam
	return out
}

func (v *VideoMetadataExtractor) Execute(context cor.Context) {
	path := context.Get(v.GetInputParam()).(string)

	metadata, err := v.reader.Extract(context.GetContext(), path)
	if err != nil {
		v.Fail(context, fmt.Errorf("failed to extract metadata: %w", err))
		return
	}

	trace.SpanFromContext(context.GetContext()).SetAttributes(
		attribute.Float64("video.fps", metadata.FPS),
		attribute.Int("video.frames", metadata.FrameCount),
		attribute.Float64("video.duration", metadata.Duration),
	)
	slog.InfoContext(context.GetContext(), "extracted video metadata",
		"file", metadata.Filename, "fps", metadata.FPS, "frames", metadata.FrameCount, "duration", metadata.Duration)
	v.Succeed(context, metadata)
}
