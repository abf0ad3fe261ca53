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

// Package commands holds the cor.Command implementations the workflows are
// assembled from. Commands exchange values through the context keys below.
package commands

import (
	"context"

	"github.com/jaycherian/fencing-judge/internal/core/model"
)

// Context keys shared by the analysis and ingest workflows.
const (
	VideoPathParam    = "__video_path__"     // string: path of the stored video.
	MetadataParam     = "__video_metadata__" // *model.VideoMetadata
	VideoContentParam = "__video_content__"  // *genai.Part holding the inline video.
	RawResponseParam  = "__raw_response__"   // string: model output with fences removed.
	AnalysisParam     = "__analysis__"       // *model.VideoAnalysis
)

// MetadataReader is implemented by services.MetadataExtractor.
type MetadataReader interface {
	Extract(ctx context.Context, path string) (*model.VideoMetadata, error)
}

// FrameReader is implemented by services.FrameSampler.
type FrameReader interface {
	Sample(ctx context.Context, path string, timestamps []float64) (*model.FrameSample, error)
}
