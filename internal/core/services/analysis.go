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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/fencing-judge/internal/core/commands"
	"github.com/jaycherian/fencing-judge/internal/core/cor"
	"github.com/jaycherian/fencing-judge/internal/core/model"
)

// AnalysisService is the entry point for analyzing a stored video. It maps
// the identifier used by the HTTP layer to a file, runs the analysis
// workflow in a fresh chain context and turns the chain's recorded errors
// back into a single Go error.
//
// The service holds no per-request state and is safe for concurrent use as
// long as the workflow is.
type AnalysisService struct {
	store    *VideoStore
	workflow cor.Command
}

// NewAnalysisService creates the service.
//
// Inputs:
//   - store: The store the identifiers are resolved against.
//   - workflow: The chain to run, normally a *workflow.VideoAnalysisWorkflow.
//     It must read commands.VideoPathParam and write commands.AnalysisParam.
//
// Outputs:
//   - *AnalysisService: The initialized service.
func NewAnalysisService(store *VideoStore, workflow cor.Command) *AnalysisService {
	return &AnalysisService{store: store, workflow: workflow}
}

// Analyze runs a full analysis of the stored video filename. An unknown
// filename fails with model.ErrNotFound before any inference is attempted.
// Every call runs inference again; results are not cached.
func (s *AnalysisService) Analyze(ctx context.Context, filename string) (*model.VideoAnalysis, error) {
	ctx, span := otel.Tracer("analysis-service").Start(ctx, "analyze")
	defer span.End()
	span.SetAttributes(attribute.String("video.filename", filename))

	path, err := s.store.Resolve(filename)
	if err != nil {
		span.SetStatus(codes.Error, "video not found")
		return nil, err
	}

	chCtx := cor.NewContext(ctx, nil)
	chCtx.Add(commands.VideoPathParam, path)

	s.workflow.Execute(chCtx)

	analysis, _ := chCtx.Get(commands.AnalysisParam).(*model.VideoAnalysis)
	if err := chCtx.Err(); err != nil {
		if analysis != nil {
			slog.WarnContext(ctx, "analysis failed", "filename", filename, "raw_text", analysis.RawAIResponse["raw_text"], "error", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis failed")
		return nil, err
	}
	if analysis == nil {
		return nil, fmt.Errorf("%s: workflow produced no analysis", filename)
	}

	span.SetAttributes(attribute.Int("analysis.actions", len(analysis.Actions)))
	slog.InfoContext(ctx, "analysis complete", "filename", filename, "actions", len(analysis.Actions), "duration", analysis.Duration)
	return analysis, nil
}
