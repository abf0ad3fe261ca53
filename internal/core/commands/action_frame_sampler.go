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
	"log/slog"

	"github.com/jaycherian/fencing-judge/internal/core/cor"
	"github.com/jaycherian/fencing-judge/internal/core/model"
)

// ActionFrameSampler saves the frame at each reported action. Sampling never
// fails the analysis; problems are logged and the analysis is returned
// without frames.
type ActionFrameSampler struct {
	cor.BaseCommand
	sampler FrameReader
}

func NewActionFrameSampler(name string, sampler FrameReader) *ActionFrameSampler {
	out := &ActionFrameSampler{BaseCommand: *cor.NewBaseCommand(name), sampler: sampler}
	out.InputParamName = AnalysisParam
	out.OutputParamName = AnalysisParam
	return out
}

func (a *ActionFrameSampler) Execute(context cor.Context) {
	analysis := context.Get(a.GetInputParam()).(*model.VideoAnalysis)
	path, _ := context.Get(VideoPathParam).(string)
	if len(analysis.Actions) == 0 {
		a.Succeed(context, analysis)
		return
	}

	timestamps := make([]float64, 0, len(analysis.Actions))
	for _, action := range analysis.Actions {
		timestamps = append(timestamps, action.Timestamp)
	}

	sample, err := a.sampler.Sample(context.GetContext(), path, timestamps)
	if err != nil {
		if a.GetErrorCounter() != nil {
			a.GetErrorCounter().Add(context.GetContext(), 1)
		}
		slog.WarnContext(context.GetContext(), "failed to sample action frames", "path", path, "error", err)
		a.Succeed(context, analysis)
		return
	}
	if len(sample.Skipped) > 0 {
		slog.InfoContext(context.GetContext(), "some action frames were skipped", "path", path, "skipped", sample.Skipped)
	}

	analysis.Frames = sample.FramesByLabel()
	a.Succeed(context, analysis)
}
