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

// Package workflow defines the orchestrations that combine commands into
// pipelines, plus the worker pool the background pipeline runs on.
//
// Two chains exist. The analysis chain runs inside a request:
//
//	extract-video-metadata -> encode-video -> generate-fencing-actions
//	  -> convert-fencing-actions [-> sample-action-frames]
//
// The ingest chain runs on the BackgroundRunner after each upload:
//
//	extract-video-metadata [-> archive-video]
package workflow

import (
	"fmt"
	"text/template"
	"time"

	"github.com/jaycherian/fencing-judge/internal/cloud"
	"github.com/jaycherian/fencing-judge/internal/core/commands"
	"github.com/jaycherian/fencing-judge/internal/core/cor"
)

// VideoAnalysisWorkflow turns a stored video into a model.VideoAnalysis. The
// caller puts the video path under commands.VideoPathParam; on return the
// analysis, if one was built, is under commands.AnalysisParam.
type VideoAnalysisWorkflow struct {
	cor.BaseCommand
	config         *cloud.Config
	genaiModel     *cloud.QuotaAwareGenerativeAIModel
	metadata       commands.MetadataReader
	frames         commands.FrameReader // Nil unless action frames are sampled.
	actionTemplate *template.Template
	chain          cor.Chain
}

func (v *VideoAnalysisWorkflow) Execute(context cor.Context) {
	v.chain.Execute(context)
}

// IsExecutable requires the video path rather than the default input.
func (v *VideoAnalysisWorkflow) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil && context.Get(commands.VideoPathParam) != nil
}

// Steps returns the command names in execution order.
func (v *VideoAnalysisWorkflow) Steps() []string {
	return v.chain.(*cor.BaseChain).Commands()
}

func (v *VideoAnalysisWorkflow) initializeChain() {
	out := cor.NewBaseChain(v.GetName())

	// Duration bounds the reported timestamps, so metadata comes first.
	out.AddCommand(commands.NewVideoMetadataExtractor("extract-video-metadata", v.metadata))
	out.AddCommand(commands.NewVideoEncoder("encode-video", v.config.Analysis.MaxInlineBytes))
	out.AddCommand(commands.NewActionAnalysisCreator(
		"generate-fencing-actions",
		v.genaiModel,
		v.actionTemplate,
		time.Duration(v.config.Analysis.TimeoutInSeconds)*time.Second))
	out.AddCommand(commands.NewActionJsonToStruct("convert-fencing-actions"))

	if v.frames != nil {
		out.AddCommand(commands.NewActionFrameSampler("sample-action-frames", v.frames))
	}
	v.chain = out
}

// NewVideoAnalysisWorkflow builds the analysis chain.
//
// Inputs:
//   - config: Supplies the prompt template, the inference timeout, the inline
//     size limit and the analysis.sample_action_frames switch.
//   - genaiModel: The model to query. A nil model is a configuration error.
//   - metadata: Reads the duration the actions are checked against.
//   - frames: Samples frames at the action timestamps. May be nil, in which
//     case no frames are sampled regardless of configuration.
//
// Outputs:
//   - *VideoAnalysisWorkflow: The workflow, ready to Execute.
//   - error: When the model is missing or the prompt template does not parse.
func NewVideoAnalysisWorkflow(
	config *cloud.Config,
	genaiModel *cloud.QuotaAwareGenerativeAIModel,
	metadata commands.MetadataReader,
	frames commands.FrameReader) (*VideoAnalysisWorkflow, error) {

	if genaiModel == nil {
		return nil, fmt.Errorf("no agent model configured for %q", config.Analysis.AgentModel)
	}
	actionTemplate, err := template.New("action-template").Parse(config.PromptTemplates.ActionPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse action prompt template: %w", err)
	}

	workflow := &VideoAnalysisWorkflow{
		BaseCommand:    *cor.NewBaseCommand("video-analysis-workflow"),
		config:         config,
		genaiModel:     genaiModel,
		metadata:       metadata,
		actionTemplate: actionTemplate,
	}
	if config.Analysis.SampleActionFrames {
		workflow.frames = frames
	}
	workflow.initializeChain()
	return workflow, nil
}
