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

// ActionAnalysisCreator asks Gemini for the fencing actions in a video.
//
// Logic Flow:
//  1. Read the inline video part and the video metadata from the context.
//  2. Render the prompt template with the video duration and a one-shot
//     example of the expected JSON.
//  3. Send prompt and video to the rate limited model under a timeout,
//     retrying transient failures.
//  4. Store the raw text for the parsing step. Any failure, including the
//     timeout, is recorded as model.ErrUpstream.
package commands

import (
	"bytes"
	goctx "context"
	"encoding/json"
	"errors"
	"fmt"
	"text/template"
	"time"

	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"

	"github.com/jaycherian/fencing-judge/internal/cloud"
	"github.com/jaycherian/fencing-judge/internal/core/cor"
	"github.com/jaycherian/fencing-judge/internal/core/model"
)

// ActionAnalysisCreator is the command that sends a stored video to the
// generative model and records the model's raw answer. It does not interpret
// the answer; ActionJsonToStruct does that in the next step of the chain.
type ActionAnalysisCreator struct {
	cor.BaseCommand
	generativeAIModel        *cloud.QuotaAwareGenerativeAIModel // The rate-limited generative model client.
	template                 *template.Template                 // Prompt template.
	timeout                  time.Duration                      // Upper bound for the whole call including retries; 0 means none.
	geminiInputTokenCounter  metric.Int64Counter                // OTel counter for input tokens.
	geminiOutputTokenCounter metric.Int64Counter                // OTel counter for output tokens.
	geminiRetryCounter       metric.Int64Counter                // OTel counter for retries.
}

// NewActionAnalysisCreator is the constructor for the ActionAnalysisCreator command.
//
// Inputs:
//   - name: A string name for this command instance, also used to name its counters.
//   - generativeAIModel: The rate-limited wrapper for the generative model client.
//   - template: A parsed Go template for the prompt. See GenerateParams for its fields.
//   - timeout: The deadline for the call including retries; 0 disables it.
//
// Outputs:
//   - *ActionAnalysisCreator: The command, reading VideoContentParam and writing RawResponseParam.
func NewActionAnalysisCreator(
	name string,
	generativeAIModel *cloud.QuotaAwareGenerativeAIModel,
	template *template.Template,
	timeout time.Duration) *ActionAnalysisCreator {

	out := &ActionAnalysisCreator{
		BaseCommand:       *cor.NewBaseCommand(name),
		generativeAIModel: generativeAIModel,
		template:          template,
		timeout:           timeout,
	}
	out.InputParamName = VideoContentParam
	out.OutputParamName = RawResponseParam

	out.geminiInputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.input", out.GetName()))
	out.geminiOutputTokenCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.output", out.GetName()))
	out.geminiRetryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.token.retry", out.GetName()))
	return out
}

// GenerateParams returns the values the prompt template can reference:
// DURATION (seconds, formatted with two decimals) and EXAMPLE_JSON (a
// serialized model.ActionReport showing the expected shape).
func (t *ActionAnalysisCreator) GenerateParams(context cor.Context) map[string]interface{} {
	params := make(map[string]interface{})

	duration := 0.0
	if metadata, ok := context.Get(MetadataParam).(*model.VideoMetadata); ok && metadata != nil {
		duration = metadata.Duration
	}
	params["DURATION"] = fmt.Sprintf("%.2f", duration)

	exampleReport, _ := json.Marshal(model.GetExampleActionReport())
	params["EXAMPLE_JSON"] = string(exampleReport)
	return params
}

func (t *ActionAnalysisCreator) Execute(context cor.Context) {
	videoPart := context.Get(t.GetInputParam()).(*genai.Part)

	var buffer bytes.Buffer
	if err := t.template.Execute(&buffer, t.GenerateParams(context)); err != nil {
		t.Fail(context, fmt.Errorf("failed to execute prompt template: %w", err))
		return
	}

	contents := []*genai.Content{
		{Parts: []*genai.Part{
			{Text: buffer.String()},
			videoPart,
		},
			Role: "user"},
	}

	ctx := context.GetContext()
	if t.timeout > 0 {
		var cancel goctx.CancelFunc
		ctx, cancel = goctx.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	out, err := cloud.GenerateMultiModalResponse(ctx, t.geminiInputTokenCounter, t.geminiOutputTokenCounter, t.geminiRetryCounter, 0, t.generativeAIModel, contents)
	if err != nil {
		if errors.Is(ctx.Err(), goctx.DeadlineExceeded) {
			err = fmt.Errorf("no response within %s: %w", t.timeout, err)
		}
		t.Fail(context, fmt.Errorf("%w: %w", model.ErrUpstream, err))
		return
	}

	t.Succeed(context, out)
}
