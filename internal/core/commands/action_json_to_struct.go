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

// This file defines the command that turns the model's text into a
// model.VideoAnalysis.
//
// Logic Flow:
//  1. Read the raw text written by ActionAnalysisCreator and the metadata
//     read at the start of the chain.
//  2. Create the analysis up front and attach the raw text to it, so the text
//     is available for auditing even when parsing fails.
//  3. Decode the JSON report. Malformed text is recorded as model.ErrUpstream.
//  4. Normalize the actions against the video duration and store the result
//     under AnalysisParam.
package commands

import (
	goctx "context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jaycherian/fencing-judge/internal/cloud"
	"github.com/jaycherian/fencing-judge/internal/core/cor"
	"github.com/jaycherian/fencing-judge/internal/core/model"
)

// ActionJsonToStruct turns the model's text into a VideoAnalysis. The raw
// text is attached to the analysis whether or not it parses.
type ActionJsonToStruct struct {
	cor.BaseCommand
}

// NewActionJsonToStruct returns the parsing command. It reads RawResponseParam
// and writes AnalysisParam.
func NewActionJsonToStruct(name string) *ActionJsonToStruct {
	out := &ActionJsonToStruct{BaseCommand: *cor.NewBaseCommand(name)}
	out.InputParamName = RawResponseParam
	out.OutputParamName = AnalysisParam
	return out
}

func (s *ActionJsonToStruct) Execute(context cor.Context) {
	in := context.Get(s.GetInputParam()).(string)
	path, _ := context.Get(VideoPathParam).(string)

	duration := 0.0
	if metadata, ok := context.Get(MetadataParam).(*model.VideoMetadata); ok && metadata != nil {
		duration = metadata.Duration
	}

	analysis := model.NewVideoAnalysis(filepath.Base(path), duration)
	analysis.SetRawResponse(in)
	// Available to callers for audit even when parsing fails below.
	context.Add(s.GetOutputParam(), analysis)

	report, err := ParseActionReport(in)
	if err != nil {
		s.Fail(context, err)
		return
	}

	analysis.Actions = NormalizeActions(context.GetContext(), *report.Actions, duration)
	analysis.Summary = strings.TrimSpace(report.Summary)
	s.Succeed(context, analysis)
}

// ParseActionReport decodes the model output. Text that is not JSON, or a
// document without an "actions" array, is an upstream error.
func ParseActionReport(in string) (*model.ActionReport, error) {
	text := cloud.TrimJSONFence(in)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", model.ErrUpstream)
	}
	report := &model.ActionReport{}
	if err := json.Unmarshal([]byte(text), report); err != nil {
		return nil, fmt.Errorf("%w: unparseable response: %v", model.ErrUpstream, err)
	}
	if report.Actions == nil {
		return nil, fmt.Errorf("%w: response has no actions", model.ErrUpstream)
	}
	return report, nil
}

// NormalizeActions drops entries without a type or with a timestamp outside
// [0, duration], clamps confidence into [0, 1], clears unknown player tags and
// sorts by timestamp. Entries with equal timestamps keep their reported order.
//
// A duration of 0 means the container reported no frame rate, so the length
// of the video is unknown. Only the lower bound is enforced in that case.
func NormalizeActions(ctx goctx.Context, actions []*model.FencingAction, duration float64) []*model.FencingAction {
	out := make([]*model.FencingAction, 0, len(actions))
	for _, a := range actions {
		if a == nil {
			continue
		}
		a.ActionType = strings.TrimSpace(a.ActionType)
		if a.ActionType == "" {
			slog.WarnContext(ctx, "dropping action without a type", "timestamp", a.Timestamp)
			continue
		}
		outside := math.IsNaN(a.Timestamp) || math.IsInf(a.Timestamp, 0) || a.Timestamp < 0
		if duration > 0 && a.Timestamp > duration {
			outside = true
		}
		if outside {
			slog.WarnContext(ctx, "dropping action outside the video", "action", a.ActionType, "timestamp", a.Timestamp, "duration", duration)
			continue
		}
		switch {
		case math.IsNaN(a.Confidence) || a.Confidence < 0:
			a.Confidence = 0
		case a.Confidence > 1:
			a.Confidence = 1
		}
		a.Player = strings.ToLower(strings.TrimSpace(a.Player))
		if a.Player != model.PlayerLeft && a.Player != model.PlayerRight {
			a.Player = ""
		}
		a.Description = strings.TrimSpace(a.Description)
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}
