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

package commands_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"text/template"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/fencing-judge/internal/cloud"
	"github.com/jaycherian/fencing-judge/internal/core/commands"
	"github.com/jaycherian/fencing-judge/internal/core/cor"
	"github.com/jaycherian/fencing-judge/internal/core/model"
	test "github.com/jaycherian/fencing-judge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/genai"
)

func TestMIMETypeForPath(t *testing.T) {
	assert.Equal(t, "video/mp4", commands.MIMETypeForPath("a/b.mp4"))
	assert.Equal(t, "video/quicktime", commands.MIMETypeForPath("b.MOV"))
	assert.Equal(t, "video/webm", commands.MIMETypeForPath("b.webm"))
	assert.Equal(t, "video/x-msvideo", commands.MIMETypeForPath("b.avi"))
	assert.Equal(t, "video/mp4", commands.MIMETypeForPath("b.mkv"))
	assert.Equal(t, "video/mp4", commands.MIMETypeForPath("noext"))
}

func TestParseActionReport(t *testing.T) {
	report, err := commands.ParseActionReport("```json\n{\"actions\": [{\"action_type\": \"lunge\", \"timestamp\": 0.5, \"confidence\": 0.7}], \"summary\": \"short\"}\n```")
	require.NoError(t, err)
	require.Len(t, *report.Actions, 1)
	assert.Equal(t, "lunge", (*report.Actions)[0].ActionType)
	assert.Equal(t, "short", report.Summary)

	report, err = commands.ParseActionReport(`{"actions": [], "summary": "nothing happened"}`)
	require.NoError(t, err)
	assert.Empty(t, *report.Actions)

	for _, in := range []string{"", "the fencers saluted", `{"summary": "no actions key"}`, `{"actions": "attack"}`} {
		_, err := commands.ParseActionReport(in)
		assert.ErrorIs(t, err, model.ErrUpstream, "input %q", in)
	}
}

func TestNormalizeActions(t *testing.T) {
	actions := []*model.FencingAction{
		{ActionType: "touch", Timestamp: 2.1, Confidence: 1.4, Player: "LEFT"},
		{ActionType: "attack", Timestamp: 1.5, Confidence: 0.95, Player: "right"},
		{ActionType: "", Timestamp: 1.0, Confidence: 0.5},
		{ActionType: "remise", Timestamp: 3.5, Confidence: 0.5},
		{ActionType: "parry", Timestamp: -0.1, Confidence: 0.5},
		{ActionType: "riposte", Timestamp: 1.5, Confidence: -2, Player: "referee"},
		nil,
	}

	out := commands.NormalizeActions(context.Background(), actions, 3.0)
	require.Len(t, out, 3)

	assert.Equal(t, "attack", out[0].ActionType)
	assert.Equal(t, "riposte", out[1].ActionType, "equal timestamps keep reported order")
	assert.Equal(t, "touch", out[2].ActionType)

	assert.Equal(t, 1.0, out[2].Confidence)
	assert.Equal(t, model.PlayerLeft, out[2].Player)
	assert.Equal(t, 0.0, out[1].Confidence)
	assert.Equal(t, "", out[1].Player)
	for _, a := range out {
		assert.GreaterOrEqual(t, a.Timestamp, 0.0)
		assert.LessOrEqual(t, a.Timestamp, 3.0)
	}
}

func TestNormalizeActionsWithUnknownDuration(t *testing.T) {
	actions := []*model.FencingAction{
		{ActionType: "touch", Timestamp: 12.5, Confidence: 0.9},
		{ActionType: "attack", Timestamp: 4, Confidence: 0.8},
		{ActionType: "parry", Timestamp: -1, Confidence: 0.5},
		{ActionType: "remise", Timestamp: math.Inf(1), Confidence: 0.5},
	}

	out := commands.NormalizeActions(context.Background(), actions, 0)
	require.Len(t, out, 2)
	assert.Equal(t, "attack", out[0].ActionType)
	assert.Equal(t, "touch", out[1].ActionType)
}

func TestActionJsonToStructKeepsRawTextOnFailure(t *testing.T) {
	cmd := commands.NewActionJsonToStruct("convert-fencing-actions")
	chCtx := cor.NewContext(context.Background(), nil)
	chCtx.Add(commands.VideoPathParam, "/videos/abc.mp4")
	chCtx.Add(commands.MetadataParam, &model.VideoMetadata{Duration: 3})
	chCtx.Add(commands.RawResponseParam, "I could not see any fencing.")

	cmd.Execute(chCtx)

	assert.ErrorIs(t, chCtx.Err(), model.ErrUpstream)
	analysis := chCtx.Get(commands.AnalysisParam).(*model.VideoAnalysis)
	assert.Equal(t, "abc", analysis.VideoID)
	assert.Equal(t, "I could not see any fencing.", analysis.RawAIResponse["raw_text"])
}

func TestVideoEncoderSendsOversizedPayload(t *testing.T) {
	path := test.WriteFixtureVideo(t, t.TempDir(), "bout.webm")

	cmd := commands.NewVideoEncoder("encode-video", 16)
	chCtx := cor.NewContext(context.Background(), nil)
	chCtx.Add(commands.VideoPathParam, path)
	cmd.Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	part := chCtx.Get(commands.VideoContentParam).(*genai.Part)
	require.NotNil(t, part.InlineData)
	assert.Equal(t, "video/webm", part.InlineData.MIMEType)
	assert.Len(t, part.InlineData.Data, len(test.Mp4Header)+1024)
}

func TestVideoEncoderMissingFile(t *testing.T) {
	cmd := commands.NewVideoEncoder("encode-video", 0)
	chCtx := cor.NewContext(context.Background(), nil)
	chCtx.Add(commands.VideoPathParam, filepath.Join(t.TempDir(), "gone.mp4"))
	cmd.Execute(chCtx)
	assert.True(t, chCtx.HasErrors())
}

func newCreator(t *testing.T, fake *test.FakeGenerator, timeout time.Duration) *commands.ActionAnalysisCreator {
	cloud.RetryBackoff = 0
	tmpl, err := template.New("actions").Parse(cloud.DefaultActionPrompt)
	require.NoError(t, err)
	genModel := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "gemini-test", fake, 0)
	return commands.NewActionAnalysisCreator("generate-fencing-actions", genModel, tmpl, timeout)
}

func TestActionAnalysisCreatorRendersPrompt(t *testing.T) {
	fake := test.NewFakeGenerator(`{"actions": [], "summary": ""}`)
	cmd := newCreator(t, fake, time.Second)

	chCtx := cor.NewContext(context.Background(), nil)
	chCtx.Add(commands.MetadataParam, &model.VideoMetadata{Duration: 3})
	chCtx.Add(commands.VideoContentParam, cloud.NewInlineVideo([]byte("video"), "video/mp4"))
	cmd.Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	assert.Equal(t, `{"actions": [], "summary": ""}`, chCtx.Get(commands.RawResponseParam))

	require.Len(t, fake.LastContents, 1)
	parts := fake.LastContents[0].Parts
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].Text, "3.00 seconds long")
	assert.Contains(t, parts[0].Text, `"action_type":"attack"`)
	assert.Equal(t, "video/mp4", parts[1].InlineData.MIMEType)
}

func TestActionAnalysisCreatorUpstreamFailure(t *testing.T) {
	fake := test.NewFakeGenerator("{}")
	failure := test.NewAPIError(500, "INTERNAL")
	fake.Errors = []error{failure, failure, failure, failure}
	cmd := newCreator(t, fake, time.Second)

	chCtx := cor.NewContext(context.Background(), nil)
	chCtx.Add(commands.VideoContentParam, cloud.NewInlineVideo([]byte("video"), "video/mp4"))
	cmd.Execute(chCtx)

	assert.ErrorIs(t, chCtx.Err(), model.ErrUpstream)
	assert.ErrorIs(t, chCtx.Err(), failure)
}

func TestActionAnalysisCreatorTimeout(t *testing.T) {
	fake := test.NewFakeGenerator("{}")
	fake.Delay = 5 * time.Second
	cmd := newCreator(t, fake, 20*time.Millisecond)

	chCtx := cor.NewContext(context.Background(), nil)
	chCtx.Add(commands.VideoContentParam, cloud.NewInlineVideo([]byte("video"), "video/mp4"))

	start := time.Now()
	cmd.Execute(chCtx)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, chCtx.Err(), model.ErrUpstream)
	assert.ErrorIs(t, chCtx.Err(), context.DeadlineExceeded)
}

type fakeSampler struct {
	timestamps []float64
	err        error
}

func (f *fakeSampler) Sample(_ context.Context, _ string, timestamps []float64) (*model.FrameSample, error) {
	f.timestamps = timestamps
	if f.err != nil {
		return nil, f.err
	}
	out := model.NewFrameSample()
	for _, ts := range timestamps {
		out.Frames[ts] = "frames/x.jpg"
	}
	return out, nil
}

func TestActionFrameSampler(t *testing.T) {
	analysis := model.NewVideoAnalysis("x.mp4", 3)
	analysis.Actions = append(analysis.Actions, &model.FencingAction{ActionType: "attack", Timestamp: 1.5})

	sampler := &fakeSampler{}
	cmd := commands.NewActionFrameSampler("sample-action-frames", sampler)
	chCtx := cor.NewContext(context.Background(), nil)
	chCtx.Add(commands.AnalysisParam, analysis)
	chCtx.Add(commands.VideoPathParam, "x.mp4")
	cmd.Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	assert.Equal(t, []float64{1.5}, sampler.timestamps)
	assert.Equal(t, "frames/x.jpg", analysis.Frames["1.5"])

	// Sampling problems never fail the analysis.
	failing := commands.NewActionFrameSampler("sample-action-frames", &fakeSampler{err: model.ErrUnreadable})
	chCtx = cor.NewContext(context.Background(), nil)
	chCtx.Add(commands.AnalysisParam, model.NewVideoAnalysis("y.mp4", 3))
	chCtx.Add(commands.VideoPathParam, "y.mp4")
	failing.Execute(chCtx)
	assert.False(t, chCtx.HasErrors())
}

func TestVideoArchiveMissingFile(t *testing.T) {
	ctx := context.Background()
	client, err := storage.NewClient(ctx, option.WithoutAuthentication(), option.WithEndpoint("http://127.0.0.1:1/storage/v1/"))
	require.NoError(t, err)
	defer client.Close()

	cmd := commands.NewVideoArchive("archive-video", client, "fencing-archive")
	chCtx := cor.NewContext(ctx, nil)
	chCtx.Add(commands.VideoPathParam, filepath.Join(t.TempDir(), "gone.mp4"))
	cmd.Execute(chCtx)

	assert.True(t, chCtx.HasErrors())
	assert.Nil(t, chCtx.Get(cloud.GetGCSObjectName()))
}
