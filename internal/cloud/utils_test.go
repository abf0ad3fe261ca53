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

package cloud_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/jaycherian/fencing-judge/internal/cloud"
	test "github.com/jaycherian/fencing-judge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"google.golang.org/genai"
)

func TestGenerateMultiModalResponse(t *testing.T) {
	cloud.RetryBackoff = 0
	meter := otel.Meter("cloud-test")
	in, _ := meter.Int64Counter("in")
	out, _ := meter.Int64Counter("out")
	retry, _ := meter.Int64Counter("retry")

	fake := test.NewFakeGenerator("```json\n{\"actions\": [], \"summary\": \"\"}\n```")
	unavailable := test.NewAPIError(503, "UNAVAILABLE")
	fake.Errors = []error{unavailable, unavailable}
	model := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "gemini-test", fake, 0)

	value, err := cloud.GenerateMultiModalResponse(context.Background(), in, out, retry, 0, model, genai.Text("hello"))
	require.NoError(t, err)
	assert.Equal(t, `{"actions": [], "summary": ""}`, value)
	assert.Equal(t, 3, fake.CallCount())
	assert.Equal(t, "gemini-test", fake.LastModel)
}

func TestGenerateMultiModalResponseGivesUp(t *testing.T) {
	cloud.RetryBackoff = 0
	meter := otel.Meter("cloud-test")
	in, _ := meter.Int64Counter("in")
	out, _ := meter.Int64Counter("out")
	retry, _ := meter.Int64Counter("retry")

	failure := test.NewAPIError(429, "RESOURCE_EXHAUSTED")
	fake := test.NewFakeGenerator("{}")
	fake.Errors = []error{failure, failure, failure, failure, failure}
	model := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "gemini-test", fake, 0)

	_, err := cloud.GenerateMultiModalResponse(context.Background(), in, out, retry, 0, model, genai.Text("hello"))
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, cloud.MaxRetries+1, fake.CallCount())
}

func TestGenerateMultiModalResponseDoesNotRetryClientErrors(t *testing.T) {
	cloud.RetryBackoff = 0
	meter := otel.Meter("cloud-test")
	in, _ := meter.Int64Counter("in")
	out, _ := meter.Int64Counter("out")
	retry, _ := meter.Int64Counter("retry")

	for _, failure := range []error{
		test.NewAPIError(400, "INVALID_ARGUMENT"),
		test.NewAPIError(403, "PERMISSION_DENIED"),
		errors.New("unsupported mime type"),
	} {
		fake := test.NewFakeGenerator("{}")
		fake.Errors = []error{failure, failure}
		model := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "gemini-test", fake, 0)

		_, err := cloud.GenerateMultiModalResponse(context.Background(), in, out, retry, 0, model, genai.Text("hello"))
		assert.ErrorIs(t, err, failure)
		assert.Equal(t, 1, fake.CallCount(), "%v", failure)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{test.NewAPIError(429, "RESOURCE_EXHAUSTED"), true},
		{test.NewAPIError(500, "INTERNAL"), true},
		{test.NewAPIError(503, "UNAVAILABLE"), true},
		{genai.APIError{Code: 502}, true},
		{fmt.Errorf("generate: %w", test.NewAPIError(504, "DEADLINE_EXCEEDED")), true},
		{test.NewAPIError(400, "INVALID_ARGUMENT"), false},
		{test.NewAPIError(404, "NOT_FOUND"), false},
		{genai.APIError{Code: 403}, false},
		{&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), true},
		{context.Canceled, false},
		{fmt.Errorf("%w: waiting", context.DeadlineExceeded), false},
		{errors.New("bad request"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, cloud.IsRetryable(tc.err), "%v", tc.err)
	}
}

func TestGenerateMultiModalResponseStopsOnDeadline(t *testing.T) {
	meter := otel.Meter("cloud-test")
	in, _ := meter.Int64Counter("in")
	out, _ := meter.Int64Counter("out")
	retry, _ := meter.Int64Counter("retry")

	fake := test.NewFakeGenerator("{}")
	fake.Delay = time.Second
	model := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "gemini-test", fake, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := cloud.GenerateMultiModalResponse(ctx, in, out, retry, 0, model, genai.Text("hello"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, fake.CallCount())
}

func TestTrimJSONFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cloud.TrimJSONFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cloud.TrimJSONFence("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, cloud.TrimJSONFence(`  {"a":1}  `))
}

func TestNewGenerateContentConfig(t *testing.T) {
	config := cloud.NewGenerateContentConfig(cloud.AgentModel{
		Model:              "gemini",
		SystemInstructions: "be a referee",
		Temperature:        0.5,
		MaxTokens:          100,
		OutputFormat:       "application/json",
	})
	assert.Equal(t, "application/json", config.ResponseMIMEType)
	require.NotNil(t, config.ResponseSchema)
	assert.Contains(t, config.ResponseSchema.Properties, "actions")
	require.NotNil(t, config.SystemInstruction)
	assert.Equal(t, "be a referee", config.SystemInstruction.Parts[0].Text)
	assert.Equal(t, float32(0.5), *config.Temperature)

	plain := cloud.NewGenerateContentConfig(cloud.AgentModel{Model: "gemini", OutputFormat: "text/plain"})
	assert.Nil(t, plain.ResponseSchema)
	assert.Nil(t, plain.SystemInstruction)
}

func TestRateLimitedModelHonoursContext(t *testing.T) {
	fake := test.NewFakeGenerator("{}")
	model := cloud.NewQuotaAwareModel(&genai.GenerateContentConfig{}, "gemini-test", fake, 1)

	_, err := model.GenerateContent(context.Background(), genai.Text("first"))
	require.NoError(t, err)

	// The bucket is now empty and the next token is a second away.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = model.GenerateContent(ctx, genai.Text("second"))
	assert.Error(t, err)
	assert.Equal(t, 1, fake.CallCount())
}
