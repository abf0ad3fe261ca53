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

package cloud

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ContentGenerator is the slice of *genai.Models used by the application.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// QuotaAwareGenerativeAIModel pairs a model name and generation config with a
// token bucket so callers never exceed the configured request rate.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig // Sent with every request.
	ModelName               string
	ModelHandle             ContentGenerator
	RateLimit               *rate.Limiter
}

// NewQuotaAwareModel creates a wrapper allowing requestsPerSecond calls per
// second. A non-positive rate disables limiting.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, handle ContentGenerator, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             handle,
		RateLimit:               limiter,
	}
}

// GenerateContent blocks until the limiter admits the request or ctx is done.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, contents, q.GenerativeContentConfig)
}

// NewGenerateContentConfig translates an AgentModel entry into a request
// configuration. A JSON output format attaches the action report schema.
func NewGenerateContentConfig(values AgentModel) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](values.Temperature),
		TopP:            genai.Ptr[float32](values.TopP),
		TopK:            genai.Ptr[float32](values.TopK),
		MaxOutputTokens: values.MaxTokens,
		SafetySettings:  DefaultSafetySettings,
	}
	if values.SystemInstructions != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}}
	}
	if values.OutputFormat != "" {
		config.ResponseMIMEType = values.OutputFormat
	}
	if values.OutputFormat == "application/json" {
		config.ResponseSchema = ActionReportSchema()
	}
	return config
}

// ActionReportSchema describes model.ActionReport for structured output.
func ActionReportSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"actions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"action_type": {Type: genai.TypeString},
						"timestamp":   {Type: genai.TypeNumber},
						"player":      {Type: genai.TypeString, Enum: []string{"left", "right"}},
						"description": {Type: genai.TypeString},
						"confidence":  {Type: genai.TypeNumber},
					},
					Required:         []string{"action_type", "timestamp", "confidence"},
					PropertyOrdering: []string{"action_type", "timestamp", "player", "description", "confidence"},
				},
			},
			"summary": {Type: genai.TypeString},
		},
		Required:         []string{"actions", "summary"},
		PropertyOrdering: []string{"actions", "summary"},
	}
}

// NewAgentModels builds a rate limited wrapper for every configured agent model.
func NewAgentModels(config *Config, handle ContentGenerator) map[string]*QuotaAwareGenerativeAIModel {
	agentModels := make(map[string]*QuotaAwareGenerativeAIModel, len(config.AgentModels))
	for key, values := range config.AgentModels {
		agentModels[key] = NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, handle, values.RateLimit)
	}
	return agentModels
}
