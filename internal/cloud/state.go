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
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
	"google.golang.org/genai"
)

// ServiceClients holds the external clients created at start up. It is
// built once by the process entry point and passed to the components that
// need it.
type ServiceClients struct {
	StorageClient *storage.Client                         // Nil unless storage.archive_bucket is configured.
	GenAIClient   *genai.Client                           // Gemini API or Vertex AI client.
	AgentModels   map[string]*QuotaAwareGenerativeAIModel // Rate limited models keyed by logical name.
}

func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		if err := c.StorageClient.Close(); err != nil {
			slog.Warn("failed to close storage client", "error", err)
		}
	}
}

// NewGenAIClientConfig selects the Gemini API backend when an API key is
// configured and Vertex AI otherwise.
func NewGenAIClientConfig(config *Config) *genai.ClientConfig {
	if config.Application.APIKey != "" {
		return &genai.ClientConfig{
			APIKey:  config.Application.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
	}
	return &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	}
}

func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	clientConfig := NewGenAIClientConfig(config)
	gc, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	slog.InfoContext(ctx, "created genai client", "backend", clientConfig.Backend.String(), "project", config.Application.GoogleProjectId)

	var sc *storage.Client
	if config.Storage.ArchiveBucket != "" {
		var opts []option.ClientOption
		if config.Storage.ArchiveEndpoint != "" {
			opts = append(opts, option.WithEndpoint(config.Storage.ArchiveEndpoint), option.WithoutAuthentication())
		}
		sc, err = storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		slog.InfoContext(ctx, "archiving uploads", "bucket", config.Storage.ArchiveBucket)
	}

	return &ServiceClients{
		StorageClient: sc,
		GenAIClient:   gc,
		AgentModels:   NewAgentModels(config, gc.Models),
	}, nil
}
