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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jaycherian/fencing-judge/internal/api"
	"github.com/jaycherian/fencing-judge/internal/cloud"
	"github.com/jaycherian/fencing-judge/internal/core/services"
	"github.com/jaycherian/fencing-judge/internal/core/workflow"
	"github.com/jaycherian/fencing-judge/internal/video"
)

// ingestQueueFactor sizes the background queue relative to the worker count.
const ingestQueueFactor = 16

// StateManager holds the long lived components of the server.
type StateManager struct {
	config    *cloud.Config
	cloud     *cloud.ServiceClients
	extractor *services.MetadataExtractor
	runner    *workflow.BackgroundRunner
	handlers  *api.Handlers
}

var state = &StateManager{}

// SetupOS defaults the configuration location to ./configs and the runtime
// to "local" unless they are already set in the environment.
func SetupOS() error {
	if _, ok := os.LookupEnv(cloud.EnvConfigFilePrefix); !ok {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if _, ok := os.LookupEnv(cloud.EnvConfigRuntime); !ok {
		return os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return nil
}

// GetConfig loads, overrides and validates the configuration once.
func GetConfig() (*cloud.Config, error) {
	if state.config != nil {
		return state.config, nil
	}
	if err := SetupOS(); err != nil {
		return nil, fmt.Errorf("failed to set up configuration environment: %w", err)
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	if err := cloud.ApplyEnvOverrides(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	state.config = config
	return config, nil
}

// InitState creates the clients, services and workflows behind the routes.
func InitState(ctx context.Context) error {
	config, err := GetConfig()
	if err != nil {
		return err
	}

	for _, dir := range []string{config.Storage.UploadDir, config.Storage.ThumbnailsPath(), config.Storage.FramesPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	decoder := video.NewFFmpegDecoder(config.Decoder.FFprobePath, config.Decoder.FFmpegPath)
	store := services.NewVideoStore(config.Storage.UploadDir)
	extractor := services.NewMetadataExtractor(decoder, config.Storage.ThumbnailsPath(),
		time.Duration(config.Analysis.MetadataCacheTTLSeconds)*time.Second)
	sampler := services.NewFrameSampler(decoder, config.Storage.FramesPath())
	state.extractor = extractor

	analysisWorkflow, err := workflow.NewVideoAnalysisWorkflow(config, cloudClients.AgentModels[config.Analysis.AgentModel], extractor, sampler)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "analysis workflow ready", "steps", analysisWorkflow.Steps())

	ingestWorkflow := workflow.NewVideoIngestWorkflow(config, cloudClients.StorageClient, extractor)
	slog.InfoContext(ctx, "ingest workflow ready", "steps", ingestWorkflow.Steps())

	state.runner = workflow.NewBackgroundRunner(config.Application.ThreadPoolSize, config.Application.ThreadPoolSize*ingestQueueFactor)
	state.handlers = &api.Handlers{
		Store:    store,
		Metadata: extractor,
		Frames:   sampler,
		Analysis: services.NewAnalysisService(store, analysisWorkflow),
		Runner:   state.runner,
		Ingest:   ingestWorkflow,
	}
	return nil
}

// Shutdown drains background jobs and releases the clients.
func (s *StateManager) Shutdown(ctx context.Context) error {
	var err error
	if s.runner != nil {
		err = errors.Join(err, s.runner.Shutdown(ctx))
	}
	if s.extractor != nil {
		err = errors.Join(err, s.extractor.Close())
	}
	if s.cloud != nil {
		s.cloud.Close()
	}
	return err
}
