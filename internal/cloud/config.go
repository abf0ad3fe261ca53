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

// Package cloud provides configuration and client wrappers for the external
// services used by the fencing judge: the Gemini content generation API and,
// optionally, Google Cloud Storage for archiving uploads.
//
// This file defines the configuration structure. Values are layered:
//  1. Defaults from NewConfig.
//  2. The TOML files read by LoadConfig (.env.toml then .env.<runtime>.toml).
//  3. Environment variable overrides applied by ApplyEnvOverrides.
package cloud

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"google.golang.org/genai"
)

// Environment variables that override individual configuration values.
const (
	EnvUploadDir     = "UPLOAD_DIR"
	EnvThumbnailsDir = "THUMBNAILS_DIR"
	EnvFramesDir     = "FRAMES_DIR"
	EnvArtifactsRoot = "ARTIFACTS_ROOT"
	EnvHost          = "HOST"
	EnvPort          = "PORT"
	EnvAPIKey        = "GEMINI_API_KEY"
)

// DefaultAgentModel is the logical name of the model used for action analysis.
const DefaultAgentModel = "action-analysis"

// DefaultActionPrompt asks the model for the fields of model.ActionReport.
// DURATION and EXAMPLE_JSON are supplied when the template is rendered.
const DefaultActionPrompt = `Analyze this fencing bout video. It is {{.DURATION}} seconds long.

Identify every fencing action that occurs. For each action report:
- action_type: the action performed (for example attack, parry, riposte, counter-attack, lunge, fleche, remise, touch)
- timestamp: seconds from the start of the video, between 0 and {{.DURATION}}
- player: "left" or "right", the fencer performing the action as seen on screen
- description: a short description of what happened
- confidence: how certain you are, between 0.0 and 1.0

Also write a short summary of the bout.

Respond only with JSON in exactly this shape:
{{.EXAMPLE_JSON}}`

var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
}

type PromptTemplates struct {
	ActionPrompt string `toml:"actions"` // Template for the action analysis prompt.
}

// AgentModel configures one generative model.
type AgentModel struct {
	Model              string  `toml:"model"`               // Model name, e.g. "gemini-2.5-flash".
	SystemInstructions string  `toml:"system_instructions"` // System instructions sent with every request.
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`    // Maximum output tokens.
	OutputFormat       string  `toml:"output_format"` // Response MIME type, "application/json" enables the response schema.
	RateLimit          int     `toml:"rate_limit"`    // Requests per second; 0 disables limiting.
}

type Storage struct {
	UploadDir       string `toml:"upload_dir"`       // Flat directory holding uploaded videos.
	ArtifactsRoot   string `toml:"artifacts_root"`   // Root that relative thumbnail and frame directories are resolved against.
	ThumbnailsDir   string `toml:"thumbnails_dir"`   // Thumbnail artifacts, relative to ArtifactsRoot unless absolute.
	FramesDir       string `toml:"frames_dir"`       // Frame artifacts, relative to ArtifactsRoot unless absolute.
	MaxUploadBytes  int64  `toml:"max_upload_bytes"` // Multipart memory limit for the upload handler.
	ArchiveBucket   string `toml:"archive_bucket"`   // When set, uploads are copied to this GCS bucket.
	ArchiveEndpoint string `toml:"archive_endpoint"` // Optional GCS endpoint override, used with emulators.
}

// ThumbnailsPath returns the resolved thumbnails directory.
func (s Storage) ThumbnailsPath() string {
	return s.resolve(s.ThumbnailsDir)
}

// FramesPath returns the resolved frames directory.
func (s Storage) FramesPath() string {
	return s.resolve(s.FramesDir)
}

func (s Storage) resolve(dir string) string {
	if filepath.IsAbs(dir) || s.ArtifactsRoot == "" {
		return dir
	}
	return filepath.Join(s.ArtifactsRoot, dir)
}

type Analysis struct {
	AgentModel              string `toml:"agent_model"`                // Key into AgentModels.
	MaxInlineBytes          int    `toml:"max_inline_bytes"`           // Encoded payload size above which a warning is logged.
	TimeoutInSeconds        int    `toml:"timeout_in_seconds"`         // Upper bound on the inference call.
	SampleActionFrames      bool   `toml:"sample_action_frames"`       // Extract a frame for every reported action.
	MetadataCacheTTLSeconds int    `toml:"metadata_cache_ttl_seconds"` // 0 disables the metadata cache.
}

type Decoder struct {
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
}

type Telemetry struct {
	Exporter string `toml:"exporter"` // "gcp" exports traces and metrics to Google Cloud; anything else keeps the no-op providers.
}

type Config struct {
	Application struct {
		Name            string `toml:"name"`              // Service name reported to telemetry.
		GoogleProjectId string `toml:"google_project_id"` // Project for Vertex AI, GCS and telemetry exporters.
		GoogleLocation  string `toml:"location"`          // Vertex AI location.
		ThreadPoolSize  int    `toml:"thread_pool_size"`  // Workers for background ingest jobs.
		Host            string `toml:"host"`
		Port            int    `toml:"port"`
		APIKey          string `toml:"api_key"`  // Gemini API key; when empty Vertex AI credentials are used.
		LogFile         string `toml:"log_file"` // Optional file that receives a copy of the JSON logs.
		LogLevel        string `toml:"log_level"` // debug, info, warn or error.
	} `toml:"application"`
	Storage         Storage               `toml:"storage"`
	Analysis        Analysis              `toml:"analysis"`
	Decoder         Decoder               `toml:"decoder"`
	Telemetry       Telemetry             `toml:"telemetry"`
	PromptTemplates PromptTemplates       `toml:"prompt_templates"`
	AgentModels     map[string]AgentModel `toml:"agent_models"` // Keyed by logical name, e.g. "action-analysis".
}

// NewConfig returns a configuration populated with working defaults.
func NewConfig() *Config {
	c := &Config{
		Storage: Storage{
			UploadDir:      "uploads",
			ArtifactsRoot:  ".",
			ThumbnailsDir:  "thumbnails",
			FramesDir:      "frames",
			MaxUploadBytes: 32 << 20,
		},
		Analysis: Analysis{
			AgentModel:       DefaultAgentModel,
			MaxInlineBytes:   20 * 1024 * 1024,
			TimeoutInSeconds: 300,
		},
		Telemetry:       Telemetry{Exporter: "none"},
		PromptTemplates: PromptTemplates{ActionPrompt: DefaultActionPrompt},
		AgentModels: map[string]AgentModel{
			DefaultAgentModel: {
				Model:        "gemini-2.5-flash-preview-05-20",
				Temperature:  0.2,
				TopP:         0.95,
				TopK:         40,
				MaxTokens:    8192,
				OutputFormat: "application/json",
				RateLimit:    1,
			},
		},
	}
	c.Application.Name = "fencing-judge"
	c.Application.GoogleLocation = "us-central1"
	c.Application.ThreadPoolSize = 4
	c.Application.Host = "0.0.0.0"
	c.Application.Port = 8000
	c.Application.LogLevel = "info"
	return c
}

// ApplyEnvOverrides replaces configured values with any of the supported
// environment variables that are set.
func ApplyEnvOverrides(c *Config) error {
	if v, ok := os.LookupEnv(EnvUploadDir); ok && v != "" {
		c.Storage.UploadDir = v
	}
	if v, ok := os.LookupEnv(EnvThumbnailsDir); ok && v != "" {
		c.Storage.ThumbnailsDir = v
	}
	if v, ok := os.LookupEnv(EnvFramesDir); ok && v != "" {
		c.Storage.FramesDir = v
	}
	if v, ok := os.LookupEnv(EnvArtifactsRoot); ok && v != "" {
		c.Storage.ArtifactsRoot = v
	}
	if v, ok := os.LookupEnv(EnvHost); ok && v != "" {
		c.Application.Host = v
	}
	if v, ok := os.LookupEnv(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Application.Port = port
	}
	if v, ok := os.LookupEnv(EnvAPIKey); ok && v != "" {
		c.Application.APIKey = v
	}
	return nil
}

// Validate reports configuration that would fail at request time.
func (c *Config) Validate() error {
	if c.Storage.UploadDir == "" {
		return fmt.Errorf("storage.upload_dir must be set")
	}
	if c.Application.Port <= 0 || c.Application.Port > 65535 {
		return fmt.Errorf("application.port %d is out of range", c.Application.Port)
	}
	if _, ok := c.AgentModels[c.Analysis.AgentModel]; !ok {
		return fmt.Errorf("analysis.agent_model %q has no matching [agent_models] entry", c.Analysis.AgentModel)
	}
	if c.Application.ThreadPoolSize <= 0 {
		return fmt.Errorf("application.thread_pool_size must be positive")
	}
	return nil
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Application.Host, c.Application.Port)
}
