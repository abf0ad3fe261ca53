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

package workflow

import (
	"cloud.google.com/go/storage"

	"github.com/jaycherian/fencing-judge/internal/cloud"
	"github.com/jaycherian/fencing-judge/internal/core/commands"
	"github.com/jaycherian/fencing-judge/internal/core/cor"
)

// VideoIngestWorkflow runs after an upload has been stored: it warms the
// metadata cache, writes the thumbnail and, when a bucket is configured,
// archives the video. Steps are independent, so a failing step does not
// stop the others.
type VideoIngestWorkflow struct {
	cor.BaseCommand
	config        *cloud.Config
	storageClient *storage.Client
	metadata      commands.MetadataReader
	chain         cor.Chain
}

func (v *VideoIngestWorkflow) Execute(context cor.Context) {
	v.chain.Execute(context)
}

func (v *VideoIngestWorkflow) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil && context.Get(commands.VideoPathParam) != nil
}

// Steps returns the command names in execution order.
func (v *VideoIngestWorkflow) Steps() []string {
	return v.chain.(*cor.BaseChain).Commands()
}

func (v *VideoIngestWorkflow) initializeChain() {
	out := cor.NewBaseChain(v.GetName())
	out.ContinueOnFailure(true)

	out.AddCommand(commands.NewVideoMetadataExtractor("extract-video-metadata", v.metadata))
	if v.storageClient != nil && v.config.Storage.ArchiveBucket != "" {
		out.AddCommand(commands.NewVideoArchive("archive-video", v.storageClient, v.config.Storage.ArchiveBucket))
	}
	v.chain = out
}

// NewVideoIngestWorkflow builds the ingest chain. storageClient may be nil.
func NewVideoIngestWorkflow(config *cloud.Config, storageClient *storage.Client, metadata commands.MetadataReader) *VideoIngestWorkflow {
	workflow := &VideoIngestWorkflow{
		BaseCommand:   *cor.NewBaseCommand("video-ingest-workflow"),
		config:        config,
		storageClient: storageClient,
		metadata:      metadata,
	}
	workflow.initializeChain()
	return workflow
}
