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

// Package model defines the data structures that flow between the storage,
// decoding, analysis and HTTP layers of the fencing judge.
//
// Types:
//   - StoredVideo: a video written to the upload directory.
//   - VideoMetadata: container-reported properties of a stored video.
//   - FencingAction: one timestamped action reported by the model.
//   - VideoAnalysis: the result of a single analyze request.
package model

import (
	"path/filepath"
	"strings"
	"time"
)

// Player sides accepted on a FencingAction.
const (
	PlayerLeft  = "left"
	PlayerRight = "right"
)

// StoredVideo describes a video that has been persisted by the storage adapter.
// It is never modified after creation.
type StoredVideo struct {
	ID               string `json:"id"`                // Unique file name, "<uuid><ext>".
	OriginalFilename string `json:"original_filename"` // Name supplied by the uploader.
	Extension        string `json:"extension"`         // Extension including the leading dot, e.g. ".mp4".
	Size             int64  `json:"size"`              // Bytes written.
	Path             string `json:"path"`              // Absolute or configured-root relative path on disk.
}

// VideoMetadata holds the stream properties reported by the container. Values
// are not verified by decoding every frame.
type VideoMetadata struct {
	Filename   string  `json:"filename"`
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Duration   float64 `json:"duration"`  // FrameCount / FPS, or 0 when FPS <= 0.
	Thumbnail  string  `json:"thumbnail"` // Empty when the first frame could not be decoded.
}

// ComputeDuration returns frames / fps, falling back to 0 for a non-positive frame rate.
func ComputeDuration(frameCount int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(frameCount) / fps
}

// FencingAction is a single action identified in a bout.
type FencingAction struct {
	ActionType  string  `json:"action_type"`
	Timestamp   float64 `json:"timestamp"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
	Player      string  `json:"player,omitempty"`
}

// VideoAnalysis is produced once per analyze request and is not persisted.
// Actions are ordered by timestamp, ascending.
type VideoAnalysis struct {
	VideoID       string            `json:"video_id"`
	Filename      string            `json:"filename"`
	Duration      float64           `json:"duration"`
	Actions       []*FencingAction  `json:"actions"`
	Summary       string            `json:"summary,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	RawAIResponse map[string]string `json:"raw_ai_response,omitempty"`
	Frames        map[string]string `json:"frames,omitempty"` // Formatted timestamp to frame artifact, when action frames are sampled.
}

// NewVideoAnalysis creates an empty analysis for the given file. The video
// identifier is the file name without its extension.
func NewVideoAnalysis(filename string, duration float64) *VideoAnalysis {
	return &VideoAnalysis{
		VideoID:   BaseName(filename),
		Filename:  filename,
		Duration:  duration,
		Actions:   make([]*FencingAction, 0),
		CreatedAt: time.Now().UTC(),
	}
}

// SetRawResponse keeps the upstream text for audit.
func (a *VideoAnalysis) SetRawResponse(text string) {
	a.RawAIResponse = map[string]string{"raw_text": text}
}

// BaseName strips the directory and the extension from a path.
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
