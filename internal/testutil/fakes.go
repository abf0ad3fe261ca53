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

package test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jaycherian/fencing-judge/internal/core/model"
	"github.com/jaycherian/fencing-judge/internal/video"
	"google.golang.org/genai"
)

// NewAPIError builds the error the SDK returns for a non-2xx response.
func NewAPIError(code int, status string) *genai.APIError {
	return &genai.APIError{Code: code, Status: status, Message: fmt.Sprintf("fake %d response", code)}
}

// FakeGenerator replays canned responses in order. The last response is
// repeated once the list is exhausted.
type FakeGenerator struct {
	mu           sync.Mutex
	Responses    []string      // Text returned for each call.
	Errors       []error       // Error returned for the call at the same index, if non-nil.
	Delay        time.Duration // Simulated latency; honours ctx cancellation.
	Calls        int
	LastModel    string
	LastContents []*genai.Content
}

func NewFakeGenerator(responses ...string) *FakeGenerator {
	return &FakeGenerator{Responses: responses}
}

func (f *FakeGenerator) GenerateContent(ctx context.Context, modelName string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	call := f.Calls
	f.Calls++
	f.LastModel = modelName
	f.LastContents = contents
	delay := f.Delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if call < len(f.Errors) && f.Errors[call] != nil {
		return nil, f.Errors[call]
	}
	if len(f.Responses) == 0 {
		return nil, errors.New("fake generator has no responses")
	}
	text := f.Responses[min(call, len(f.Responses)-1)]
	return NewTextResponse(text), nil
}

// CallCount returns the number of GenerateContent calls so far.
func (f *FakeGenerator) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}

// NewTextResponse wraps text in a single candidate response.
func NewTextResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}}},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 20},
	}
}

// FakeDecoder serves fixed properties for any existing file and writes a
// placeholder JPEG for every extracted frame.
type FakeDecoder struct {
	mu         sync.Mutex
	Props      video.Properties
	Unreadable bool         // Open fails with model.ErrUnreadable.
	FailFrames map[int]bool // Frame indices whose extraction fails.
	Opened     int
	Closed     int
	Extracted  []int
}

func NewFakeDecoder(fps float64, frames int) *FakeDecoder {
	return &FakeDecoder{
		Props:      video.Properties{FPS: fps, FrameCount: frames, Width: 1280, Height: 720},
		FailFrames: make(map[int]bool),
	}
}

func (d *FakeDecoder) Open(_ context.Context, path string) (video.Handle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %w", path, model.ErrFileNotFound)
	}
	if d.Unreadable {
		return nil, fmt.Errorf("%s: %w", path, model.ErrUnreadable)
	}
	d.mu.Lock()
	d.Opened++
	d.mu.Unlock()
	return &fakeHandle{decoder: d}, nil
}

// OpenHandles returns the number of handles opened but not yet closed.
func (d *FakeDecoder) OpenHandles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Opened - d.Closed
}

type fakeHandle struct {
	decoder *FakeDecoder
	closed  bool
}

func (h *fakeHandle) Properties() video.Properties {
	return h.decoder.Props
}

func (h *fakeHandle) ExtractFrame(_ context.Context, index int, dest string) error {
	d := h.decoder
	d.mu.Lock()
	fail := d.FailFrames[index]
	d.mu.Unlock()
	if fail || index >= d.Props.FrameCount {
		return fmt.Errorf("cannot decode frame %d", index)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dest, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0o644); err != nil {
		return err
	}
	d.mu.Lock()
	d.Extracted = append(d.Extracted, index)
	d.mu.Unlock()
	return nil
}

func (h *fakeHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.decoder.mu.Lock()
	h.decoder.Closed++
	h.decoder.mu.Unlock()
	return nil
}
