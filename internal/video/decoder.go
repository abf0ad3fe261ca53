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

// Package video exposes decode handles over stored video files. A handle
// reports the stream properties recorded by the container and can write
// individual frames to disk as JPEG images.
//
// Logic Flow:
//  1. A caller asks a Decoder to Open a path. Missing files fail with
//     model.ErrFileNotFound and files that cannot be probed fail with
//     model.ErrUnreadable.
//  2. The returned Handle answers Properties() without further I/O.
//  3. ExtractFrame decodes a single frame by index and persists it.
//  4. The caller must Close the handle on every exit path. Handles are not
//     shared between goroutines.
package video

import "context"

// Properties are the stream level values reported by the container.
type Properties struct {
	FPS        float64 // Frames per second; 0 when the container does not report one.
	FrameCount int     // Total frames; may be estimated from the duration.
	Width      int
	Height     int
}

// Handle is an open video. Implementations are not safe for concurrent use.
type Handle interface {
	// Properties returns the values read when the handle was opened.
	Properties() Properties
	// ExtractFrame decodes the frame at index and writes it as a JPEG to dest,
	// replacing any existing file. On failure dest is left as it was.
	ExtractFrame(ctx context.Context, index int, dest string) error
	// Close releases the handle. Calling it more than once is a no-op.
	Close() error
}

// Decoder opens decode handles.
type Decoder interface {
	Open(ctx context.Context, path string) (Handle, error)
}
