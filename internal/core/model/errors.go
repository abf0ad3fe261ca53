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

package model

import "errors"

// Sentinel errors shared by the storage, decoding and analysis layers. Callers
// wrap them with fmt.Errorf("...: %w", err) and the HTTP layer maps them to a
// status code with errors.Is.
var (
	// ErrInvalidMediaType is returned when an upload does not declare a video/* content type.
	ErrInvalidMediaType = errors.New("invalid media type")
	// ErrNotFound is returned when a stored video identifier does not resolve.
	ErrNotFound = errors.New("video not found")
	// ErrFileNotFound is returned when a path handed to the decoder does not exist.
	ErrFileNotFound = errors.New("file not found")
	// ErrUnreadable is returned when a decode handle cannot be opened.
	ErrUnreadable = errors.New("video unreadable")
	// ErrUpstream wraps any failure of the inference call, including timeouts
	// and responses that cannot be parsed into actions.
	ErrUpstream = errors.New("upstream inference failed")
)
