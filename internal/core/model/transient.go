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

import (
	"strconv"
)

// ActionReport is the JSON document the model is asked to return. Actions is a
// pointer so a response that omits the key can be told apart from one that
// reports no actions.
type ActionReport struct {
	Actions *[]*FencingAction `json:"actions"`
	Summary string            `json:"summary"`
}

// FrameSample is the result of sampling frames at a set of timestamps.
type FrameSample struct {
	Frames  map[float64]string // Requested timestamp to frame artifact path.
	Skipped []float64          // Timestamps past the end of the stream or that failed to decode.
}

// NewFrameSample returns an empty sample result.
func NewFrameSample() *FrameSample {
	return &FrameSample{Frames: make(map[float64]string), Skipped: make([]float64, 0)}
}

// FramesByLabel converts the float keyed map into one keyed by the shortest
// decimal form of each timestamp, suitable for JSON.
func (f *FrameSample) FramesByLabel() map[string]string {
	out := make(map[string]string, len(f.Frames))
	for ts, path := range f.Frames {
		out[TimestampLabel(ts)] = path
	}
	return out
}

// TimestampLabel formats a timestamp in seconds, e.g. 1.5 -> "1.5".
func TimestampLabel(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}
