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

// This file defines the command that prepares the video for the model.
//
// Logic Flow:
// Videos are sent inline with the request rather than through a separate
// upload API, so nothing has to be cleaned up upstream afterwards.
//
//  1. Read the stored video path from the context.
//  2. Load the whole file and record its size on a histogram.
//  3. Compare the base64 size with the configured inline limit. Oversized
//     payloads are logged and counted but still sent.
//  4. Wrap the bytes as a genai part with a MIME type derived from the
//     file extension.
package commands

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/fencing-judge/internal/cloud"
	"github.com/jaycherian/fencing-judge/internal/core/cor"
)

// DefaultVideoMIMEType is declared for extensions without a mapping.
const DefaultVideoMIMEType = "video/mp4"

var videoMIMETypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
}

// MIMETypeForPath maps a video's extension to the MIME type sent upstream.
func MIMETypeForPath(path string) string {
	if mimeType, ok := videoMIMETypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mimeType
	}
	return DefaultVideoMIMEType
}

// VideoEncoder loads the whole video into memory as an inline request part.
// Payloads whose base64 form exceeds maxInlineBytes are sent anyway; the
// oversize is only logged and counted.
type VideoEncoder struct {
	cor.BaseCommand
	maxInlineBytes   int
	oversizeCounter  metric.Int64Counter
	payloadHistogram metric.Int64Histogram
}

// NewVideoEncoder is the constructor for the VideoEncoder command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - maxInlineBytes: The inline request limit, measured on the base64 form.
//
// Outputs:
//   - *VideoEncoder: The command, reading VideoPathParam and writing VideoContentParam.
func NewVideoEncoder(name string, maxInlineBytes int) *VideoEncoder {
	out := &VideoEncoder{BaseCommand: *cor.NewBaseCommand(name), maxInlineBytes: maxInlineBytes}
	out.InputParamName = VideoPathParam
	out.OutputParamName = VideoContentParam
	out.oversizeCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.payload.oversize", name))
	out.payloadHistogram, _ = out.GetMeter().Int64Histogram(fmt.Sprintf("%s.payload.bytes", name))
	return out
}

func (v *VideoEncoder) Execute(context cor.Context) {
	path := context.Get(v.GetInputParam()).(string)

	data, err := os.ReadFile(path)
	if err != nil {
		v.Fail(context, fmt.Errorf("failed to read video %s: %w", path, err))
		return
	}

	encodedSize := base64.StdEncoding.EncodedLen(len(data))
	if v.payloadHistogram != nil {
		v.payloadHistogram.Record(context.GetContext(), int64(encodedSize))
	}
	if v.maxInlineBytes > 0 && encodedSize > v.maxInlineBytes {
		if v.oversizeCounter != nil {
			v.oversizeCounter.Add(context.GetContext(), 1)
		}
		slog.WarnContext(context.GetContext(), "encoded video exceeds inline payload limit, sending anyway",
			"path", path, "encoded_bytes", encodedSize, "limit", v.maxInlineBytes)
	}

	v.Succeed(context, cloud.NewInlineVideo(data, MIMETypeForPath(path)))
}
