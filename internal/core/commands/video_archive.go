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

package commands

import (
	goctx "context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"

	"github.com/jaycherian/fencing-judge/internal/cloud"
	"github.com/jaycherian/fencing-judge/internal/core/cor"
)

// VideoArchive copies a stored video to a GCS bucket under the same name.
// The local file is left in place. On success the written object is stored
// in the context under cloud.GetGCSObjectName() as a *cloud.GCSObject.
//
// The copy streams the file through a storage.Writer, so memory use does not
// grow with the video size. A failed copy is recorded on the context and the
// upload is aborted, so no truncated object is left in the bucket.
type VideoArchive struct {
	cor.BaseCommand
	client *storage.Client
	bucket string
}

// NewVideoArchive is the constructor for the VideoArchive command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - client: An initialized Cloud Storage client.
//   - bucket: The destination bucket, without the gs:// prefix.
//
// Outputs:
//   - *VideoArchive: The command, reading VideoPathParam.
func NewVideoArchive(name string, client *storage.Client, bucket string) *VideoArchive {
	out := &VideoArchive{BaseCommand: *cor.NewBaseCommand(name), client: client, bucket: bucket}
	out.InputParamName = VideoPathParam
	out.OutputParamName = cloud.GetGCSObjectName()
	return out
}

func (c *VideoArchive) Execute(context cor.Context) {
	path := context.Get(c.GetInputParam()).(string)

	src, err := os.Open(path)
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to open file %s: %w", path, err))
		return
	}
	defer src.Close()

	target := &cloud.GCSObject{Bucket: c.bucket, Name: filepath.Base(path), MIMEType: MIMETypeForPath(path)}
	uploadCtx, cancel := goctx.WithCancel(context.GetContext())
	defer cancel()
	writer := c.client.Bucket(target.Bucket).Object(target.Name).NewWriter(uploadCtx)
	writer.ContentType = target.MIMEType

	written, err := io.Copy(writer, src)
	if err != nil {
		// Cancelling before Close aborts the upload instead of committing a truncated object.
		cancel()
		_ = writer.Close()
		c.Fail(context, fmt.Errorf("failed to copy %s to %s after %d bytes: %w", path, target.URI(), written, err))
		return
	}
	// The upload is only committed by Close.
	if err := writer.Close(); err != nil {
		c.Fail(context, fmt.Errorf("failed to finalize %s: %w", target.URI(), err))
		return
	}

	slog.InfoContext(context.GetContext(), "archived video", "path", path, "object", target.URI(), "bytes", written)
	c.Succeed(context, target)
}
