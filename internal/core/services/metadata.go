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

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jellydator/ttlcache/v2"

	"github.com/jaycherian/fencing-judge/internal/core/model"
	"github.com/jaycherian/fencing-judge/internal/video"
)

// MetadataExtractor reads stream properties and writes a thumbnail of the
// first frame. When constructed with a positive TTL, results are cached per
// path, modification time and size.
type MetadataExtractor struct {
	decoder       video.Decoder
	thumbnailsDir string
	cache         *ttlcache.Cache
}

// NewMetadataExtractor creates the extractor.
//
// Inputs:
//   - decoder: Opens the videos, normally a *video.FFmpegDecoder.
//   - thumbnailsDir: Where <base>_thumb.jpg files are written.
//   - cacheTTL: How long results are cached. Zero or less disables the cache
//     and every call decodes the file again.
//
// Outputs:
//   - *MetadataExtractor: The extractor. Call Close when done to stop the cache janitor.
func NewMetadataExtractor(decoder video.Decoder, thumbnailsDir string, cacheTTL time.Duration) *MetadataExtractor {
	m := &MetadataExtractor{decoder: decoder, thumbnailsDir: thumbnailsDir}
	if cacheTTL > 0 {
		cache := ttlcache.NewCache()
		if err := cache.SetTTL(cacheTTL); err != nil {
			slog.Warn("metadata cache disabled", "error", err)
		} else {
			cache.SkipTTLExtensionOnHit(true)
			m.cache = cache
		}
	}
	return m
}

// ThumbnailPath returns the artifact path for the thumbnail of a video.
func (m *MetadataExtractor) ThumbnailPath(videoPath string) string {
	return filepath.Join(m.thumbnailsDir, model.BaseName(videoPath)+"_thumb.jpg")
}

// Extract returns the metadata of the video at path. A missing file fails
// with model.ErrFileNotFound and an undecodable one with model.ErrUnreadable.
// A thumbnail failure is logged and leaves Thumbnail empty.
func (m *MetadataExtractor) Extract(ctx context.Context, path string) (*model.VideoMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, model.ErrFileNotFound)
		}
		return nil, fmt.Errorf("%s: %w: %v", path, model.ErrUnreadable, err)
	}

	key := fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size())
	if m.cache != nil {
		if cached, err := m.cache.Get(key); err == nil {
			out := *cached.(*model.VideoMetadata)
			return &out, nil
		}
	}

	handle, err := m.decoder.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := handle.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close decode handle", "path", path, "error", err)
		}
	}()

	props := handle.Properties()
	out := &model.VideoMetadata{
		Filename:   filepath.Base(path),
		FPS:        props.FPS,
		FrameCount: max(props.FrameCount, 0),
		Width:      props.Width,
		Height:     props.Height,
	}
	out.Duration = model.ComputeDuration(out.FrameCount, out.FPS)

	thumbnail := m.ThumbnailPath(path)
	if err := handle.ExtractFrame(ctx, 0, thumbnail); err != nil {
		slog.WarnContext(ctx, "failed to create thumbnail", "path", path, "error", err)
	} else {
		out.Thumbnail = thumbnail
	}

	if m.cache != nil {
		cached := *out
		if err := m.cache.Set(key, &cached); err != nil {
			slog.WarnContext(ctx, "failed to cache metadata", "path", path, "error", err)
		}
	}
	return out, nil
}

// Close stops the cache janitor.
func (m *MetadataExtractor) Close() error {
	if m.cache == nil {
		return nil
	}
	return m.cache.Close()
}
