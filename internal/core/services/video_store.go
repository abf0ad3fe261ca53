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

// Package services contains the components the HTTP layer calls directly:
// the video store, the metadata extractor, the frame sampler and the
// analysis service.
//
// VideoStore Logic Flow:
//  1. Store rejects any declared content type outside video/* before touching disk.
//  2. The leading bytes are sniffed; content recognised as something other
//     than video is rejected whatever the declared type.
//  3. A name of the form <uuid><ext> is generated. The extension comes from
//     the original file name with its case kept, or from the sniffed type
//     when missing. Names that Resolve could never serve are rejected.
//  4. The file is created exclusively so an existing video is never overwritten.
//  5. List and Resolve only ever look at regular files directly under Root.
package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"

	"github.com/jaycherian/fencing-judge/internal/core/model"
)

// sniffLength is the number of leading bytes filetype needs to match a signature.
const sniffLength = 261

// VideoStore keeps uploaded videos in a flat directory.
type VideoStore struct {
	Root string // Directory holding the videos; created on first write.
}

func NewVideoStore(root string) *VideoStore {
	return &VideoStore{Root: root}
}

// IsVideoContentType reports whether a declared MIME type is in the video category.
func IsVideoContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "video/")
}

// Store writes r to a new uniquely named file.
//
// Inputs:
//   - ctx: Checked before any I/O and used for logging.
//   - r: The upload body. It is read to the end.
//   - originalFilename: The client supplied name, used for its extension only.
//   - contentType: The declared MIME type; must be video/*.
//
// Outputs:
//   - *model.StoredVideo: The stored file, identified by its generated name.
//   - error: model.ErrInvalidMediaType for rejected uploads, otherwise an I/O error.
func (s *VideoStore) Store(ctx context.Context, r io.Reader, originalFilename string, contentType string) (*model.StoredVideo, error) {
	if !IsVideoContentType(contentType) {
		return nil, fmt.Errorf("content type %q: %w", contentType, model.ErrInvalidMediaType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader := bufio.NewReaderSize(r, sniffLength)
	kind := sniff(reader)
	if kind != filetype.Unknown && !strings.HasPrefix(kind.MIME.Value, "video/") {
		return nil, fmt.Errorf("content type %q declared but content is %s: %w", contentType, kind.MIME.Value, model.ErrInvalidMediaType)
	}
	ext := filepath.Ext(filepath.Base(originalFilename))
	if ext == "" && kind != filetype.Unknown {
		ext = "." + kind.Extension
	}
	id := uuid.NewString() + ext
	if !isPlainName(id) {
		return nil, fmt.Errorf("extension %q: %w", ext, model.ErrInvalidMediaType)
	}

	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(s.Root, id)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	written, err := io.Copy(file, reader)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.WarnContext(ctx, "failed to remove partial upload", "path", path, "error", rmErr)
		}
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	slog.InfoContext(ctx, "stored video", "id", id, "original", originalFilename, "bytes", written)
	return &model.StoredVideo{
		ID:               id,
		OriginalFilename: originalFilename,
		Extension:        ext,
		Size:             written,
		Path:             path,
	}, nil
}

// sniff peeks at the stream without consuming it.
func sniff(reader *bufio.Reader) types.Type {
	head, _ := reader.Peek(sniffLength)
	kind, err := filetype.Match(head)
	if err != nil {
		return filetype.Unknown
	}
	return kind
}

// List returns the names of the stored videos in lexicographic order. A
// missing directory is treated as empty.
func (s *VideoStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", s.Root, err)
	}

	// os.ReadDir returns entries sorted by file name.
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	slog.DebugContext(ctx, "listed videos", "count", len(names))
	return names, nil
}

// Resolve maps a stored identifier to its path. Identifiers that are not a
// plain file name never resolve.
func (s *VideoStore) Resolve(id string) (string, error) {
	if !isPlainName(id) {
		return "", fmt.Errorf("%q: %w", id, model.ErrNotFound)
	}
	path := filepath.Join(s.Root, id)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%q: %w", id, model.ErrNotFound)
	}
	return path, nil
}

func isPlainName(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}
