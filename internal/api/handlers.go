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

// Package api defines the HTTP routes of the server. Every error response has
// the body {"detail": "<message>"}.
//
// Routes, relative to the group passed to Register:
//   - POST /upload               store a video from the multipart field "file"
//   - GET  /videos               list stored videos
//   - GET  /videos/:filename     serve a stored video
//   - GET  /metadata/:filename   stream properties and thumbnail
//   - POST /frames/:filename     extract frames at {"timestamps": [...]}
//   - GET  /analyze/:filename    run the action analysis
//   - GET  /health               liveness
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/fencing-judge/internal/core/commands"
	"github.com/jaycherian/fencing-judge/internal/core/cor"
	"github.com/jaycherian/fencing-judge/internal/core/services"
	"github.com/jaycherian/fencing-judge/internal/core/workflow"
)

// Handlers holds the services the routes delegate to.
type Handlers struct {
	Store    *services.VideoStore
	Metadata *services.MetadataExtractor
	Frames   *services.FrameSampler
	Analysis *services.AnalysisService
	Runner   *workflow.BackgroundRunner // Runs Ingest after each upload; nil disables it.
	Ingest   cor.Command
}

type frameRequest struct {
	Timestamps []float64 `json:"timestamps" binding:"required"`
}

// Register adds the routes to r.
func (h *Handlers) Register(r *gin.RouterGroup) {
	r.POST("/upload", h.Upload)
	r.GET("/analyze/:filename", h.Analyze)
	r.GET("/metadata/:filename", h.VideoMetadata)
	r.POST("/frames/:filename", h.SampleFrames)
	r.GET("/health", h.Health)

	videos := r.Group("/videos")
	{
		videos.GET("", h.ListVideos)
		videos.GET("/:filename", h.ServeVideo)
	}
}

func (h *Handlers) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		abortWithDetail(c, http.StatusBadRequest, "No file provided")
		return
	}

	contentType := fh.Header.Get("Content-Type")
	if !services.IsVideoContentType(contentType) {
		abortWithDetail(c, http.StatusBadRequest, "File must be a video")
		return
	}

	src, err := fh.Open()
	if err != nil {
		abortWithError(c, err, "Upload failed: ")
		return
	}
	defer src.Close()

	ctx := c.Request.Context()
	stored, err := h.Store.Store(ctx, src, fh.Filename, contentType)
	if err != nil {
		if StatusFor(err) == http.StatusBadRequest {
			abortWithDetail(c, http.StatusBadRequest, "File must be a video")
			return
		}
		abortWithError(c, err, "Upload failed: ")
		return
	}

	if h.Runner != nil && h.Ingest != nil {
		job := workflow.ChainJob(h.Ingest, map[string]interface{}{commands.VideoPathParam: stored.Path})
		if err := h.Runner.Submit(ctx, "ingest "+stored.ID, job); err != nil {
			slog.WarnContext(ctx, "ingest not scheduled", "filename", stored.ID, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"filename": stored.ID, "status": "uploaded"})
}

func (h *Handlers) Analyze(c *gin.Context) {
	filename := c.Param("filename")

	analysis, err := h.Analysis.Analyze(c.Request.Context(), filename)
	if err != nil {
		if StatusFor(err) == http.StatusNotFound {
			abortWithDetail(c, http.StatusNotFound, "Video not found")
			return
		}
		abortWithError(c, err, "Analysis failed: ")
		return
	}

	c.JSON(http.StatusOK, gin.H{"filename": filename, "analysis": analysis})
}

func (h *Handlers) ListVideos(c *gin.Context) {
	names, err := h.Store.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err, "Failed to list videos: ")
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": names})
}

func (h *Handlers) ServeVideo(c *gin.Context) {
	path, err := h.Store.Resolve(c.Param("filename"))
	if err != nil {
		abortWithDetail(c, http.StatusNotFound, "Video not found")
		return
	}
	c.File(path)
}

func (h *Handlers) VideoMetadata(c *gin.Context) {
	path, err := h.Store.Resolve(c.Param("filename"))
	if err != nil {
		abortWithDetail(c, http.StatusNotFound, "Video not found")
		return
	}

	metadata, err := h.Metadata.Extract(c.Request.Context(), path)
	if err != nil {
		abortWithError(c, err, "Metadata extraction failed: ")
		return
	}
	c.JSON(http.StatusOK, metadata)
}

func (h *Handlers) SampleFrames(c *gin.Context) {
	filename := c.Param("filename")
	var req frameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithDetail(c, http.StatusBadRequest, "Body must be {\"timestamps\": [seconds, ...]}")
		return
	}

	path, err := h.Store.Resolve(filename)
	if err != nil {
		abortWithDetail(c, http.StatusNotFound, "Video not found")
		return
	}

	sample, err := h.Frames.Sample(c.Request.Context(), path, req.Timestamps)
	if err != nil {
		abortWithError(c, err, "Frame sampling failed: ")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"filename": filename,
		"frames":   sample.FramesByLabel(),
		"skipped":  sample.Skipped,
	})
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
