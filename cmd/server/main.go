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

// Package main is the entry point of the fencing judge server. It loads the
// configuration, sets up logging and telemetry, wires the services and
// serves the API under /api until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/fencing-judge/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	config, err := GetConfig()
	if err != nil {
		log.Fatal(err)
	}

	logFile, err := telemetry.SetupLogging(config.Application.LogFile, telemetry.ParseLevel(config.Application.LogLevel))
	if err != nil {
		log.Fatal(err)
	}
	defer logFile.Close()
	slog.Info("logging initialized", "level", config.Application.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("failed to set up OpenTelemetry", "error", err)
		os.Exit(1)
	}

	if err := InitState(ctx); err != nil {
		slog.Error("failed to initialize state", "error", err)
		os.Exit(1)
	}
	slog.Info("state initialized")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(config.Application.Name))
	r.Use(cors.Default())
	r.MaxMultipartMemory = config.Storage.MaxUploadBytes

	r.Static("/thumbnails", config.Storage.ThumbnailsPath())
	r.Static("/frames", config.Storage.FramesPath())
	apiGroup := r.Group("/api")
	{
		state.handlers.Register(apiGroup)
	}

	srv := &http.Server{
		Addr:    config.Address(),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to listen", "address", srv.Addr, "error", err)
			cancel()
		}
	}()
	slog.Info("server ready", "address", srv.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	if err := state.Shutdown(shutdownCtx); err != nil {
		slog.Error("background shutdown incomplete", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("telemetry shutdown failed", "error", err)
	}
	slog.Info("server exited")
}
