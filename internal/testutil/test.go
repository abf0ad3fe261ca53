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

// Package test holds helpers shared by the package test suites: a loader for
// the test configuration, fixture videos, and in-memory fakes for the decoder
// and the Gemini model.
package test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jaycherian/fencing-judge/internal/cloud"
)

// Mp4Header is enough of an ISO BMFF ftyp box for content sniffing to
// recognize the bytes as video/mp4.
var Mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2',
	0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm',
}

func HandleErr(err error, t *testing.T) {
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ConfigDir returns the absolute path of the repository's configs directory.
func ConfigDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "configs")
}

// SetupOS points the configuration loader at the test overlay.
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, ConfigDir())
	if err != nil {
		return err
	}
	err = os.Setenv(cloud.EnvConfigRuntime, "test")
	return err
}

// GetConfig loads the test configuration and redirects every storage
// directory into a per test temporary directory.
func GetConfig(t *testing.T) *cloud.Config {
	t.Helper()
	HandleErr(SetupOS(), t)

	config := cloud.NewConfig()
	HandleErr(cloud.LoadConfig(config), t)

	root := t.TempDir()
	config.Storage.UploadDir = filepath.Join(root, "uploads")
	config.Storage.ArtifactsRoot = root
	config.Storage.ThumbnailsDir = "thumbnails"
	config.Storage.FramesDir = "frames"
	config.Storage.ArchiveBucket = ""
	HandleErr(os.MkdirAll(config.Storage.UploadDir, 0o755), t)
	return config
}

// WriteFixtureVideo writes a small file with an mp4 signature and returns its path.
func WriteFixtureVideo(t *testing.T, dir string, name string) string {
	t.Helper()
	HandleErr(os.MkdirAll(dir, 0o755), t)
	path := filepath.Join(dir, name)
	data := append(append([]byte{}, Mp4Header...), make([]byte, 1024)...)
	HandleErr(os.WriteFile(path, data, 0o644), t)
	return path
}

// CountFiles returns the number of entries in dir, or 0 if it does not exist.
func CountFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0
	}
	HandleErr(err, t)
	return len(entries)
}
