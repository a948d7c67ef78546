// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files.
// Each file in the directory is one secret: the filename is the key name and
// the trimmed file contents are the value.
//
// The CLI reads gemini-api-key. Environment variables GEMINI_API_KEY and
// GOOGLE_API_KEY are consulted when no file provides it.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// GeminiAPIKey is the secret file holding the Gemini API key.
const GeminiAPIKey = "gemini-api-key"

// geminiEnv lists the environment variables checked, in order, when the
// secrets directory has no Gemini key.
var geminiEnv = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "error", err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// Gemini returns the Gemini API key from loaded secrets, falling back to
// the environment. It returns "" when no key is configured.
func Gemini(loaded map[string]string) string {
	if key := loaded[GeminiAPIKey]; key != "" {
		return key
	}
	for _, name := range geminiEnv {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			return key
		}
	}
	return ""
}
