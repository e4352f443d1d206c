// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads provider API keys from a directory of plain-text files.
// Each known key file holds one secret: the filename is the key name and the
// file contents (trimmed) are the value. Files that are not one of the known
// keys are ignored, so stray notes or editor backups in the directory never
// leak into the configuration.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Key filenames the engine consumes.
const (
	AnthropicAPIKey = "anthropic-api-key"
	GeminiAPIKey    = "gemini-api-key"
	TavilyAPIKey    = "tavily-api-key"
)

var knownKeys = []string{AnthropicAPIKey, GeminiAPIKey, TavilyAPIKey}

// Load reads the known key files in dir and returns a map of key name to
// trimmed contents. A missing directory or missing key files are not errors;
// Load returns a map with only the keys that were present and non-empty.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, name := range knownKeys {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			}
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}
