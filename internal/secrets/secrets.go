// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: openai-api-key, anthropic-api-key, google-maps-api-key,
// contentful-space-id.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

// Key file names.
const (
	OpenAIKey         = "openai-api-key"
	AnthropicKey      = "anthropic-api-key"
	GoogleMapsKey     = "google-maps-api-key"
	ContentfulSpaceID = "contentful-space-id"
)

// DefaultDir is the secrets directory used when none is configured.
const DefaultDir = ".secrets"

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
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
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := entry.Name()
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

// Apply fills credentials in cfg that are still empty. Values already set
// by the config file or the environment win. The LLM key is taken from the
// file matching cfg.LLM.Provider.
func Apply(cfg *types.Config, secrets map[string]string) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = secrets[key]
		}
	}
	switch cfg.LLM.Provider {
	case types.ProviderAnthropic:
		fill(&cfg.LLM.APIKey, AnthropicKey)
	default:
		fill(&cfg.LLM.APIKey, OpenAIKey)
	}
	fill(&cfg.Geocode.APIKey, GoogleMapsKey)
	fill(&cfg.Export.SpaceID, ContentfulSpaceID)
}
