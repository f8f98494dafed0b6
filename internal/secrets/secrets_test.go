// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cafe-collector/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T) string
		want   map[string]string
		errMsg string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, OpenAIKey, "  sk-abc123  \n")
				writeFile(t, dir, GoogleMapsKey, "AIza789")
				writeFile(t, dir, ContentfulSpaceID, "space42\n")
				return dir
			},
			want: map[string]string{
				OpenAIKey:         "sk-abc123",
				GoogleMapsKey:     "AIza789",
				ContentfulSpaceID: "space42",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, AnthropicKey, "valid-key")
				writeFile(t, dir, "empty-key", "")
				writeFile(t, dir, "whitespace-only", "   \n\t  ")
				return dir
			},
			want: map[string]string{
				AnthropicKey: "valid-key",
			},
		},
		{
			name: "skips dotfiles",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".hidden-key", "secret")
				writeFile(t, dir, GoogleMapsKey, "AIza_real")
				return dir
			},
			want: map[string]string{
				GoogleMapsKey: "AIza_real",
			},
		},
		{
			name: "skips subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, AnthropicKey, "ak_123")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: map[string]string{
				AnthropicKey: "ak_123",
			},
		},
		{
			name: "returns empty map for empty directory",
			setup: func(t *testing.T) string {
				return t.TempDir()
			},
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setup(t)
			got, err := Load(dir)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, OpenAIKey, "value123")

	// Create a file then remove read permission.
	badPath := filepath.Join(dir, "bad-key")
	require.NoError(t, os.WriteFile(badPath, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(badPath, 0o644) })

	got, err := Load(dir)
	require.NoError(t, err)
	// The good file should still be returned; the bad file is skipped with a warning.
	assert.Equal(t, "value123", got[OpenAIKey])
	_, hasBad := got["bad-key"]
	assert.False(t, hasBad, "unreadable file should not appear in result")
}

func TestApply(t *testing.T) {
	s := map[string]string{
		OpenAIKey:         "sk-file",
		AnthropicKey:      "ak-file",
		GoogleMapsKey:     "maps-file",
		ContentfulSpaceID: "space-file",
	}

	t.Run("fills empty values", func(t *testing.T) {
		cfg := types.DefaultConfig()
		Apply(&cfg, s)
		assert.Equal(t, "sk-file", cfg.LLM.APIKey)
		assert.Equal(t, "maps-file", cfg.Geocode.APIKey)
		assert.Equal(t, "space-file", cfg.Export.SpaceID)
	})

	t.Run("uses the key of the configured provider", func(t *testing.T) {
		cfg := types.DefaultConfig()
		cfg.LLM.Provider = types.ProviderAnthropic
		Apply(&cfg, s)
		assert.Equal(t, "ak-file", cfg.LLM.APIKey)
	})

	t.Run("keeps values already set", func(t *testing.T) {
		cfg := types.DefaultConfig()
		cfg.LLM.APIKey = "sk-env"
		cfg.Geocode.APIKey = "maps-env"
		Apply(&cfg, s)
		assert.Equal(t, "sk-env", cfg.LLM.APIKey)
		assert.Equal(t, "maps-env", cfg.Geocode.APIKey)
	})

	t.Run("missing secrets leave values empty", func(t *testing.T) {
		cfg := types.DefaultConfig()
		Apply(&cfg, map[string]string{})
		assert.Empty(t, cfg.LLM.APIKey)
		assert.Empty(t, cfg.Geocode.APIKey)
	})
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
