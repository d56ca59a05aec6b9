package embed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder_OllamaTimeoutEnvVar(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     time.Duration
	}{
		{name: "valid duration seconds", envValue: "120s", want: 120 * time.Second},
		{name: "valid duration minutes", envValue: "5m", want: 5 * time.Minute},
		{name: "invalid duration uses default", envValue: "invalid", want: DefaultTimeout},
		{name: "empty uses default", envValue: "", want: DefaultTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := os.Getenv("FATHOM_OLLAMA_TIMEOUT")
			defer os.Setenv("FATHOM_OLLAMA_TIMEOUT", orig)

			if tt.envValue != "" {
				os.Setenv("FATHOM_OLLAMA_TIMEOUT", tt.envValue)
			} else {
				os.Unsetenv("FATHOM_OLLAMA_TIMEOUT")
			}

			cfg := DefaultOllamaConfig()
			if timeoutStr := os.Getenv("FATHOM_OLLAMA_TIMEOUT"); timeoutStr != "" {
				if timeout, err := time.ParseDuration(timeoutStr); err == nil {
					cfg.Timeout = timeout
				}
			}

			assert.Equal(t, tt.want, cfg.Timeout)
		})
	}
}

func TestNewEmbedder_OllamaUnavailable_ReturnsError(t *testing.T) {
	origHost := os.Getenv("FATHOM_OLLAMA_HOST")
	defer os.Setenv("FATHOM_OLLAMA_HOST", origHost)
	os.Setenv("FATHOM_OLLAMA_HOST", "http://localhost:59999")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	embedder, err := NewEmbedder(ctx, ProviderOllama, "")
	require.Error(t, err)
	assert.Nil(t, embedder)
	assert.Contains(t, err.Error(), "ollama unavailable")
}

func TestNewEmbedder_RejectsUnknownProvider(t *testing.T) {
	_, err := NewEmbedder(context.Background(), ProviderType("bogus"), "")
	require.Error(t, err)
}

func TestParseProvider_DefaultsToOllama(t *testing.T) {
	assert.Equal(t, ProviderOllama, ParseProvider(""))
	assert.Equal(t, ProviderOllama, ParseProvider("ollama"))
	assert.Equal(t, ProviderOllama, ParseProvider("unknown"))
}

func TestIsOllamaModelName_WithTag(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "ollama model with tag", model: "nomic-embed-text:latest", want: true},
		{name: "qwen3 with size tag", model: "qwen3-embedding:8b", want: true},
		{name: "model with version tag", model: "bge-small:v1.5", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOllamaModelName(tt.model))
		})
	}
}

func TestIsOllamaModelName_GGUFExtension(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "gguf file", model: "model.gguf", want: false},
		{name: "gguf with path", model: "/path/to/nomic-embed-text.gguf", want: false},
		{name: "uppercase GGUF", model: "model.GGUF", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOllamaModelName(tt.model))
		})
	}
}

func TestIsOllamaModelName_VersionPattern(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "model with version number", model: "nomic-embed-text-v1.5", want: false},
		{name: "bge with version", model: "bge-small-en-v1.5", want: false},
		{name: "v1 suffix", model: "model-v1", want: false},
		{name: "v2 suffix", model: "model-v2", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOllamaModelName(tt.model))
		})
	}
}

func TestIsOllamaModelName_PlainNames(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "plain name no tag", model: "nomic-embed-text", want: false},
		{name: "single word", model: "embedding", want: false},
		{name: "empty string", model: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOllamaModelName(tt.model))
		})
	}
}
