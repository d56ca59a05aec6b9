package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses Ollama's HTTP API for embeddings. It is the only
	// provider this module wires: title/keyword embedding similarity is a
	// fast-field signal (pkg/signal), not a core ranking dependency, so a
	// single cross-platform backend is enough.
	ProviderOllama ProviderType = "ollama"
)

// NewEmbedder creates an Ollama-backed embedder for the given model.
// FATHOM_OLLAMA_HOST, FATHOM_OLLAMA_MODEL and FATHOM_OLLAMA_TIMEOUT override
// the host, model and per-request timeout respectively.
// Query embedding caching is enabled by default; set FATHOM_EMBED_CACHE=false
// to disable it.
func NewEmbedder(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	if provider != "" && provider != ProviderOllama {
		return nil, fmt.Errorf("embed: unsupported provider %q", provider)
	}

	cfg := DefaultOllamaConfig()
	if model != "" {
		cfg.Model = model
	}
	if host := os.Getenv("FATHOM_OLLAMA_HOST"); host != "" {
		cfg.Host = host
	}
	if modelOverride := os.Getenv("FATHOM_OLLAMA_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}
	if timeoutStr := os.Getenv("FATHOM_OLLAMA_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ollama unavailable: %w", err)
	}

	var result Embedder = embedder
	if !isCacheDisabled() {
		result = NewCachedEmbedderWithDefaults(result)
	}
	return result, nil
}

func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("FATHOM_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// isOllamaModelName reports whether model looks like an Ollama model tag
// ("name:tag"). GGUF file paths and untagged names are not.
func isOllamaModelName(model string) bool {
	if strings.HasSuffix(strings.ToLower(model), ".gguf") {
		return false
	}
	return strings.Contains(model, ":")
}

// ParseProvider converts a string to a ProviderType, defaulting to Ollama.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "", "ollama":
		return ProviderOllama
	default:
		return ProviderOllama
	}
}

func (p ProviderType) String() string {
	return string(p)
}

// EmbedderInfo describes a live embedder instance.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo reports an embedder's model, dimensions, and liveness.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	return EmbedderInfo{
		Provider:   ProviderOllama,
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}
}

// MustNewEmbedder creates an embedder and panics on failure. Use only in
// tests or initialization code where failure is fatal.
func MustNewEmbedder(ctx context.Context, provider ProviderType, model string) Embedder {
	embedder, err := NewEmbedder(ctx, provider, model)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
