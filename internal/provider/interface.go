// Package provider defines the configuration and factory for selecting and
// constructing LLM backend implementations at runtime.
// Supported backends: OpenRouter, OpenAI, Azure OpenAI, Ollama, Google Gemini.
package provider

import (
	"fmt"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOpenRouter selects the OpenRouter API gateway (default).
	BackendOpenRouter Backend = "openrouter"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOpenRouter holds OpenRouter-specific settings.
type ProviderOpenRouter struct {
	// APIKey is the OpenRouter API key.
	APIKey string
	// BaseURL is the OpenRouter API base (default: https://openrouter.ai/api/v1).
	BaseURL string
	// Model is the OpenRouter model slug (e.g. "openai/gpt-3.5-turbo").
	Model string
}

// ProviderOpenAI holds OpenAI-specific settings.
type ProviderOpenAI struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the model name (e.g. "gpt-4o").
	Model string
}

// ProviderAzureOpenAI holds Azure OpenAI Service-specific settings.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure OpenAI API key.
	APIKey string
	// Endpoint is the Azure resource endpoint (https://<resource>.openai.azure.com).
	Endpoint string
	// Deployment is the Azure deployment name.
	Deployment string
	// APIVersion is the Azure OpenAI REST API version (e.g. "2024-02-01").
	APIVersion string
}

// ProviderOllama holds Ollama-specific settings.
type ProviderOllama struct {
	// Host is the Ollama server base URL (default: http://localhost:11434).
	Host string
	// Model is the model name (e.g. "llama3").
	Model string
}

// ProviderGemini holds Google Gemini-specific settings.
type ProviderGemini struct {
	// APIKey is the Google AI Studio API key.
	APIKey string
	// Model is the model name (e.g. "gemini-1.5-pro").
	Model string
}

// SharedTuning holds generation parameters shared across all backends.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the section matching
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	OpenRouter  ProviderOpenRouter
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ollama      ProviderOllama
	Gemini      ProviderGemini
	Tuning      SharedTuning
}

// Validate checks that the section selected by Backend carries everything the
// backend factory needs. Error messages name the env var an operator would set.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOpenRouter:
		if c.OpenRouter.APIKey == "" {
			return fmt.Errorf("provider: OPENROUTER_API_KEY is required for openrouter backend")
		}
		if c.OpenRouter.Model == "" {
			return fmt.Errorf("provider: OPENROUTER_MODEL is required for openrouter backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q — valid values: openrouter, openai, azure, ollama, gemini", c.Backend)
	}
	return nil
}
