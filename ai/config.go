// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string `yaml:"embedding_host"`

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingToken is the bearer token sent to the embedding service.
	// Local OpenAI-compatible servers accept any value.
	EmbeddingToken string `yaml:"embedding_token"`

	// EmbeddingBatchSize is the number of texts sent per embedding request.
	// Default: 64
	EmbeddingBatchSize int `yaml:"embedding_batch_size"`

	// OCREndpoint is the URL images are posted to for text recognition.
	// Empty disables image extraction.
	OCREndpoint string `yaml:"ocr_endpoint"`

	// OCRTimeout bounds a single recognition request.
	// Default: 60s
	OCRTimeout time.Duration `yaml:"ocr_timeout"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithEmbeddingToken sets the embedding service token.
func WithEmbeddingToken(token string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingToken = token
	}
}

// WithEmbeddingBatchSize sets how many texts are embedded per request.
func WithEmbeddingBatchSize(size int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingBatchSize = size
	}
}

// WithOCREndpoint sets the OCR service URL.
func WithOCREndpoint(endpoint string) ConfigOption {
	return func(c *Config) {
		c.OCREndpoint = endpoint
	}
}

// WithOCRTimeout sets the per-request OCR timeout.
func WithOCRTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.OCRTimeout = timeout
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:      "http://localhost:11434/v1",
		EmbeddingModel:     "embeddinggemma",
		EmbeddingToken:     "none",
		EmbeddingBatchSize: 64,
		OCRTimeout:         60 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingHost("http://localhost:11434/v1"),
//	    WithOCREndpoint("http://localhost:8866/predict/ocr_system"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to the embedding host if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
		c.EmbeddingHost = c.EmbeddingHost + "/v1"
	}
	if c.EmbeddingToken == "" {
		c.EmbeddingToken = "none"
	}
	if c.EmbeddingBatchSize == 0 {
		c.EmbeddingBatchSize = 64
	}
	if c.OCRTimeout == 0 {
		c.OCRTimeout = 60 * time.Second
	}
	c.OCREndpoint = strings.TrimSpace(c.OCREndpoint)
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.EmbeddingBatchSize < 1 {
		return errors.New("ai config: EmbeddingBatchSize must be positive")
	}
	if c.OCRTimeout < 0 {
		return errors.New("ai config: OCRTimeout must not be negative")
	}
	if c.OCREndpoint != "" && !strings.HasPrefix(c.OCREndpoint, "http://") && !strings.HasPrefix(c.OCREndpoint, "https://") {
		return errors.New("ai config: OCREndpoint must be an http(s) URL")
	}
	return nil
}
