package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
	assert.Equal(t, "none", cfg.EmbeddingToken)
	assert.Equal(t, 64, cfg.EmbeddingBatchSize)
	assert.Empty(t, cfg.OCREndpoint)
	assert.Equal(t, 60*time.Second, cfg.OCRTimeout)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()

		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with multiple options", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://custom:8080/v1"),
			WithEmbeddingModel("custom-embed"),
			WithEmbeddingToken("secret"),
			WithEmbeddingBatchSize(16),
			WithOCREndpoint("http://ocr:8866/predict"),
			WithOCRTimeout(5*time.Second),
		)

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "custom-embed", cfg.EmbeddingModel)
		assert.Equal(t, "secret", cfg.EmbeddingToken)
		assert.Equal(t, 16, cfg.EmbeddingBatchSize)
		assert.Equal(t, "http://ocr:8866/predict", cfg.OCREndpoint)
		assert.Equal(t, 5*time.Second, cfg.OCRTimeout)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{"already has /v1", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"missing /v1", "http://localhost:11434", "http://localhost:11434/v1"},
		{"has trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"empty host", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host}

			cfg.Normalize()

			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
		})
	}

	t.Run("fills zero values", func(t *testing.T) {
		cfg := &Config{OCREndpoint: "  http://ocr/x "}
		cfg.Normalize()

		assert.Equal(t, "none", cfg.EmbeddingToken)
		assert.Equal(t, 64, cfg.EmbeddingBatchSize)
		assert.Equal(t, 60*time.Second, cfg.OCRTimeout)
		assert.Equal(t, "http://ocr/x", cfg.OCREndpoint)
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			EmbeddingHost:  "http://localhost:11434",
			EmbeddingModel: "embeddinggemma",
		}
	}

	t.Run("valid config", func(t *testing.T) {
		cfg := valid()
		require.NoError(t, cfg.Validate())

		// Should also normalize
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing embedding host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost"},
		{"missing embedding model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel"},
		{"negative batch size", func(c *Config) { c.EmbeddingBatchSize = -1 }, "EmbeddingBatchSize"},
		{"negative ocr timeout", func(c *Config) { c.OCRTimeout = -time.Second }, "OCRTimeout"},
		{"ocr endpoint without scheme", func(c *Config) { c.OCREndpoint = "ocr:8866" }, "OCREndpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfigValidate_Integration(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
	require.NoError(t, DefaultConfig().Validate())
}
