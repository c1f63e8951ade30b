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


package openai

import (
	"log/slog"

	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/ai/ocr"
)

// Provider implements ai.AIProvider with an OpenAI-compatible embedder and,
// when an OCR endpoint is configured, an HTTP text recognizer.
type Provider struct {
	config     *ai.Config
	embedder   *Embedder
	recognizer ai.TextRecognizer
	logger     *slog.Logger
}

// NewProvider creates a provider from config.
//
// Returns ai.AIProvider interface to enforce abstraction.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-provider")

	var recognizer ai.TextRecognizer
	if config.OCREndpoint != "" {
		recognizer, err = ocr.NewRecognizer(config)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Debug("no OCR endpoint configured, image extraction disabled")
	}

	return &Provider{
		config:     config,
		embedder:   embedder,
		recognizer: recognizer,
		logger:     logger,
	}, nil
}

func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// TextRecognizer returns nil when no OCR endpoint is configured.
func (p *Provider) TextRecognizer() ai.TextRecognizer {
	return p.recognizer
}

func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
