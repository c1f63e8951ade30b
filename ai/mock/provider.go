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


package mock

import "github.com/poiesic/docingest/ai"

// MockProvider is a test double for ai.AIProvider.
// It aggregates mock embedder and recognizer instances.
type MockProvider struct {
	embedder   *MockEmbedder
	recognizer *MockRecognizer
}

// NewMockProvider creates a new mock provider with default mock services.
//
// Returns ai.AIProvider interface for consistency with production constructors.
// Use GetMockEmbedder()/GetMockRecognizer() to access concrete types for test assertions.
func NewMockProvider() ai.AIProvider {
	return &MockProvider{
		embedder:   NewMockEmbedder(),
		recognizer: NewMockRecognizer(),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
func NewMockProviderWithServices(embedder *MockEmbedder, recognizer *MockRecognizer) ai.AIProvider {
	return &MockProvider{
		embedder:   embedder,
		recognizer: recognizer,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// TextRecognizer returns the mock recognizer.
func (p *MockProvider) TextRecognizer() ai.TextRecognizer {
	if p.recognizer == nil {
		return nil
	}
	return p.recognizer
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockRecognizer returns the underlying mock recognizer for test assertions.
func (p *MockProvider) GetMockRecognizer() *MockRecognizer {
	return p.recognizer
}
