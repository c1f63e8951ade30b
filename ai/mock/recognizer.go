package mock

import (
	"context"
	"sync"
)

// MockRecognizer is a test double for ai.TextRecognizer.
type MockRecognizer struct {
	// RecognizeTextFunc is called by RecognizeText if set.
	// If nil, the scripted blocks for the path are returned.
	RecognizeTextFunc func(ctx context.Context, path string) ([]string, error)

	mu        sync.Mutex
	blocks    map[string][]string
	callCount int
}

// NewMockRecognizer creates a recognizer that returns no text for any image.
func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{blocks: make(map[string][]string)}
}

// WithBlocks scripts the text blocks returned for path.
func (m *MockRecognizer) WithBlocks(path string, blocks ...string) *MockRecognizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[path] = blocks
	return m
}

// RecognizeText returns the scripted blocks for path.
func (m *MockRecognizer) RecognizeText(ctx context.Context, path string) ([]string, error) {
	m.mu.Lock()
	m.callCount++
	blocks := m.blocks[path]
	m.mu.Unlock()

	if m.RecognizeTextFunc != nil {
		return m.RecognizeTextFunc(ctx, path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]string(nil), blocks...), nil
}

// CallCount returns the number of times RecognizeText was called.
func (m *MockRecognizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
