// Package ocr implements ai.TextRecognizer against an HTTP OCR service.
//
// Images are posted as a multipart "image" field. The service answers with
// JSON of the form:
//
//	{"code_code": 200, "results": [{"text": "..."}, ...]}
//
// A plain "code" field is accepted in place of "code_code".
package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/poiesic/docingest/ai"
)

var (
	// ErrEndpointRequired is returned when no OCR endpoint is configured.
	ErrEndpointRequired = errors.New("ocr endpoint is required")

	// ErrRecognitionFailed is returned when the service rejects an image.
	ErrRecognitionFailed = errors.New("ocr recognition failed")
)

const statusOK = 200

type response struct {
	CodeCode int `json:"code_code"`
	Code     int `json:"code"`
	Results  []struct {
		Text string `json:"text"`
	} `json:"results"`
}

func (r *response) status() int {
	if r.CodeCode != 0 {
		return r.CodeCode
	}
	return r.Code
}

// Recognizer posts images to an OCR service.
type Recognizer struct {
	endpoint string
	client   *resty.Client
	logger   *slog.Logger
}

var _ ai.TextRecognizer = (*Recognizer)(nil)

// Option configures a Recognizer.
type Option func(*Recognizer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recognizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "ocr-recognizer")
		return nil
	}
}

// WithRetries sets how many times a failed request is retried.
// Default is 2.
func WithRetries(count int) Option {
	return func(r *Recognizer) error {
		if count < 0 {
			return fmt.Errorf("retry count must not be negative, got %d", count)
		}
		r.client.SetRetryCount(count)
		return nil
	}
}

func newRecognizer(config *ai.Config, opts ...Option) (*Recognizer, error) {
	if config == nil || config.OCREndpoint == "" {
		return nil, ErrEndpointRequired
	}

	timeout := config.OCRTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})

	r := &Recognizer{
		endpoint: config.OCREndpoint,
		client:   client,
		logger:   slog.Default().With("component", "ocr-recognizer"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewRecognizer creates a recognizer for config.OCREndpoint.
func NewRecognizer(config *ai.Config, opts ...Option) (ai.TextRecognizer, error) {
	return newRecognizer(config, opts...)
}

// RecognizeText uploads the image at path and returns the recognized text blocks.
func (r *Recognizer) RecognizeText(ctx context.Context, path string) ([]string, error) {
	start := time.Now()

	resp, err := r.client.R().
		SetContext(ctx).
		SetFile("image", path).
		Post(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("ocr request for %s: %w", filepath.Base(path), err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: http status %d", ErrRecognitionFailed, resp.StatusCode())
	}

	var body response
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %w", ErrRecognitionFailed, err)
	}
	if body.status() != statusOK {
		return nil, fmt.Errorf("%w: service code %d", ErrRecognitionFailed, body.status())
	}

	texts := make([]string, 0, len(body.Results))
	for _, result := range body.Results {
		texts = append(texts, result.Text)
	}

	r.logger.Debug("recognized image",
		"file", filepath.Base(path),
		"blocks", len(texts),
		"elapsed", time.Since(start))
	return texts, nil
}
