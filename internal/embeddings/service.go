// Package embeddings provides embedding generation via a TEI-compatible
// remote embedding service.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Encoder turns text into a vector. The memory engine depends on this
// interface rather than on *Service directly, so tests can substitute a fake.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Config holds configuration for the embedding service.
type Config struct {
	// Endpoint is the base URL of the TEI-compatible embedding service.
	Endpoint string

	// Model is the embedding model name, carried for logging/metrics only;
	// TEI's /embed endpoint does not take a model parameter.
	Model string

	// APIKey is an optional bearer token for the embedding service.
	APIKey string
}

// ConfigFromEnv creates a Config from environment variables, for use outside
// of the koanf-driven process configuration (e.g. standalone tooling).
func ConfigFromEnv() Config {
	endpoint := os.Getenv("ENGRAMA_EMBEDDING_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:8080"
	}
	model := os.Getenv("ENGRAMA_EMBEDDING_MODEL")
	if model == "" {
		model = "BAAI/bge-m3"
	}
	return Config{
		Endpoint: endpoint,
		Model:    model,
		APIKey:   os.Getenv("ENGRAMA_EMBEDDING_API_KEY"),
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint required", ErrInvalidConfig)
	}
	return nil
}

// Service encodes text into vectors by calling a remote TEI-compatible
// embedding service over HTTP.
type Service struct {
	config  Config
	client  *http.Client
	metrics *Metrics
}

// NewService creates a new embedding service with the given configuration.
func NewService(config Config, metrics *Metrics) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		config:  config,
		client:  &http.Client{Timeout: 30 * time.Second},
		metrics: metrics,
	}, nil
}

// teiRequest is the request body for the TEI /embed endpoint.
type teiRequest struct {
	Inputs   string `json:"inputs"`
	Truncate bool   `json:"truncate"`
}

// Encode generates an embedding for a single piece of text.
func (s *Service) Encode(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var genErr error
	defer func() {
		s.metrics.RecordGeneration(time.Since(start).Seconds(), genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	body, err := json.Marshal(teiRequest{Inputs: text, Truncate: true})
	if err != nil {
		genErr = fmt.Errorf("marshaling request: %w", err)
		return nil, genErr
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint+"/embed", bytes.NewReader(body))
	if err != nil {
		genErr = fmt.Errorf("creating request: %w", err)
		return nil, genErr
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		genErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, genErr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		genErr = fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
		return nil, genErr
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		genErr = fmt.Errorf("decoding response: %w", err)
		return nil, genErr
	}
	if len(vectors) == 0 {
		genErr = fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
		return nil, genErr
	}

	return vectors[0], nil
}
