// Package generator turns prompts into image bytes using a remote provider.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/notes-bin/promptgallery/internal/config"
)

type Generator interface {
	// Generate returns the raw bytes of a single image for prompt.
	// Every failure is reported as *Error.
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Error carries the upstream failure text of a generation or download.
type Error struct {
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("API Error: %s", e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsGenerationError reports whether err is, or wraps, a *Error.
func IsGenerationError(err error) bool {
	var genErr *Error
	return errors.As(err, &genErr)
}

// New builds the provider selected by cfg, instrumented with metrics.
func New(ctx context.Context, cfg config.GeneratorConfig) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return Instrument(config.ProviderOpenAI, NewOpenAIClient(OpenAIOptions{
			APIKey:        cfg.OpenAIAPIKey,
			BaseURL:       cfg.OpenAIBaseURL,
			Model:         cfg.OpenAIModel,
			Size:          cfg.ImageSize,
			Timeout:       cfg.Timeout.Std(),
			MaxImageBytes: cfg.MaxImageBytes,
		})), nil
	case config.ProviderGemini:
		g, err := NewGeminiClient(ctx, GeminiOptions{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.Timeout.Std(),
		})
		if err != nil {
			return nil, err
		}
		return Instrument(config.ProviderGemini, g), nil
	}
	return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
}

// download fetches url and returns at most maxBytes of body.
func download(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code downloading image: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("empty image body")
	}
	return data, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
