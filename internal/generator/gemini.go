package generator

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"
)

type GeminiOptions struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiClient returns the first inline image part of a GenerateContent reply.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("apiKey is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image-preview"
	}
	return &GeminiClient{client: client, model: model, timeout: opts.Timeout}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, &Error{Provider: "gemini", Message: err.Error(), Err: err}
	}
	data, err := firstInlineImage(res)
	if err != nil {
		return nil, &Error{Provider: "gemini", Message: err.Error(), Err: err}
	}
	return data, nil
}

func firstInlineImage(res *genai.GenerateContentResponse) ([]byte, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0] == nil || res.Candidates[0].Content == nil {
		return nil, errors.New("no candidates returned from model")
	}
	for _, part := range res.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, nil
		}
	}
	return nil, errors.New("no image data returned from model")
}
