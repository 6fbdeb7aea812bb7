package generator

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

type OpenAIOptions struct {
	APIKey        string
	BaseURL       string // empty uses the public API
	Model         string
	Size          string
	Timeout       time.Duration
	MaxImageBytes int64
	// HTTPClient carries the API call, bounded by Timeout through the context.
	HTTPClient *http.Client
	// DownloadClient fetches the returned URL; defaults to DownloadTimeout.
	DownloadClient  *http.Client
	DownloadTimeout time.Duration
}

// OpenAIClient requests one image and downloads it from the returned URL.
type OpenAIClient struct {
	api      *openai.Client
	download *http.Client
	model    string
	size     string
	timeout  time.Duration
	maxBytes int64
}

func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	} else {
		cfg.HTTPClient = &http.Client{}
	}

	downloadClient := opts.DownloadClient
	if downloadClient == nil {
		timeout := opts.DownloadTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		downloadClient = &http.Client{Timeout: timeout}
	}

	model := opts.Model
	if model == "" {
		model = openai.CreateImageModelDallE2
	}
	size := opts.Size
	if size == "" {
		size = openai.CreateImageSize512x512
	}
	maxBytes := opts.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &OpenAIClient{
		api:      openai.NewClientWithConfig(cfg),
		download: downloadClient,
		model:    model,
		size:     size,
		timeout:  opts.Timeout,
		maxBytes: maxBytes,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.model,
		N:              1,
		Size:           c.size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, c.fail(upstreamMessage(err), err)
	}
	if len(resp.Data) == 0 {
		return nil, c.fail("no image returned", nil)
	}

	item := resp.Data[0]
	if item.URL == "" && item.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, c.fail("invalid base64 image", err)
		}
		return data, nil
	}
	if item.URL == "" {
		return nil, c.fail("no image URL returned", nil)
	}

	data, err := download(ctx, c.download, item.URL, c.maxBytes)
	if err != nil {
		return nil, c.fail(err.Error(), err)
	}
	return data, nil
}

func (c *OpenAIClient) fail(msg string, err error) *Error {
	return &Error{Provider: "openai", Message: msg, Err: err}
}

// upstreamMessage prefers the provider's own error text.
func upstreamMessage(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
