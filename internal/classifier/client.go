package classifier

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rhinocodelab/idms-v3/pkg/formatting"
)

const (
	defaultModel       = "gpt-4o-mini"
	defaultTimeout     = 60 * time.Second
	defaultMaxAttempts = 2
	defaultRetryDelay  = 2 * time.Second
)

type client struct {
	cfg    Config
	api    *openai.Client
	logger *slog.Logger
}

// Option customizes the client.
type Option func(*openai.ClientConfig)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(oc *openai.ClientConfig) {
		if hc != nil {
			oc.HTTPClient = hc
		}
	}
}

// New constructs a classification client. BaseURL is the API root
// (for example https://api.openai.com/v1); an empty value keeps the
// library default.
func New(cfg Config, logger *slog.Logger, opts ...Option) System {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)

	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if strings.TrimSpace(cfg.Prompt) == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	table := make(map[string]string, len(cfg.Criticality))
	for k, v := range cfg.Criticality {
		table[normalize(k)] = v
	}
	cfg.Criticality = table

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	for _, opt := range opts {
		opt(&oc)
	}

	return &client{
		cfg:    cfg,
		api:    openai.NewClientWithConfig(oc),
		logger: logger.With("system", "classifier"),
	}
}

func (c *client) Classify(ctx context.Context, in Input) (*Result, error) {
	if len(in.Data) == 0 {
		return nil, ErrEmptyInput
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(in.Data)
	}

	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.cfg.Prompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: "Classify this document: " + in.Filename},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURI(contentType, in.Data),
					Detail: openai.ImageURLDetailAuto,
				}},
			}},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	content, err := c.completeWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	a, err := formatting.ParseJSON[answer](content)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	result := c.cfg.resolve(a)
	c.logger.Debug("document classified",
		"file", in.Filename,
		"document_type", result.DocumentType,
		"criticality_level", result.CriticalityLevel,
	)
	return result, nil
}

func (c *client) completeWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		content, err := c.complete(ctx, req)
		if err == nil {
			return content, nil
		}
		lastErr = err

		if attempt == c.cfg.MaxAttempts || !retryable(ctx, err) {
			break
		}

		c.logger.Warn("classification attempt failed", "attempt", attempt, "error", err)

		timer := time.NewTimer(c.cfg.RetryDelay * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	return "", lastErr
}

func (c *client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", wrapAPIError(err)
	}

	for _, choice := range resp.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if choice.Message.Refusal != "" {
			return "", fmt.Errorf("%w: refused: %s", ErrRejected, choice.Message.Refusal)
		}
	}

	return "", ErrEmptyResponse
}

// wrapAPIError attaches the HTTP status reported by the library so the
// retry policy can tell throttling from a bad request.
func wrapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &statusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message, cause: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &statusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error(), cause: err}
	}
	return fmt.Errorf("classifier: %w", err)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrRejected) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.retryable()
	}
	return true
}

func dataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
