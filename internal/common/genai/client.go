package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"university-assistant/internal/common/config"
	"university-assistant/internal/common/logger"
)

var (
	ErrGenerationFailed  = errors.New("GENERATION_FAILED")
	ErrGenerationTimeout = errors.New("GENERATION_TIMEOUT")
	ErrEmptyCompletion   = errors.New("EMPTY_COMPLETION")
)

// Generator is the contract the pipeline has with the text-generation
// collaborator: prompt in, raw text out. Callers validate the shape of
// the output themselves.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Client struct {
	api        *openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
	logger     logger.Logger
}

func NewClient(cfg config.GenAIConfig, log logger.Logger) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:        openai.NewClientWithConfig(apiCfg),
		model:      cfg.Model,
		timeout:    time.Duration(cfg.Timeout) * time.Millisecond,
		maxRetries: cfg.MaxRetries,
		logger: log.With(map[string]interface{}{
			"component": "genai",
		}),
	}
}

// Generate sends the prompt as a single-turn chat completion and returns
// the completion text. One bounded retry with exponential backoff; the
// configured timeout caps the whole call including retries.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ErrGenerationTimeout
			}
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", ErrGenerationTimeout
		}
		if err != nil {
			lastErr = err
			continue
		}

		// An empty completion is as transient as a failed call, so it
		// shares the retry budget.
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			lastErr = ErrEmptyCompletion
			continue
		}

		return resp.Choices[0].Message.Content, nil
	}

	c.logger.Error("generation failed after retries", map[string]interface{}{
		"error":   lastErr.Error(),
		"retries": c.maxRetries,
	})
	if errors.Is(lastErr, ErrEmptyCompletion) {
		return "", ErrEmptyCompletion
	}
	return "", fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
}
