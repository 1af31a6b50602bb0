package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
)

const (
	// DefaultChatModel is the default model for chat completions
	DefaultChatModel = "gpt-4"
	// DefaultEmbeddingModel is the default model for embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
)

// ClientConfig holds configuration for the OpenAI client
type ClientConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	MaxRetries     int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
}

// CompletionRequest is one system+user prompt exchange
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// OpenAIClient wraps the OpenAI API client with retry logic
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
	maxRetries     int
	retryDelay     time.Duration
	requestTimeout time.Duration
	log            *logger.Logger
}

// NewOpenAIClient creates a new OpenAI client with custom configuration
func NewOpenAIClient(config ClientConfig, log *logger.Logger) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	oc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	if config.ChatModel == "" {
		config.ChatModel = DefaultChatModel
	}
	embeddingModel := DefaultEmbeddingModel
	if config.EmbeddingModel != "" {
		embeddingModel = openai.EmbeddingModel(config.EmbeddingModel)
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 60 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(oc),
		chatModel:      config.ChatModel,
		embeddingModel: embeddingModel,
		maxRetries:     config.MaxRetries,
		retryDelay:     config.RetryDelay,
		requestTimeout: config.RequestTimeout,
		log:            log.Component("llm"),
	}, nil
}

// Complete sends a chat completion and returns the first choice's text
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	var content string
	err := c.retry(ctx, "chat completion", func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.chatModel,
			Messages:    messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no completion choices returned")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// Embed returns one embedding per input text, in input order
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var out [][]float64
	err := c.retry(ctx, "embedding", func(ctx context.Context) error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: c.embeddingModel,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts))
		}

		vectors := make([][]float64, len(texts))
		for i, d := range resp.Data {
			idx := d.Index
			if idx < 0 || idx >= len(texts) {
				idx = i
			}
			// Convert []float32 to []float64
			v := make([]float64, len(d.Embedding))
			for j, f := range d.Embedding {
				v[j] = float64(f)
			}
			vectors[idx] = v
		}
		out = vectors
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// retry runs op up to maxRetries+1 times, each attempt under its own timeout.
// Client errors other than 429 are not retried.
func (c *OpenAIClient) retry(ctx context.Context, what string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(calculateBackoff(c.retryDelay, attempt)):
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", what, ctx.Err())
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
		c.log.WithError(err).WithField("attempt", attempt+1).Warnf("%s failed", what)

		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", what, ctx.Err())
		}
		if permanent(err) {
			break
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", what, c.maxRetries+1, lastErr)
}

func permanent(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}
