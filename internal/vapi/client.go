// Package vapi is a client for the Vapi voice-call API.
package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/content-pipeline/internal/logger"
)

// placeholderNumber is dialled when an interview has no phone number
const placeholderNumber = "+15555555555"

// Config configures the client
type Config struct {
	APIKey      string
	BaseURL     string
	AssistantID string
	PhoneNumber string
	// WebhookURL receives call-completed events for assistants this client creates
	WebhookURL    string
	Script        Script
	Timeout       time.Duration
	MaxRetryTime  time.Duration
	RetryInterval time.Duration
}

// Client talks to the Vapi REST API
type Client struct {
	baseURL       string
	apiKey        string
	phoneNumber   string
	webhookURL    string
	script        Script
	httpClient    *http.Client
	maxRetryTime  time.Duration
	retryInterval time.Duration
	log           *logger.Logger

	mu          sync.Mutex
	assistantID string
}

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vapi returned %d: %s", e.StatusCode, e.Body)
}

// CallRequest describes whom to call
type CallRequest struct {
	ClientID      string
	ClientName    string
	ClientEmail   string
	ClientPhone   string
	ScheduledTime *time.Time
}

// Call is a call as reported by the API
type Call struct {
	ID          string                 `json:"id"`
	Status      string                 `json:"status"`
	AssistantID string                 `json:"assistantId,omitempty"`
	StartedAt   string                 `json:"startedAt,omitempty"`
	EndedAt     string                 `json:"endedAt,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Message is one turn of a call transcript
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Analysis is the post-call analysis
type Analysis struct {
	Summary        string                 `json:"summary,omitempty"`
	StructuredData map[string]interface{} `json:"structuredData,omitempty"`
}

// NewClient creates a Vapi client
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("vapi API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.vapi.ai/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetryTime <= 0 {
		cfg.MaxRetryTime = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if cfg.Script.Name == "" {
		cfg.Script = DefaultScript
	}
	if cfg.PhoneNumber == "" {
		cfg.PhoneNumber = placeholderNumber
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		phoneNumber:   cfg.PhoneNumber,
		webhookURL:    cfg.WebhookURL,
		script:        cfg.Script,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		maxRetryTime:  cfg.MaxRetryTime,
		retryInterval: cfg.RetryInterval,
		log:           log.Component("vapi"),
		assistantID:   cfg.AssistantID,
	}, nil
}

// EnsureAssistant returns the configured assistant id, creating the
// interview assistant on first use
func (c *Client) EnsureAssistant(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.assistantID != "" {
		return c.assistantID, nil
	}

	body := map[string]interface{}{
		"name":            c.script.Name,
		"description":     c.script.Description,
		"model":           c.script.Model,
		"max_tokens":      c.script.MaxTokens,
		"temperature":     c.script.Temperature,
		"system_prompt":   c.script.SystemPrompt,
		"initial_message": c.script.InitialMessage,
		"voice": map[string]string{
			"provider": "openai",
			"voice_id": "alloy",
		},
		"webhook_url": c.webhookURL,
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/assistants", body, &created); err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("create assistant: response has no id")
	}

	c.assistantID = created.ID
	c.log.WithField("assistant_id", created.ID).Info("Created Vapi assistant")
	return created.ID, nil
}

type phone struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type callBody struct {
	AssistantID   string            `json:"assistant_id"`
	To            phone             `json:"to"`
	From          phone             `json:"from"`
	ScheduledTime *string           `json:"scheduled_time,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

// ScheduleCall books a call at req.ScheduledTime
func (c *Client) ScheduleCall(ctx context.Context, req CallRequest) (*Call, error) {
	if req.ScheduledTime == nil {
		return nil, errors.New("schedule call: scheduled time is required")
	}
	return c.createCall(ctx, req, true)
}

// InitiateCall starts a call now
func (c *Client) InitiateCall(ctx context.Context, req CallRequest) (*Call, error) {
	return c.createCall(ctx, req, false)
}

func (c *Client) createCall(ctx context.Context, req CallRequest, scheduled bool) (*Call, error) {
	assistantID, err := c.EnsureAssistant(ctx)
	if err != nil {
		return nil, err
	}

	to := req.ClientPhone
	if to == "" {
		to = placeholderNumber
	}
	body := callBody{
		AssistantID: assistantID,
		To:          phone{Type: "phone", Number: to},
		From:        phone{Type: "phone", Number: c.phoneNumber},
		Metadata: map[string]string{
			"client_id":    req.ClientID,
			"client_name":  req.ClientName,
			"client_email": req.ClientEmail,
		},
	}
	if scheduled {
		ts := req.ScheduledTime.UTC().Format(time.RFC3339)
		body.ScheduledTime = &ts
	}

	var call Call
	if err := c.do(ctx, http.MethodPost, "/calls", body, &call); err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}
	if call.ID == "" {
		return nil, errors.New("create call: response has no id")
	}
	return &call, nil
}

// GetCall fetches call details
func (c *Client) GetCall(ctx context.Context, callID string) (*Call, error) {
	var call Call
	if err := c.do(ctx, http.MethodGet, "/calls/"+callID, nil, &call); err != nil {
		return nil, fmt.Errorf("get call %s: %w", callID, err)
	}
	return &call, nil
}

// GetCallTranscript fetches a call's messages. The API answers either with a
// bare message array or with {"transcript": ...} holding an array or text.
func (c *Client) GetCallTranscript(ctx context.Context, callID string) ([]Message, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/calls/"+callID+"/transcript", nil, &raw); err != nil {
		return nil, fmt.Errorf("get transcript %s: %w", callID, err)
	}
	msgs, err := decodeTranscript(raw)
	if err != nil {
		return nil, fmt.Errorf("get transcript %s: %w", callID, err)
	}
	return msgs, nil
}

// GetCallAnalysis fetches a call's summary and structured data
func (c *Client) GetCallAnalysis(ctx context.Context, callID string) (*Analysis, error) {
	var a Analysis
	if err := c.do(ctx, http.MethodGet, "/calls/"+callID+"/analysis", nil, &a); err != nil {
		return nil, fmt.Errorf("get analysis %s: %w", callID, err)
	}
	return &a, nil
}

func decodeTranscript(raw json.RawMessage) ([]Message, error) {
	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err == nil {
		return msgs, nil
	}

	var wrapped struct {
		Transcript json.RawMessage `json:"transcript"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || len(wrapped.Transcript) == 0 {
		return nil, errors.New("unrecognized transcript response")
	}
	if err := json.Unmarshal(wrapped.Transcript, &msgs); err == nil {
		return msgs, nil
	}
	var text string
	if err := json.Unmarshal(wrapped.Transcript, &text); err != nil {
		return nil, errors.New("unrecognized transcript response")
	}
	return messagesFromText(text), nil
}

// messagesFromText splits "AI: ..." / "User: ..." lines into messages
func messagesFromText(text string) []Message {
	var msgs []Message
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		role := ""
		switch {
		case strings.HasPrefix(line, "AI:"), strings.HasPrefix(line, "Assistant:"):
			role = "assistant"
		case strings.HasPrefix(line, "User:"), strings.HasPrefix(line, "Human:"), strings.HasPrefix(line, "Client:"):
			role = "user"
		}
		if role == "" {
			if len(msgs) > 0 {
				msgs[len(msgs)-1].Content += " " + line
			}
			continue
		}
		content := strings.TrimSpace(line[strings.Index(line, ":")+1:])
		msgs = append(msgs, Message{Role: role, Content: content})
	}
	return msgs
}

// do sends a JSON request, retrying network errors, 429 and 5xx with
// exponential backoff until maxRetryTime or ctx ends
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	log := c.log.WithFields(logrus.Fields{"method": method, "path": path})

	op := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			log.WithError(err).Warn("vapi request failed")
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			log.WithField("http_status", resp.StatusCode).Warn("vapi request failed, retrying")
			return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		if resp.StatusCode >= 400 {
			// Permanent: don't retry on client errors
			return backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Body: string(data)})
		}

		if out != nil && len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxElapsedTime = c.maxRetryTime

	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
