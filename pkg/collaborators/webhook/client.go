// Package webhook implements the engine's collaborators as JSON calls to HTTP
// endpoints owned by the messaging and CRM systems.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/protocol"
)

var (
	ErrNotConfigured   = errors.New("endpoint not configured")
	ErrSubjectNotFound = errors.New("subject not found")
)

const (
	DefaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
)

// RetryConfig defines retry behavior for endpoint calls. Client errors (4xx)
// are never retried.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// Config holds one URL per collaborator. An empty URL leaves that
// collaborator unconfigured.
type Config struct {
	MessengerURL     string
	TextGeneratorURL string
	AutomationURL    string
	SubjectsURL      string
	Headers          map[string]string
	Timeout          time.Duration
	Retries          RetryConfig
}

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Configured reports whether any collaborator endpoint is set.
func (c Config) Configured() bool {
	return c.MessengerURL != "" || c.TextGeneratorURL != "" || c.AutomationURL != "" || c.SubjectsURL != ""
}

// MaxCallDuration is the longest one collaborator call can take, counting
// every attempt and the delays between them.
func (c Config) MaxCallDuration() time.Duration {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	attempts := max(c.Retries.Attempts, 1)

	return time.Duration(attempts)*timeout + time.Duration(attempts-1)*c.Retries.Delay
}

// Client implements protocol.Messenger, protocol.TextGenerator,
// protocol.AutomationDisabler and protocol.SubjectDirectory.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	if config.Retries.Attempts < 1 {
		config.Retries.Attempts = 1
	}

	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: logger.With("module", "webhook_collaborators"),
	}
}

type sendRequest struct {
	ChannelID string                `json:"channel_id"`
	Content   string                `json:"content"`
	Hint      protocol.DeliveryHint `json:"hint"`
}

func (c *Client) Send(ctx context.Context, channelID, content string, hint protocol.DeliveryHint) error {
	return c.call(ctx, http.MethodPost, c.config.MessengerURL, sendRequest{
		ChannelID: channelID,
		Content:   content,
		Hint:      hint,
	}, nil)
}

type completeRequest struct {
	Prompt  string                  `json:"prompt"`
	Subject protocol.SubjectContext `json:"subject"`
}

type completeResponse struct {
	Text string `json:"text"`
}

func (c *Client) Complete(ctx context.Context, prompt string, subject protocol.SubjectContext) (string, error) {
	var response completeResponse

	err := c.call(ctx, http.MethodPost, c.config.TextGeneratorURL, completeRequest{Prompt: prompt, Subject: subject}, &response)
	if err != nil {
		return "", err
	}

	return response.Text, nil
}

type disableRequest struct {
	SubjectID string `json:"subject_id"`
	Reason    string `json:"reason"`
}

func (c *Client) DisableAutomation(ctx context.Context, subjectID, reason string) error {
	return c.call(ctx, http.MethodPost, c.config.AutomationURL, disableRequest{SubjectID: subjectID, Reason: reason}, nil)
}

// Subject fetches GET {SubjectsURL}/{subjectID}.
func (c *Client) Subject(ctx context.Context, subjectID string) (*models.Subject, error) {
	if c.config.SubjectsURL == "" {
		return nil, fmt.Errorf("subjects: %w", ErrNotConfigured)
	}

	endpoint := strings.TrimSuffix(c.config.SubjectsURL, "/") + "/" + url.PathEscape(subjectID)

	var subject models.Subject

	err := c.call(ctx, http.MethodGet, endpoint, nil, &subject)
	if err != nil {
		httpErr := &HTTPError{}
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, subjectID)
		}

		return nil, err
	}

	return &subject, nil
}

// Collaborators exposes the configured endpoints. Collaborators without an
// URL are left nil.
func (c *Client) Collaborators() protocol.Collaborators {
	var collaborators protocol.Collaborators

	if c.config.MessengerURL != "" {
		collaborators.Messenger = c
	}

	if c.config.TextGeneratorURL != "" {
		collaborators.TextGenerator = c
	}

	if c.config.AutomationURL != "" {
		collaborators.Disabler = c
	}

	if c.config.SubjectsURL != "" {
		collaborators.Subjects = c
	}

	return collaborators
}

func (c *Client) call(ctx context.Context, method, endpoint string, body, out any) error {
	if endpoint == "" {
		return ErrNotConfigured
	}

	var payload []byte

	if body != nil {
		var err error

		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error

	for attempt := 1; attempt <= c.config.Retries.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.Retries.Delay):
			}
		}

		respBody, err := c.do(ctx, method, endpoint, payload)
		if err == nil {
			if out == nil || len(respBody) == 0 {
				return nil
			}

			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to decode response from %s: %w", endpoint, err)
			}

			return nil
		}

		lastErr = err

		httpErr := &HTTPError{}
		if errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError {
			break
		}

		c.logger.WarnContext(ctx, "Endpoint call failed", "endpoint", endpoint, "attempt", attempt, "error", err)
	}

	return fmt.Errorf("%s %s failed: %w", method, endpoint, lastErr)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}

	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	return respBody, nil
}
