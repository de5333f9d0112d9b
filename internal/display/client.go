// Package display is the client side of the display surface contract: a
// chat API holding the single panel message. The artifact id is opaque; the
// chat platform's response shape is only known as a configured JSONPath.
package display

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oliveagle/jsonpath"
)

// ErrNotFound reports that the artifact no longer exists on the display
// surface, typically because someone deleted the panel message.
var ErrNotFound = errors.New("display artifact not found")

// Config configures the display client.
type Config struct {
	BaseURL   string
	AuthToken string
	IDPath    string // JSONPath to the message id in the create response
	Timeout   time.Duration
	Retry     RetryConfig
}

// Client talks to the chat API with retry and circuit breaking.
type Client struct {
	httpClient     *http.Client
	cfg            Config
	circuitBreaker *CircuitBreaker
}

// NewClient creates a display client.
func NewClient(cfg Config) *Client {
	cfg.Retry.SetDefaults()
	if cfg.IDPath == "" {
		cfg.IDPath = "$.id"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:            cfg,
		circuitBreaker: NewCircuitBreaker(),
	}
}

// Create posts a new panel message and returns its id.
func (c *Client) Create(ctx context.Context, document string) (string, error) {
	body, err := c.deliver(ctx, http.MethodPost, c.cfg.BaseURL, document)
	if err != nil {
		return "", err
	}

	id, err := c.extractID(body)
	if err != nil {
		return "", fmt.Errorf("failed to extract artifact id: %w", err)
	}

	slog.Info("Panel artifact created", "artifact_id", id)
	return id, nil
}

// Update replaces the content of an existing panel message. Returns
// ErrNotFound when the message has been deleted externally.
func (c *Client) Update(ctx context.Context, artifactID, document string) error {
	_, err := c.deliver(ctx, http.MethodPatch, c.cfg.BaseURL+"/"+artifactID, document)
	return err
}

// Fetch probes whether the artifact still exists.
func (c *Client) Fetch(ctx context.Context, artifactID string) error {
	_, err := c.deliver(ctx, http.MethodGet, c.cfg.BaseURL+"/"+artifactID, "")
	return err
}

// deliver sends one logical request with retries and circuit breaking.
// A 404 is a typed outcome, returned immediately and never retried.
func (c *Client) deliver(ctx context.Context, method, url, document string) ([]byte, error) {
	if !c.circuitBreaker.CanAttempt() {
		slog.Warn("Circuit breaker is open, skipping display request",
			"method", method,
			"url", url,
			"circuit_state", c.circuitBreaker.GetStateName(),
		)
		return nil, fmt.Errorf("display circuit breaker is open")
	}

	retryStrategy := NewRetryStrategy(c.cfg.Retry)

	var lastErr error
	for attempt := 1; attempt <= retryStrategy.GetMaxAttempts(); attempt++ {
		statusCode, body, err := c.attempt(ctx, method, url, document)

		if err == nil && statusCode >= 200 && statusCode < 300 {
			c.circuitBreaker.RecordSuccess()
			return body, nil
		}

		if err == nil && statusCode == http.StatusNotFound {
			// The surface answered; the artifact is just gone.
			c.circuitBreaker.RecordSuccess()
			return nil, ErrNotFound
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("display API returned status %d", statusCode)
		}

		if !retryStrategy.ShouldRetry(attempt, statusCode, err) {
			c.circuitBreaker.RecordFailure()
			return nil, fmt.Errorf("display request failed: %w", lastErr)
		}

		if attempt < retryStrategy.GetMaxAttempts() {
			delay := retryStrategy.CalculateDelay(attempt)
			slog.Warn("Display request failed, retrying",
				"method", method,
				"url", url,
				"attempt", attempt,
				"next_retry_ms", delay.Milliseconds(),
				"error", lastErr,
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.circuitBreaker.RecordFailure()
				return nil, ctx.Err()
			}
		}
	}

	c.circuitBreaker.RecordFailure()
	return nil, fmt.Errorf("display request failed after %d attempts: %w", retryStrategy.GetMaxAttempts(), lastErr)
}

// attempt performs a single request.
func (c *Client) attempt(ctx context.Context, method, url, document string) (int, []byte, error) {
	var reqBody io.Reader
	if document != "" {
		payload, err := json.Marshal(map[string]string{"text": document})
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal document: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", c.cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	// Responses are small; cap reads at 64 KiB.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, body, nil
}

// extractID pulls the artifact id out of the create response using the
// configured JSONPath. Decoding with json.Number keeps snowflake-sized
// numeric ids intact.
func (c *Client) extractID(body []byte) (string, error) {
	var parsed interface{}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&parsed); err != nil {
		return "", fmt.Errorf("malformed create response: %w", err)
	}

	value, err := jsonpath.JsonPathLookup(parsed, c.cfg.IDPath)
	if err != nil {
		return "", fmt.Errorf("id path %q not found in create response: %w", c.cfg.IDPath, err)
	}

	id := fmt.Sprintf("%v", value)
	if id == "" {
		return "", fmt.Errorf("id path %q resolved to an empty value", c.cfg.IDPath)
	}
	return id, nil
}
