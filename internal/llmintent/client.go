// Package llmintent posts a normalized code block to an external model
// endpoint and returns a one-line natural-language summary of its intent.
// It is the one ambient dependency that stays on the standard library: no
// repository in the retrieval pack carries an LLM/HTTP-client SDK, so a
// plain net/http POST is the faithful port of the original pipeline's own
// bare HTTP call to an Ollama-compatible endpoint.
package llmintent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// IntentGenerationError reports a failed or malformed intent request.
type IntentGenerationError struct {
	Endpoint string
	cause    error
}

func (e *IntentGenerationError) Error() string {
	return fmt.Sprintf("intent generation failed (endpoint=%s): %v", e.Endpoint, e.cause)
}

func (e *IntentGenerationError) Unwrap() error { return e.cause }

// Client generates intent summaries against a single configured endpoint,
// in the style of an Ollama "generate" request: a system prompt plus the
// code snippet, non-streaming, with a top-level "response" field.
type Client struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
	http     *http.Client
}

// NewClient creates a Client against endpoint, using model as the model
// identifier sent with every request.
func NewClient(endpoint, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		Endpoint: endpoint,
		Model:    model,
		Timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

const systemPrompt = "Summarize the intent of the provided code snippet in one short sentence."

// GenerateIntent posts normalized code to the endpoint's /api/generate
// route and returns the trimmed response text.
func (c *Client) GenerateIntent(ctx context.Context, normalizedCode string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.Model,
		System: systemPrompt,
		Prompt: normalizedCode,
		Stream: false,
	})
	if err != nil {
		return "", &IntentGenerationError{Endpoint: c.Endpoint, cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", &IntentGenerationError{Endpoint: c.Endpoint, cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &IntentGenerationError{Endpoint: c.Endpoint, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &IntentGenerationError{Endpoint: c.Endpoint, cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &IntentGenerationError{Endpoint: c.Endpoint, cause: err}
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &IntentGenerationError{Endpoint: c.Endpoint, cause: err}
	}

	content := strings.TrimSpace(out.Response)
	if content == "" {
		return "", &IntentGenerationError{Endpoint: c.Endpoint, cause: fmt.Errorf("response does not contain generation content")}
	}
	return content, nil
}
