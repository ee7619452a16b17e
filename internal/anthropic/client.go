package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	messagesPath = "/v1/messages"
	apiVersion   = "2023-06-01"

	requestTimeout = 60 * time.Second
)

// ErrUnavailable wraps transport failures and non-2xx responses from the
// provider. Callers treat it as a pipeline failure with no side effects.
var ErrUnavailable = errors.New("anthropic api unavailable")

// Usage is the token accounting the API reports for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Completion is the subset of a messages response the service consumes.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// Client calls the Anthropic messages API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage Usage `json:"usage"`
}

// Complete sends a single-turn user prompt and returns the text reply
// plus usage counts.
func (c *Client) Complete(ctx context.Context, model, prompt string, maxTokens int) (*Completion, error) {
	body, err := json.Marshal(messageRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var mr messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("%w: invalid response: %v", ErrUnavailable, err)
	}
	if len(mr.Content) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrUnavailable)
	}
	return &Completion{Text: mr.Content[0].Text, Model: mr.Model, Usage: mr.Usage}, nil
}
