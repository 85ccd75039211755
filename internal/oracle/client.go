// Package oracle implements the decision oracle: an OpenAI-compatible
// chat-completions client that turns market and portfolio state into a
// per-asset decision map. The oracle is consumed as a black box; a malformed
// or empty response means "no decisions this cycle", never a crash.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trade-arena/internal/model"
)

const (
	requestTimeout = 60 * time.Second
	maxTokens      = 2000
	temperature    = 0.7

	systemPrompt = "You are a professional cryptocurrency trader. Output JSON format only."
)

// AccountInfo is the agent metadata included in every oracle request.
type AccountInfo struct {
	CurrentTime    string  `json:"current_time"`
	TotalReturn    float64 `json:"total_return"` // cumulative return percent
	InitialCapital float64 `json:"initial_capital"`
}

// Client calls one agent's configured chat-completions endpoint.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

// NewClient creates a Client for the given credentials. apiURL is normalized
// to end in /v1 so both bare hosts and full endpoint URLs work.
func NewClient(apiKey, apiURL, model string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		apiKey:     apiKey,
		baseURL:    normalizeBaseURL(apiURL),
		model:      model,
	}
}

func normalizeBaseURL(apiURL string) string {
	base := strings.TrimRight(apiURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	if idx := strings.Index(base, "/v1"); idx >= 0 {
		return base[:idx] + "/v1"
	}
	return base + "/v1"
}

// Decide requests a decision map for the current cycle. It returns the parsed
// decisions together with the raw response text for the audit record.
func (c *Client) Decide(ctx context.Context, market model.MarketState, valuation model.Valuation, account AccountInfo) (model.DecisionMap, string, error) {
	prompt := BuildPrompt(market, valuation, account)

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, "", fmt.Errorf("decision oracle: %w", err)
	}

	// Parsing is tolerant; a malformed response yields an empty map.
	return ParseDecisions(raw), raw, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("malformed response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		msg := ""
		if parsed.Error != nil {
			msg = ": " + parsed.Error.Message
		}
		return "", fmt.Errorf("status %d%s", resp.StatusCode, msg)
	}
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}
