package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// claudeEndpoint はAnthropic Messages APIのエンドポイント。
const claudeEndpoint = "https://api.anthropic.com/v1/messages"

// claudeProvider はAnthropic APIをバックエンドとする分類器。
type claudeProvider struct {
	apiKey   string
	model    string
	client   *http.Client
	endpoint string // テスト用にエンドポイントを差し替え可能
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Classify はトレンドをニッチカタログのラベル1つに分類する。
func (c *claudeProvider) Classify(ctx context.Context, req Request) (Result, error) {
	text, err := c.call(ctx, buildPrompt(req))
	if err != nil {
		return Result{}, err
	}
	return parseClassifyResponse(text, req)
}

func (c *claudeProvider) call(ctx context.Context, prompt string) (string, error) {
	endpoint := c.endpoint
	if endpoint == "" {
		endpoint = claudeEndpoint
	}

	body, _ := json.Marshal(claudeRequest{
		Model:     c.model,
		MaxTokens: 64,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("claude API %d: %s", resp.StatusCode, string(b))
	}

	var cr claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Content) == 0 {
		return "", fmt.Errorf("empty claude response")
	}
	return cr.Content[0].Text, nil
}
