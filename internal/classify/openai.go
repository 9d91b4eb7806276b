package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// openaiEndpoint はOpenAI Chat Completions APIのエンドポイント。
const openaiEndpoint = "https://api.openai.com/v1/chat/completions"

// openaiProvider はOpenAI APIをバックエンドとする分類器。
type openaiProvider struct {
	apiKey   string
	model    string
	client   *http.Client
	endpoint string // テスト用にエンドポイントを差し替え可能
}

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify はトレンドをニッチカタログのラベル1つに分類する。
func (o *openaiProvider) Classify(ctx context.Context, req Request) (Result, error) {
	text, err := o.call(ctx, buildPrompt(req))
	if err != nil {
		return Result{}, err
	}
	return parseClassifyResponse(text, req)
}

func (o *openaiProvider) call(ctx context.Context, prompt string) (string, error) {
	endpoint := o.endpoint
	if endpoint == "" {
		endpoint = openaiEndpoint
	}

	body, _ := json.Marshal(openaiRequest{
		Model:    o.model,
		Messages: []openaiMessage{{Role: "user", Content: prompt}},
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("openai API %d: %s", resp.StatusCode, string(b))
	}

	var or openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return "", err
	}
	if len(or.Choices) == 0 {
		return "", fmt.Errorf("empty openai response")
	}
	return or.Choices[0].Message.Content, nil
}
