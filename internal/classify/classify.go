// Package classify はトレンドのニッチ分類機能を提供する。
// 分類器はLLMバックエンドへのHTTP呼び出しとして実装され、
// 与えられたニッチカタログの中から最適なラベル1つと信頼度を返す。
//
// 契約上、出力は生成モデル由来であり型レベルで強制できないため、
// 呼び出し元は信頼度のクランプと失敗時のUncategorizedフォールバックを
// 必ず適用すること。このパッケージは出力ラベルがカタログ外の場合を
// 分類失敗として扱う（エラーを返す）。
package classify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/trendradar/internal/model"
)

// Request は1トレンドの分類リクエストを表す。
type Request struct {
	TrendTitle       string
	TrendDescription string
	Niches           []string // 固定カタログ（非空）
}

// Result は分類結果を表す。
type Result struct {
	Category   string
	Confidence float64
}

// Classifier はトレンド分類のインターフェース。
type Classifier interface {
	// Classify はトレンドをニッチカタログのラベル1つに分類する。
	// 失敗時（呼び出しエラー、出力不正、カタログ外ラベル）はエラーを返し、
	// 呼び出し元はUncategorized/信頼度0にフォールバックする。
	Classify(ctx context.Context, req Request) (Result, error)
}

// New は設定に応じた分類器を生成する。
// apiKeyが空の場合はエラーを返す: 認証情報の欠落は分類機能に限った
// 設定エラーであり、呼び出し元はインジェスト自体を中断せず
// 全件Uncategorizedとして処理を継続する。
func New(provider, apiKey, modelName string, client *http.Client) (Classifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("分類器のAPIキーが設定されていません")
	}
	if client == nil {
		client = http.DefaultClient
	}

	switch provider {
	case "claude":
		if modelName == "" {
			modelName = "claude-haiku-4-5-20251001"
		}
		return &claudeProvider{apiKey: apiKey, model: modelName, client: client}, nil
	case "openai":
		if modelName == "" {
			modelName = "gpt-4o-mini"
		}
		return &openaiProvider{apiKey: apiKey, model: modelName, client: client}, nil
	default:
		return nil, fmt.Errorf("unknown classify provider: %q (valid: claude, openai)", provider)
	}
}

const classifyPrompt = `You are categorizing social media trends into marketing niches.
Pick the single best-fitting niche for this trend from the list below.
If nothing fits well, answer with exactly "Uncategorized".

Niches: %s

Format your response EXACTLY like this:
CATEGORY: <one niche from the list, or Uncategorized>
CONFIDENCE: <number between 0 and 1>

Trend title: %s
Trend description: %s`

// buildPrompt は分類プロンプトを組み立てる。
func buildPrompt(req Request) string {
	return fmt.Sprintf(classifyPrompt,
		strings.Join(req.Niches, ", "),
		req.TrendTitle,
		req.TrendDescription,
	)
}

// parseClassifyResponse はLLMの応答テキストから分類結果を抽出し、
// リクエストのニッチカタログに対して検証する。
// CATEGORY行の欠落、カタログ外ラベル、CONFIDENCEの数値不正はエラー。
func parseClassifyResponse(text string, req Request) (Result, error) {
	var category string
	var confidence float64
	var haveCategory, haveConfidence bool

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "CATEGORY:"); ok {
			category = strings.TrimSpace(after)
			haveCategory = true
		} else if after, ok := strings.CutPrefix(line, "CONFIDENCE:"); ok {
			v, err := strconv.ParseFloat(strings.TrimSpace(after), 64)
			if err != nil {
				return Result{}, fmt.Errorf("信頼度のパースに失敗: %w", err)
			}
			confidence = v
			haveConfidence = true
		}
	}

	if !haveCategory {
		return Result{}, fmt.Errorf("応答にCATEGORY行が含まれていません")
	}
	if !haveConfidence {
		return Result{}, fmt.Errorf("応答にCONFIDENCE行が含まれていません")
	}

	// カタログ外のラベルは分類失敗として扱う
	if category != model.Uncategorized && !containsLabel(req.Niches, category) {
		return Result{}, fmt.Errorf("カタログに存在しないラベル: %q", category)
	}

	return Result{Category: category, Confidence: confidence}, nil
}

func containsLabel(niches []string, label string) bool {
	for _, n := range niches {
		if n == label {
			return true
		}
	}
	return false
}
