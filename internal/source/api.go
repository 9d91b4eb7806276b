package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/trendradar/internal/model"
)

// userAgent はアップストリームへのHTTPリクエストに付与するUser-Agent。
const userAgent = "TrendRadar/1.0 Trend Collector"

// trendMetric はAPIソースのメトリクスのマッピング先を表す。
type trendMetric int

const (
	// metricViews は再生数ベースのプラットフォーム（TikTok等）。
	metricViews trendMetric = iota
	// metricLikes はいいね数ベースのプラットフォーム（Instagram等）。
	metricLikes
)

// apiTrend はトレンドAPIのレスポンス中の1トレンドを表す。
// countフィールドはプラットフォームに応じてviewsまたはlikesに対応する。
type apiTrend struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Count       int64  `json:"count"`
	Description string `json:"description"`
}

// apiResponse はトレンドAPIのレスポンス全体を表す。
type apiResponse struct {
	Trends []apiTrend `json:"trends"`
}

// apiSource はJSONトレンドAPIをアップストリームとするソースアダプタ。
// TikTok/Instagram系の取得統合は現状このAPI形状のスタブ実装であり、
// エンドポイントは環境変数で設定される。
type apiSource struct {
	platform model.Platform
	metric   trendMetric
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	maxSize  int64
}

// Platform はこのアダプタが担当するプラットフォームを返す。
func (s *apiSource) Platform() model.Platform {
	return s.platform
}

// Fetch はトレンドAPIから候補トレンドの一覧を取得する。
func (s *apiSource) Fetch(ctx context.Context) ([]model.RawTrend, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("トレンドAPIの呼び出しに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("トレンドAPIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗: %w", err)
	}

	trends := make([]model.RawTrend, 0, len(parsed.Trends))
	for _, t := range parsed.Trends {
		if t.URL == "" {
			// URLは自然キーのため、URLなしのレコードは破棄する
			s.logger.Warn("URLのないトレンドをスキップします",
				slog.String("platform", string(s.platform)),
				slog.String("title", t.Title),
			)
			continue
		}

		raw := model.RawTrend{
			Title:       t.Title,
			URL:         t.URL,
			Platform:    s.platform,
			Description: t.Description,
		}
		count := t.Count
		switch s.metric {
		case metricLikes:
			raw.Likes = &count
		default:
			raw.Views = &count
		}
		trends = append(trends, raw)
	}

	return trends, nil
}
