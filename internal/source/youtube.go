package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/extensions"

	"github.com/hitoshi/trendradar/internal/model"
)

// YouTubeSource はYouTubeのRSSフィードをアップストリームとするソースアダプタ。
// 設定されたフィードURL群（チャンネルページURLの場合はFeedDetectorで解決）を
// 取得・パースし、動画エントリをRawTrendに変換する。
// 再生数はmedia:statistics拡張から取得する（存在しない場合は未設定）。
type YouTubeSource struct {
	feedURLs []string
	detector *FeedDetector
	client   *http.Client
	logger   *slog.Logger
	maxSize  int64

	mu       sync.Mutex
	resolved map[string]string // 設定URL → 解決済みフィードURL
}

// NewYouTubeSource はYouTubeSourceの新しいインスタンスを生成する。
// clientにはSSRF防止機能付きのHTTPクライアントを渡すこと。
func NewYouTubeSource(
	feedURLs []string,
	detector *FeedDetector,
	client *http.Client,
	logger *slog.Logger,
	maxSize int64,
) *YouTubeSource {
	return &YouTubeSource{
		feedURLs: feedURLs,
		detector: detector,
		client:   client,
		logger:   logger,
		maxSize:  maxSize,
		resolved: make(map[string]string),
	}
}

// Platform はこのアダプタが担当するプラットフォームを返す。
func (s *YouTubeSource) Platform() model.Platform {
	return model.PlatformYouTube
}

// Fetch は設定された全フィードを取得し、動画エントリをRawTrendとして返す。
// 一部のフィードの失敗はログに記録して継続し、全フィードが失敗した場合のみ
// ソース全体の失敗としてエラーを返す。
func (s *YouTubeSource) Fetch(ctx context.Context) ([]model.RawTrend, error) {
	if len(s.feedURLs) == 0 {
		return []model.RawTrend{}, nil
	}

	var trends []model.RawTrend
	var failures int

	for _, configured := range s.feedURLs {
		feedURL, err := s.resolveFeedURL(ctx, configured)
		if err != nil {
			s.logger.Error("YouTubeフィードURLの解決に失敗しました",
				slog.String("url", configured),
				slog.String("error", err.Error()),
			)
			failures++
			continue
		}

		items, err := s.fetchFeed(ctx, feedURL)
		if err != nil {
			s.logger.Error("YouTubeフィードの取得に失敗しました",
				slog.String("feed_url", feedURL),
				slog.String("error", err.Error()),
			)
			failures++
			continue
		}
		trends = append(trends, items...)
	}

	if failures == len(s.feedURLs) {
		return nil, fmt.Errorf("全YouTubeフィード（%d件）の取得に失敗しました", failures)
	}

	if trends == nil {
		trends = []model.RawTrend{}
	}
	return trends, nil
}

// resolveFeedURL は設定URLをフィードURLに解決する。解決結果はキャッシュする。
func (s *YouTubeSource) resolveFeedURL(ctx context.Context, configured string) (string, error) {
	if IsDirectFeedURL(configured) {
		return configured, nil
	}

	s.mu.Lock()
	cached, ok := s.resolved[configured]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	detected, err := s.detector.DetectFeedURL(ctx, configured)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.resolved[configured] = detected
	s.mu.Unlock()

	s.logger.Info("YouTubeフィードURLを検出しました",
		slog.String("page_url", configured),
		slog.String("feed_url", detected),
	)
	return detected, nil
}

// fetchFeed は1つのフィードを取得・パースしてRawTrendのリストを返す。
func (s *YouTubeSource) fetchFeed(ctx context.Context, feedURL string) ([]model.RawTrend, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/atom+xml, application/rss+xml, application/xml, text/xml, */*")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("フィード取得がステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗: %w", err)
	}

	trends := make([]model.RawTrend, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || item.Link == "" {
			continue
		}
		raw := model.RawTrend{
			Title:       item.Title,
			URL:         item.Link,
			Platform:    model.PlatformYouTube,
			Description: item.Description,
			Views:       youtubeViews(item),
		}
		trends = append(trends, raw)
	}
	return trends, nil
}

// youtubeViews はmedia:group/media:community/media:statisticsのviews属性を
// 抽出する。拡張が存在しない、または数値として不正な場合はnilを返す。
func youtubeViews(item *gofeed.Item) *int64 {
	groups, ok := mediaExtension(item, "group")
	if !ok {
		return nil
	}
	for _, group := range groups {
		for _, community := range group.Children["community"] {
			for _, stats := range community.Children["statistics"] {
				if v, ok := stats.Attrs["views"]; ok {
					views, err := strconv.ParseInt(v, 10, 64)
					if err != nil {
						return nil
					}
					return &views
				}
			}
		}
	}
	return nil
}

// mediaExtension はmedia名前空間の指定要素の拡張リストを返す。
func mediaExtension(item *gofeed.Item, name string) ([]ext.Extension, bool) {
	if item.Extensions == nil {
		return nil, false
	}
	media, ok := item.Extensions["media"]
	if !ok {
		return nil, false
	}
	exts, ok := media[name]
	return exts, ok
}
