package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// feedLinkTypes はフィードとして認識する<link>タグのtype属性。
var feedLinkTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
}

// FeedDetector はHTMLページからのフィードURL自動検出機能を提供する。
// YouTubeソースにチャンネルページのURLが設定された場合に、
// ページ内の<link rel="alternate">からRSSフィードURLを解決する。
type FeedDetector struct {
	ssrfGuard SSRFValidator
	timeout   time.Duration
	maxSize   int64
}

// NewFeedDetector はFeedDetectorの新しいインスタンスを生成する。
func NewFeedDetector(ssrfGuard SSRFValidator, timeout time.Duration, maxSize int64) *FeedDetector {
	return &FeedDetector{
		ssrfGuard: ssrfGuard,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// IsDirectFeedURL はURLがフィードURL自体とみなせるかをパスから判定する。
// trueの場合はページフェッチを伴う検出をスキップできる。
func IsDirectFeedURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(parsed.Path)
	return strings.HasSuffix(path, ".xml") ||
		strings.HasSuffix(path, ".rss") ||
		strings.HasSuffix(path, ".atom") ||
		strings.Contains(path, "/feeds/")
}

// DetectFeedURL はページをフェッチし、HTML内の<link rel="alternate">から
// フィードURLを検出して返す。相対URLはページURLを基準に解決する。
// フィードが見つからない場合はエラーを返す。
func (d *FeedDetector) DetectFeedURL(ctx context.Context, pageURL string) (string, error) {
	if err := d.ssrfGuard.ValidateURL(pageURL); err != nil {
		return "", fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := d.ssrfGuard.NewSafeClient(d.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ページの取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ページ取得がステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize))
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}

	feedURL, found := extractFeedLink(body)
	if !found {
		return "", fmt.Errorf("ページからフィードURLを検出できませんでした: %s", pageURL)
	}

	resolved, err := resolveURL(pageURL, feedURL)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// extractFeedLink はHTMLから最初のフィード<link>タグのhrefを抽出する。
func extractFeedLink(body []byte) (string, bool) {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))

	for {
		tokenType := tokenizer.Next()
		switch tokenType {
		case html.ErrorToken:
			// io.EOFを含むパース終了
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "link" {
				continue
			}

			var rel, linkType, href string
			for _, attr := range token.Attr {
				switch strings.ToLower(attr.Key) {
				case "rel":
					rel = strings.ToLower(attr.Val)
				case "type":
					linkType = strings.ToLower(attr.Val)
				case "href":
					href = attr.Val
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}
			for _, ft := range feedLinkTypes {
				if linkType == ft {
					return href, true
				}
			}
		}
	}
}

// resolveURL は相対URLをベースURLを基準に絶対URLへ解決する。
func resolveURL(baseURL, ref string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("ベースURLのパースに失敗: %w", err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("フィードURLのパースに失敗: %w", err)
	}
	return base.ResolveReference(r).String(), nil
}
