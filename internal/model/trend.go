// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Platform はトレンドの取得元プラットフォームを表す。
type Platform string

const (
	// PlatformTikTok はTikTokプラットフォーム。
	PlatformTikTok Platform = "TikTok"
	// PlatformInstagram はInstagramプラットフォーム。
	PlatformInstagram Platform = "Instagram"
	// PlatformYouTube はYouTubeプラットフォーム。
	PlatformYouTube Platform = "YouTube"
)

// Uncategorized は分類に失敗またはスキップされたトレンドに付与される
// カテゴリのセンチネル値。永続化されたレコードのcategoryは必ず非nullであり、
// 下流のニッチフィルタがnull特別扱いを必要としないことを保証する。
const Uncategorized = "Uncategorized"

// RawTrend はソースアダプタが返す未加工のトレンドを表す。
// プラットフォームごとにViewsまたはLikesのどちらか一方のみが設定される。
type RawTrend struct {
	Title       string
	URL         string
	Platform    Platform
	Views       *int64
	Likes       *int64
	Description string
}

// ProcessedTrend は正規化・分類済みの永続化対象トレンドを表す。
// IDはURLから決定的に導出され、同一URLは常に同一レコードへupsertされる。
type ProcessedTrend struct {
	ID                 string
	Title              string
	Platform           Platform
	URL                string // 元のURL（サニタイズ前）
	Views              *int64
	Likes              *int64
	Description        string
	DiscoveredAt       time.Time // 同一実行内の全トレンドで共通
	Category           string
	CategoryConfidence float64
	ProcessedAt        time.Time // 書き込み時にストア側で付与される
}

// SanitizeID はURLからドキュメントキー制約を満たすIDを導出する。
// 英数字以外の文字をすべてアンダースコアに置換する。
// 同一URLに対して常に同一のIDを返す（冪等）。
func SanitizeID(url string) string {
	var b strings.Builder
	b.Grow(len(url))
	for _, r := range url {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ClampConfidence は分類器が返した信頼度を[0,1]の範囲に丸める。
// 生成モデル由来の値は契約を型レベルで強制できないため、受領時に必ず適用する。
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// NewProcessedTrend はRawTrendを正規化してProcessedTrendを生成する。
// 分類前の状態としてカテゴリはUncategorized、信頼度は0で初期化される。
func NewProcessedTrend(raw RawTrend, discoveredAt time.Time) ProcessedTrend {
	return ProcessedTrend{
		ID:                 SanitizeID(raw.URL),
		Title:              raw.Title,
		Platform:           raw.Platform,
		URL:                raw.URL,
		Views:              raw.Views,
		Likes:              raw.Likes,
		Description:        raw.Description,
		DiscoveredAt:       discoveredAt,
		Category:           Uncategorized,
		CategoryConfidence: 0,
	}
}
