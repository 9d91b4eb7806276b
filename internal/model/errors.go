// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// HTTP APIのレスポンスに使用する原因カテゴリを含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, trend, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidPlatform = "INVALID_PLATFORM"
	ErrCodeInvalidLimit    = "INVALID_LIMIT"
	ErrCodeInvalidSince    = "INVALID_SINCE"
)

// NewInvalidPlatformError は無効なプラットフォーム指定エラーを生成する。
func NewInvalidPlatformError(platform string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPlatform,
		Message:  fmt.Sprintf("無効なプラットフォームです: %s", platform),
		Category: "validation",
	}
}

// NewInvalidLimitError は無効な件数指定エラーを生成する。
func NewInvalidLimitError(limit string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLimit,
		Message:  fmt.Sprintf("無効な件数指定です: %s", limit),
		Category: "validation",
	}
}

// NewInvalidSinceError は無効な日時指定エラーを生成する。
func NewInvalidSinceError(since string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSince,
		Message:  fmt.Sprintf("無効な日時指定です（RFC3339形式で指定してください）: %s", since),
		Category: "validation",
	}
}

// ParsePlatform は文字列をPlatformに変換する。
// サポート外の値の場合はエラーを返す。
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformTikTok, PlatformInstagram, PlatformYouTube:
		return Platform(s), nil
	default:
		return "", NewInvalidPlatformError(s)
	}
}
