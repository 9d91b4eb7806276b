// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はアップストリームから取得したトレンドの
// 説明文をサニタイズする。説明文はプレーンテキストのフィールドとして
// 永続化・表示されるため、許可リストベースではなく全タグ除去の
// StrictPolicyを適用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はトレンド説明文のサニタイズ機能のインターフェースを定義する。
// ソースアダプタの正規化処理で永続化前に使用される。
type ContentSanitizerService interface {
	// Sanitize は入力からHTMLタグをすべて除去したプレーンテキストを返す。
	// HTMLエンティティはデコードし、前後の空白は除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyによりscript/iframe/style等を含むすべてのタグが除去される。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLタグをすべて除去したプレーンテキストを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	// bluemondayはエンティティをエスケープした形で出力するため、
	// プレーンテキストとして保存する前にデコードする。
	return strings.TrimSpace(html.UnescapeString(stripped))
}
