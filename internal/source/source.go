// Package source はトレンドのソースアダプタを提供する。
// 各アダプタは1プラットフォームのアップストリームへの統一インターフェースで、
// 無引数のフェッチ操作で未加工のトレンドリストを返す。
// 「結果なし」は空リストであり、エラーはそのソース単体の全面的な失敗を意味する。
package source

import (
	"context"

	"github.com/hitoshi/trendradar/internal/model"
)

// Source は1つのトレンドプロバイダへのアダプタのインターフェース。
type Source interface {
	// Platform はこのアダプタが担当するプラットフォームを返す。
	Platform() model.Platform

	// Fetch はアップストリームから候補トレンドの一覧を取得する。
	// 結果が0件の場合はエラーではなく空のスライスを返す。
	// トランスポート/認証エラーの場合はエラーを返し、呼び出し元は
	// このソースのみの失敗として扱う（他のソースをブロックしない）。
	Fetch(ctx context.Context) ([]model.RawTrend, error)
}
