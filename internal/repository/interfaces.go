// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/trendradar/internal/model"
)

// TrendFilter はトレンド一覧取得の絞り込み条件。
// ゼロ値のフィールドは条件として適用されない。
type TrendFilter struct {
	Category string
	Platform string
	Since    time.Time
	Limit    int
}

// TrendRepository はトレンドデータの永続化インターフェース。
type TrendRepository interface {
	// UpsertBatch はトレンドをIDで冪等にUPSERTし、書き込んだ件数を返す。
	// 既存IDの行は全フィールドが上書きされ、processed_atはサーバー側で現在時刻に更新される。
	// 1回の呼び出しはストアの操作数上限に収まる件数で呼ぶこと。
	UpsertBatch(ctx context.Context, trends []model.ProcessedTrend) (int, error)

	// ListStaleIDs はprocessed_atがolderThanより古いトレンドのIDを最大limit件返す。
	ListStaleIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error)

	// DeleteByIDs は指定IDのトレンドを削除し、削除した件数を返す。
	DeleteByIDs(ctx context.Context, ids []string) (int, error)

	// ListTrends はフィルタ条件に合致するトレンドをprocessed_at降順で返す。
	ListTrends(ctx context.Context, filter TrendFilter) ([]model.ProcessedTrend, error)
}
