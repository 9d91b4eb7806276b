// Package trend はトレンドのバッチ書き込みと保持期間管理を提供する。
// ストアの1バッチあたりの操作数上限に収まるようレコードを分割してコミットし、
// 保持期間を超過したレコードを同じ分割単位で削除する。
package trend

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/trendradar/internal/metrics"
	"github.com/hitoshi/trendradar/internal/model"
	"github.com/hitoshi/trendradar/internal/repository"
)

// DefaultBatchLimit は1バッチあたりの操作数。
// ストアの上限500に対し、余裕を持たせた値を使う。
const DefaultBatchLimit = 490

// BatchResult は1チャンクのコミット結果。
type BatchResult struct {
	Committed int
	Err       error
}

// BatchWriter はトレンドの分割コミットと期限切れレコードの削除を行う。
type BatchWriter struct {
	repo          repository.TrendRepository
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	BatchLimit    int // 1バッチあたりの操作数（デフォルト: 490）
	RetentionDays int // トレンドの保持日数（デフォルト: 30）
}

// NewBatchWriter は新しいBatchWriterを生成する。
// batchLimitが0以下の場合はDefaultBatchLimitを使用する。
func NewBatchWriter(
	repo repository.TrendRepository,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	batchLimit, retentionDays int,
) *BatchWriter {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &BatchWriter{
		repo:          repo,
		logger:        logger,
		metrics:       collector,
		BatchLimit:    batchLimit,
		RetentionDays: retentionDays,
	}
}

// Write はトレンドをBatchLimit件ごとのチャンクに分割してUPSERTする。
// あるチャンクのコミットが失敗しても残りのチャンクの処理は継続する（ベストエフォート）。
// 戻り値はチャンクごとの結果で、呼び出し側で成功件数を集計できる。
func (w *BatchWriter) Write(ctx context.Context, trends []model.ProcessedTrend) []BatchResult {
	if len(trends) == 0 {
		return nil
	}

	var results []BatchResult
	for start := 0; start < len(trends); start += w.BatchLimit {
		end := start + w.BatchLimit
		if end > len(trends) {
			end = len(trends)
		}
		chunk := trends[start:end]

		committed, err := w.repo.UpsertBatch(ctx, chunk)
		if err != nil {
			w.logger.Error("トレンドバッチのコミットに失敗しました",
				slog.Int("chunk_size", len(chunk)),
				slog.Int("offset", start),
				slog.String("error", err.Error()),
			)
			w.metrics.RecordBatchFailure()
			results = append(results, BatchResult{Err: err})
			continue
		}

		w.logger.Info("トレンドバッチをコミットしました",
			slog.Int("committed", committed),
			slog.Int("offset", start),
		)
		w.metrics.RecordTrendsCommitted(committed)
		results = append(results, BatchResult{Committed: committed})
	}

	return results
}

// Cleanup は保持期間を超過したトレンドを削除する。
// 対象IDをBatchLimit件ずつ取得し、対象がなくなるまで削除を繰り返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (w *BatchWriter) Cleanup(ctx context.Context) (int, error) {
	start := time.Now()
	cutoff := time.Now().UTC().AddDate(0, 0, -w.RetentionDays)

	total := 0
	for {
		ids, err := w.repo.ListStaleIDs(ctx, cutoff, w.BatchLimit)
		if err != nil {
			return total, fmt.Errorf("期限切れトレンドの取得に失敗: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		deleted, err := w.repo.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("期限切れトレンドの削除に失敗: %w", err)
		}
		total += deleted
		w.metrics.RecordStaleDeleted(deleted)

		// 全件削除できなかった場合は次の周回で同じIDを拾い直すため中断する
		if deleted < len(ids) {
			break
		}
	}

	duration := time.Since(start)
	w.logger.Info("トレンドクリーンアップが完了しました",
		slog.Int("deleted_count", total),
		slog.Int("retention_days", w.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return total, nil
}
