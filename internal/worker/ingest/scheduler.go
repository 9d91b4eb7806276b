// Package ingest はトレンド取り込みサイクルのスケジューリングを提供する。
// 24時間間隔のティッカーでパイプライン実行、バッチ書き込み、
// 保持期間クリーンアップを1サイクルとして実行する。
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/trendradar/internal/metrics"
	"github.com/hitoshi/trendradar/internal/model"
	"github.com/hitoshi/trendradar/internal/trend"
)

// TrendPipeline はトレンド取得と分類の実行インターフェース。
type TrendPipeline interface {
	// Run は全ソースの取得・正規化・分類を行い、処理済みトレンドを返す。
	Run(ctx context.Context) ([]model.ProcessedTrend, error)
}

// TrendWriter はトレンドの永続化と保持期間管理のインターフェース。
type TrendWriter interface {
	// Write はトレンドを分割コミットし、チャンクごとの結果を返す。
	Write(ctx context.Context, trends []model.ProcessedTrend) []trend.BatchResult
	// Cleanup は保持期間を超過したトレンドを削除し、削除件数を返す。
	Cleanup(ctx context.Context) (int, error)
}

// Scheduler は取り込みサイクルのスケジューリングを行う。
// 各サイクルは独立しており、前回の失敗が次回の実行を妨げない。
type Scheduler struct {
	pipeline TrendPipeline
	writer   TrendWriter
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(
	pipeline TrendPipeline,
	writer TrendWriter,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Scheduler {
	return &Scheduler{
		pipeline: pipeline,
		writer:   writer,
		logger:   logger,
		metrics:  collector,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// 起動直後に1回実行し、以降はコンテキストがキャンセルされるまで繰り返す。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("取り込みサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("取り込みサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は取り込みサイクルを1回実行する。
// パイプラインのpanicはrecoverで捕捉し、スケジューラ自体は停止させない。
// 書き込みは冪等なUPSERTのため、同一サイクルの再実行は安全である。
func (s *Scheduler) RunOnce(ctx context.Context) (err error) {
	start := time.Now()
	runID := uuid.New().String()
	logger := s.logger.With(slog.String("run_id", runID))

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("取り込みサイクルでpanicが発生しました",
				slog.Any("panic", rec),
			)
			err = fmt.Errorf("取り込みサイクルでpanicが発生: %v", rec)
		}
	}()

	logger.Info("取り込みサイクルを開始します")

	trends, err := s.pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("パイプラインの実行に失敗: %w", err)
	}

	committed := 0
	failedChunks := 0
	for _, result := range s.writer.Write(ctx, trends) {
		if result.Err != nil {
			failedChunks++
			continue
		}
		committed += result.Committed
	}

	deleted, cleanupErr := s.writer.Cleanup(ctx)
	if cleanupErr != nil {
		// クリーンアップの失敗はサイクル失敗として扱わない。次回のサイクルで再試行される。
		logger.Warn("トレンドクリーンアップに失敗しました",
			slog.String("error", cleanupErr.Error()),
		)
	}

	duration := time.Since(start)
	s.metrics.RecordRunDuration(duration)
	logger.Info("取り込みサイクルが完了しました",
		slog.Int("trend_count", len(trends)),
		slog.Int("committed", committed),
		slog.Int("failed_chunks", failedChunks),
		slog.Int("deleted_count", deleted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
