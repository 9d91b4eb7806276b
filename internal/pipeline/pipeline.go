// Package pipeline はソース取得からニッチ分類までの取り込みパイプラインを提供する。
// 各ソースの並列取得、部分失敗の許容、正規化、分類APIの逐次呼び出しを担う。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/trendradar/internal/classify"
	"github.com/hitoshi/trendradar/internal/metrics"
	"github.com/hitoshi/trendradar/internal/model"
	"github.com/hitoshi/trendradar/internal/niche"
	"github.com/hitoshi/trendradar/internal/security"
	"github.com/hitoshi/trendradar/internal/source"
)

// Pipeline はトレンド取り込みの1サイクルを実行する。
// classifierがnilの場合、分類は行わず全トレンドをUncategorizedのまま返す。
type Pipeline struct {
	sources    []source.Source
	classifier classify.Classifier
	sanitizer  security.ContentSanitizerService
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// New はPipelineの新しいインスタンスを生成する。
// limiterは分類API呼び出しの間隔を制御する（テストではrate.NewLimiter(rate.Inf, 1)を渡す）。
func New(
	sources []source.Source,
	classifier classify.Classifier,
	sanitizer security.ContentSanitizerService,
	limiter *rate.Limiter,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Pipeline {
	return &Pipeline{
		sources:    sources,
		classifier: classifier,
		sanitizer:  sanitizer,
		limiter:    limiter,
		logger:     logger,
		metrics:    collector,
	}
}

// Run は全ソースを並列に取得し、正規化と分類を行ったトレンド一覧を返す。
// 一部のソースが失敗しても残りの結果で処理を継続する。
// 全ソースが空（または全滅）の場合は空スライスを返す。
func (p *Pipeline) Run(ctx context.Context) ([]model.ProcessedTrend, error) {
	discoveredAt := time.Now().UTC()

	raws := p.fetchAll(ctx)
	if len(raws) == 0 {
		p.logger.Info("取得されたトレンドがないためサイクルをスキップします")
		return []model.ProcessedTrend{}, nil
	}

	trends := make([]model.ProcessedTrend, 0, len(raws))
	for _, raw := range raws {
		trend := model.NewProcessedTrend(raw, discoveredAt)
		trend.Description = p.sanitizer.Sanitize(trend.Description)
		trends = append(trends, trend)
	}

	if err := p.classifyAll(ctx, trends); err != nil {
		return nil, err
	}

	return trends, nil
}

// fetchAll は全ソースを並列に取得し、ソース順を保った結合結果を返す。
// 失敗したソースはログに記録し、結果には0件として扱う。
func (p *Pipeline) fetchAll(ctx context.Context) []model.RawTrend {
	results := make([][]model.RawTrend, len(p.sources))

	var wg sync.WaitGroup
	for i, src := range p.sources {
		wg.Add(1)

		go func(idx int, s source.Source) {
			defer wg.Done()

			trends, err := s.Fetch(ctx)
			if err != nil {
				p.logger.Error("ソースの取得に失敗しました",
					slog.String("platform", string(s.Platform())),
					slog.String("error", err.Error()),
				)
				p.metrics.RecordSourceFetchFailure(string(s.Platform()))
				return
			}

			p.logger.Info("ソースの取得が完了しました",
				slog.String("platform", string(s.Platform())),
				slog.Int("trend_count", len(trends)),
			)
			p.metrics.RecordSourceFetchSuccess(string(s.Platform()), len(trends))
			results[idx] = trends
		}(i, src)
	}
	wg.Wait()

	var merged []model.RawTrend
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged
}

// classifyAll は各トレンドを1件ずつ順番に分類する。
// レートリミッターで呼び出し間隔を空け、分類APIへの負荷を抑える。
// 個々の分類失敗はUncategorizedへのフォールバックとして扱い、処理を継続する。
func (p *Pipeline) classifyAll(ctx context.Context, trends []model.ProcessedTrend) error {
	if p.classifier == nil {
		p.logger.Warn("分類器が未設定のため全トレンドをUncategorizedとして登録します",
			slog.Int("trend_count", len(trends)),
		)
		return nil
	}

	for i := range trends {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("分類呼び出しの待機に失敗: %w", err)
		}

		result, err := p.classifier.Classify(ctx, classify.Request{
			TrendTitle:       trends[i].Title,
			TrendDescription: trends[i].Description,
			Niches:           niche.Catalog,
		})
		if err != nil {
			p.logger.Warn("ニッチ分類に失敗したためUncategorizedとして扱います",
				slog.String("trend_id", trends[i].ID),
				slog.String("title", trends[i].Title),
				slog.String("error", err.Error()),
			)
			p.metrics.RecordClassifyFallback()
			continue
		}

		trends[i].Category = result.Category
		trends[i].CategoryConfidence = model.ClampConfidence(result.Confidence)
		p.metrics.RecordClassifySuccess()
	}

	return nil
}
