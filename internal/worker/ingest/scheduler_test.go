package ingest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/trendradar/internal/classify"
	"github.com/hitoshi/trendradar/internal/model"
	"github.com/hitoshi/trendradar/internal/pipeline"
	"github.com/hitoshi/trendradar/internal/repository"
	"github.com/hitoshi/trendradar/internal/security"
	"github.com/hitoshi/trendradar/internal/source"
	"github.com/hitoshi/trendradar/internal/trend"
)

// mockPipeline はテスト用のパイプライン実装。
type mockPipeline struct {
	trends []model.ProcessedTrend
	err    error
	panics bool
	runs   int
}

func (m *mockPipeline) Run(ctx context.Context) ([]model.ProcessedTrend, error) {
	m.runs++
	if m.panics {
		panic("boom")
	}
	return m.trends, m.err
}

// mockWriter はテスト用のライター実装。
type mockWriter struct {
	results    []trend.BatchResult
	written    []model.ProcessedTrend
	cleanupErr error
	deleted    int
}

func (m *mockWriter) Write(ctx context.Context, trends []model.ProcessedTrend) []trend.BatchResult {
	m.written = append(m.written, trends...)
	return m.results
}

func (m *mockWriter) Cleanup(ctx context.Context) (int, error) {
	if m.cleanupErr != nil {
		return 0, m.cleanupErr
	}
	return m.deleted, nil
}

// mockMetrics はテスト用のメトリクスコレクター実装。
type mockMetrics struct {
	runDurations int
	fallbacks    int
}

func (m *mockMetrics) RecordSourceFetchSuccess(platform string, count int) {}
func (m *mockMetrics) RecordSourceFetchFailure(platform string)            {}
func (m *mockMetrics) RecordClassifySuccess()                              {}
func (m *mockMetrics) RecordClassifyFallback()                             { m.fallbacks++ }
func (m *mockMetrics) RecordTrendsCommitted(count int)                     {}
func (m *mockMetrics) RecordBatchFailure()                                 {}
func (m *mockMetrics) RecordStaleDeleted(count int)                        {}
func (m *mockMetrics) RecordRunDuration(d time.Duration)                   { m.runDurations++ }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

// TestRunOnce_Success は正常系でパイプライン結果がライターに渡されることを検証する。
func TestRunOnce_Success(t *testing.T) {
	p := &mockPipeline{trends: []model.ProcessedTrend{
		{ID: "http___x_1", Title: "Trend A"},
	}}
	w := &mockWriter{results: []trend.BatchResult{{Committed: 1}}}
	m := &mockMetrics{}

	s := NewScheduler(p, w, testLogger(), m)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	if len(w.written) != 1 {
		t.Errorf("書き込み件数 = %d, want 1", len(w.written))
	}
	if m.runDurations != 1 {
		t.Errorf("runDurations = %d, want 1", m.runDurations)
	}
}

// TestRunOnce_PipelineError はパイプライン失敗時にエラーが返ることを検証する。
func TestRunOnce_PipelineError(t *testing.T) {
	p := &mockPipeline{err: errors.New("pipeline down")}
	w := &mockWriter{}

	s := NewScheduler(p, w, testLogger(), &mockMetrics{})
	if err := s.RunOnce(context.Background()); err == nil {
		t.Error("パイプライン失敗時はエラーを返すべき")
	}

	if len(w.written) != 0 {
		t.Error("パイプライン失敗時は書き込みを行うべきではない")
	}
}

// TestRunOnce_PanicRecovered はパイプラインのpanicがrecoverされ、
// エラーとして返ることを検証する。
func TestRunOnce_PanicRecovered(t *testing.T) {
	p := &mockPipeline{panics: true}

	s := NewScheduler(p, &mockWriter{}, testLogger(), &mockMetrics{})
	if err := s.RunOnce(context.Background()); err == nil {
		t.Error("panic発生時はエラーを返すべき")
	}
}

// TestRunOnce_CleanupFailureDoesNotFailCycle はクリーンアップ失敗がサイクル全体の
// 失敗として扱われないことを検証する。
func TestRunOnce_CleanupFailureDoesNotFailCycle(t *testing.T) {
	p := &mockPipeline{trends: []model.ProcessedTrend{{ID: "http___x_1"}}}
	w := &mockWriter{
		results:    []trend.BatchResult{{Committed: 1}},
		cleanupErr: errors.New("store unavailable"),
	}

	s := NewScheduler(p, w, testLogger(), &mockMetrics{})
	if err := s.RunOnce(context.Background()); err != nil {
		t.Errorf("クリーンアップ失敗時もサイクルは成功すべき: %v", err)
	}
}

// TestStart_RunsImmediatelyAndStopsOnCancel は起動直後の実行と
// コンテキストキャンセルによる停止を検証する。
func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	p := &mockPipeline{}
	s := NewScheduler(p, &mockWriter{}, testLogger(), &mockMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回が実行されるのを待つ
	deadline := time.After(2 * time.Second)
	for p.runs == 0 {
		select {
		case <-deadline:
			t.Fatal("起動直後の実行が行われなかった")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後にStartが停止しなかった")
	}

	if p.runs != 1 {
		t.Errorf("実行回数 = %d, want 1", p.runs)
	}
}

// --- エンドツーエンドのサイクル検証 ---

type fakeSource struct {
	platform model.Platform
	trends   []model.RawTrend
	err      error
}

func (f *fakeSource) Platform() model.Platform { return f.platform }

func (f *fakeSource) Fetch(ctx context.Context) ([]model.RawTrend, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.trends, nil
}

type fakeClassifier struct {
	results map[string]classify.Result
}

func (f *fakeClassifier) Classify(ctx context.Context, req classify.Request) (classify.Result, error) {
	if r, ok := f.results[req.TrendTitle]; ok {
		return r, nil
	}
	return classify.Result{}, errors.New("classification failed")
}

type fakeRepo struct {
	upserted []model.ProcessedTrend
}

func (f *fakeRepo) UpsertBatch(ctx context.Context, trends []model.ProcessedTrend) (int, error) {
	f.upserted = append(f.upserted, trends...)
	return len(trends), nil
}

func (f *fakeRepo) ListStaleIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	return nil, nil
}

func (f *fakeRepo) DeleteByIDs(ctx context.Context, ids []string) (int, error) { return 0, nil }

func (f *fakeRepo) ListTrends(ctx context.Context, filter repository.TrendFilter) ([]model.ProcessedTrend, error) {
	return nil, nil
}

// TestRunOnce_FullCycle は実際のパイプラインとライターを組み合わせた
// 1サイクルの動作を検証する:
// TikTokの成功、Instagramの失敗、分類失敗時のUncategorizedフォールバック。
func TestRunOnce_FullCycle(t *testing.T) {
	sources := []source.Source{
		&fakeSource{platform: model.PlatformTikTok, trends: []model.RawTrend{
			{Title: "Trend A", URL: "http://x/1", Platform: model.PlatformTikTok},
		}},
		&fakeSource{platform: model.PlatformInstagram, err: errors.New("api down")},
		&fakeSource{platform: model.PlatformYouTube, trends: []model.RawTrend{
			{Title: "Trend B", URL: "http://x/2", Platform: model.PlatformYouTube},
		}},
	}
	classifier := &fakeClassifier{results: map[string]classify.Result{
		"Trend A": {Category: "Tech", Confidence: 0.9},
	}}
	m := &mockMetrics{}

	p := pipeline.New(
		sources,
		classifier,
		security.NewContentSanitizer(),
		rate.NewLimiter(rate.Inf, 1),
		testLogger(),
		m,
	)

	repo := &fakeRepo{}
	w := trend.NewBatchWriter(repo, testLogger(), m, trend.DefaultBatchLimit, 30)

	s := NewScheduler(p, w, testLogger(), m)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce がエラーを返した: %v", err)
	}

	if len(repo.upserted) != 2 {
		t.Fatalf("UPSERT件数 = %d, want 2", len(repo.upserted))
	}

	byID := make(map[string]model.ProcessedTrend)
	for _, tr := range repo.upserted {
		byID[tr.ID] = tr
	}

	a, ok := byID["http___x_1"]
	if !ok {
		t.Fatal("ID http___x_1 のトレンドが保存されていない")
	}
	if a.Category != "Tech" || a.CategoryConfidence != 0.9 {
		t.Errorf("Trend A = %q/%v, want Tech/0.9", a.Category, a.CategoryConfidence)
	}

	b, ok := byID["http___x_2"]
	if !ok {
		t.Fatal("ID http___x_2 のトレンドが保存されていない")
	}
	if b.Category != model.Uncategorized || b.CategoryConfidence != 0 {
		t.Errorf("Trend B = %q/%v, want %s/0", b.Category, b.CategoryConfidence, model.Uncategorized)
	}

	if m.fallbacks != 1 {
		t.Errorf("フォールバック数 = %d, want 1", m.fallbacks)
	}
}
