package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/trendradar/internal/classify"
	"github.com/hitoshi/trendradar/internal/model"
	"github.com/hitoshi/trendradar/internal/security"
	"github.com/hitoshi/trendradar/internal/source"
)

// mockSource はテスト用のソース実装。
type mockSource struct {
	platform model.Platform
	trends   []model.RawTrend
	err      error
}

func (m *mockSource) Platform() model.Platform { return m.platform }

func (m *mockSource) Fetch(ctx context.Context) ([]model.RawTrend, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.trends, nil
}

// mockClassifier はテスト用の分類器実装。
type mockClassifier struct {
	results map[string]classify.Result // タイトル→結果
	err     error
	calls   []string
}

func (m *mockClassifier) Classify(ctx context.Context, req classify.Request) (classify.Result, error) {
	m.calls = append(m.calls, req.TrendTitle)
	if m.err != nil {
		return classify.Result{}, m.err
	}
	if r, ok := m.results[req.TrendTitle]; ok {
		return r, nil
	}
	return classify.Result{Category: model.Uncategorized, Confidence: 0}, nil
}

// mockMetrics はテスト用のメトリクスコレクター実装。
type mockMetrics struct {
	fetchSuccess  int
	fetchFailure  int
	classifyOK    int
	fallbacks     int
	committed     int
	batchFailures int
	staleDeleted  int
	runDurations  int
}

func (m *mockMetrics) RecordSourceFetchSuccess(platform string, count int) { m.fetchSuccess++ }
func (m *mockMetrics) RecordSourceFetchFailure(platform string)            { m.fetchFailure++ }
func (m *mockMetrics) RecordClassifySuccess()                              { m.classifyOK++ }
func (m *mockMetrics) RecordClassifyFallback()                             { m.fallbacks++ }
func (m *mockMetrics) RecordTrendsCommitted(count int)                     { m.committed += count }
func (m *mockMetrics) RecordBatchFailure()                                 { m.batchFailures++ }
func (m *mockMetrics) RecordStaleDeleted(count int)                        { m.staleDeleted += count }
func (m *mockMetrics) RecordRunDuration(d time.Duration)                   { m.runDurations++ }

func newTestPipeline(sources []source.Source, classifier classify.Classifier, m *mockMetrics) *Pipeline {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	return New(
		sources,
		classifier,
		security.NewContentSanitizer(),
		rate.NewLimiter(rate.Inf, 1),
		logger,
		m,
	)
}

func rawTrend(title, url string, platform model.Platform) model.RawTrend {
	return model.RawTrend{Title: title, URL: url, Platform: platform}
}

// TestRun_MergesAllSources は全ソースの結果が結合されることを検証する。
func TestRun_MergesAllSources(t *testing.T) {
	sources := []source.Source{
		&mockSource{platform: model.PlatformTikTok, trends: []model.RawTrend{
			rawTrend("tiktok-1", "http://t/1", model.PlatformTikTok),
			rawTrend("tiktok-2", "http://t/2", model.PlatformTikTok),
		}},
		&mockSource{platform: model.PlatformInstagram, trends: []model.RawTrend{
			rawTrend("insta-1", "http://i/1", model.PlatformInstagram),
		}},
	}
	classifier := &mockClassifier{}
	m := &mockMetrics{}

	p := newTestPipeline(sources, classifier, m)
	trends, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	if len(trends) != 3 {
		t.Errorf("トレンド数 = %d, want 3", len(trends))
	}
	if m.fetchSuccess != 2 {
		t.Errorf("fetchSuccess = %d, want 2", m.fetchSuccess)
	}
	// ソースの登録順が保たれること
	if trends[0].Title != "tiktok-1" || trends[2].Title != "insta-1" {
		t.Errorf("結合順が想定と異なる: %q, %q", trends[0].Title, trends[2].Title)
	}
}

// TestRun_PartialSourceFailure は1ソースの失敗時に残りのソースの結果で
// 処理が継続されることを検証する。
func TestRun_PartialSourceFailure(t *testing.T) {
	sources := []source.Source{
		&mockSource{platform: model.PlatformTikTok, trends: []model.RawTrend{
			rawTrend("tiktok-1", "http://t/1", model.PlatformTikTok),
		}},
		&mockSource{platform: model.PlatformInstagram, err: errors.New("api down")},
		&mockSource{platform: model.PlatformYouTube, trends: []model.RawTrend{
			rawTrend("yt-1", "http://y/1", model.PlatformYouTube),
		}},
	}
	m := &mockMetrics{}

	p := newTestPipeline(sources, &mockClassifier{}, m)
	trends, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("部分失敗時もエラーを返すべきではない: %v", err)
	}

	if len(trends) != 2 {
		t.Errorf("トレンド数 = %d, want 2", len(trends))
	}
	if m.fetchFailure != 1 {
		t.Errorf("fetchFailure = %d, want 1", m.fetchFailure)
	}
}

// TestRun_AllSourcesEmpty は全ソースが空の場合に空スライスが返り、
// 分類が呼ばれないことを検証する。
func TestRun_AllSourcesEmpty(t *testing.T) {
	sources := []source.Source{
		&mockSource{platform: model.PlatformTikTok},
		&mockSource{platform: model.PlatformInstagram, err: errors.New("api down")},
	}
	classifier := &mockClassifier{}

	p := newTestPipeline(sources, classifier, &mockMetrics{})
	trends, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	if len(trends) != 0 {
		t.Errorf("トレンド数 = %d, want 0", len(trends))
	}
	if len(classifier.calls) != 0 {
		t.Errorf("空サイクルで分類器が呼ばれた: %d回", len(classifier.calls))
	}
}

// TestRun_ClassifiesEachTrend は各トレンドが分類され、カテゴリと信頼度が
// 設定されることを検証する。
func TestRun_ClassifiesEachTrend(t *testing.T) {
	sources := []source.Source{
		&mockSource{platform: model.PlatformTikTok, trends: []model.RawTrend{
			rawTrend("Trend A", "http://x/1", model.PlatformTikTok),
		}},
	}
	classifier := &mockClassifier{results: map[string]classify.Result{
		"Trend A": {Category: "Tech", Confidence: 0.9},
	}}

	p := newTestPipeline(sources, classifier, &mockMetrics{})
	trends, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	if trends[0].ID != "http___x_1" {
		t.Errorf("ID = %q, want %q", trends[0].ID, "http___x_1")
	}
	if trends[0].Category != "Tech" {
		t.Errorf("Category = %q, want Tech", trends[0].Category)
	}
	if trends[0].CategoryConfidence != 0.9 {
		t.Errorf("CategoryConfidence = %v, want 0.9", trends[0].CategoryConfidence)
	}
}

// TestRun_ClampsConfidence は分類結果の信頼度が[0,1]にクランプされることを検証する。
func TestRun_ClampsConfidence(t *testing.T) {
	sources := []source.Source{
		&mockSource{platform: model.PlatformTikTok, trends: []model.RawTrend{
			rawTrend("high", "http://x/1", model.PlatformTikTok),
			rawTrend("low", "http://x/2", model.PlatformTikTok),
		}},
	}
	classifier := &mockClassifier{results: map[string]classify.Result{
		"high": {Category: "Tech", Confidence: 1.4},
		"low":  {Category: "Tech", Confidence: -0.2},
	}}

	p := newTestPipeline(sources, classifier, &mockMetrics{})
	trends, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	if trends[0].CategoryConfidence != 1 {
		t.Errorf("上限クランプ: CategoryConfidence = %v, want 1", trends[0].CategoryConfidence)
	}
	if trends[1].CategoryConfidence != 0 {
		t.Errorf("下限クランプ: CategoryConfidence = %v, want 0", trends[1].CategoryConfidence)
	}
}

// TestRun_ClassifyFailureFallsBack は分類失敗時にUncategorized/信頼度0へ
// フォールバックし、処理が継続することを検証する。
func TestRun_ClassifyFailureFallsBack(t *testing.T) {
	sources := []source.Source{
		&mockSource{platform: model.PlatformTikTok, trends: []model.RawTrend{
			rawTrend("Trend B", "http://x/2", model.PlatformTikTok),
		}},
	}
	classifier := &mockClassifier{err: errors.New("llm unavailable")}
	m := &mockMetrics{}

	p := newTestPipeline(sources, classifier, m)
	trends, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("分類失敗時もエラーを返すべきではない: %v", err)
	}

	if trends[0].Category != model.Uncategorized {
		t.Errorf("Category = %q, want %q", trends[0].Category, model.Uncategorized)
	}
	if trends[0].CategoryConfidence != 0 {
		t.Errorf("CategoryConfidence = %v, want 0", trends[0].CategoryConfidence)
	}
	if m.fallbacks != 1 {
		t.Errorf("fallbacks = %d, want 1", m.fallbacks)
	}
}

// TestRun_NilClassifier は分類器未設定の場合に分類をスキップし、
// 全トレンドがUncategorizedのまま返ることを検証する。
func TestRun_NilClassifier(t *testing.T) {
	sources := []source.Source{
		&mockSource{platform: model.PlatformTikTok, trends: []model.RawTrend{
			rawTrend("Trend C", "http://x/3", model.PlatformTikTok),
		}},
	}

	p := newTestPipeline(sources, nil, &mockMetrics{})
	trends, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	if trends[0].Category != model.Uncategorized {
		t.Errorf("Category = %q, want %q", trends[0].Category, model.Uncategorized)
	}
}

// TestRun_SanitizesDescription は説明文からHTMLタグが除去されることを検証する。
func TestRun_SanitizesDescription(t *testing.T) {
	sources := []source.Source{
		&mockSource{platform: model.PlatformInstagram, trends: []model.RawTrend{
			{
				Title:       "Trend D",
				URL:         "http://x/4",
				Platform:    model.PlatformInstagram,
				Description: "<p>New <b>look</b></p><script>alert(1)</script>",
			},
		}},
	}

	p := newTestPipeline(sources, &mockClassifier{}, &mockMetrics{})
	trends, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	if strings.Contains(trends[0].Description, "<") {
		t.Errorf("説明文にタグが残っている: %q", trends[0].Description)
	}
	if strings.Contains(trends[0].Description, "alert") {
		t.Errorf("スクリプト内容が残っている: %q", trends[0].Description)
	}
}

// TestRun_SequentialClassification は分類が取得順に1件ずつ行われることを検証する。
func TestRun_SequentialClassification(t *testing.T) {
	sources := []source.Source{
		&mockSource{platform: model.PlatformTikTok, trends: []model.RawTrend{
			rawTrend("first", "http://x/1", model.PlatformTikTok),
			rawTrend("second", "http://x/2", model.PlatformTikTok),
			rawTrend("third", "http://x/3", model.PlatformTikTok),
		}},
	}
	classifier := &mockClassifier{}

	p := newTestPipeline(sources, classifier, &mockMetrics{})
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run がエラーを返した: %v", err)
	}

	want := []string{"first", "second", "third"}
	if len(classifier.calls) != len(want) {
		t.Fatalf("分類呼び出し回数 = %d, want %d", len(classifier.calls), len(want))
	}
	for i, title := range want {
		if classifier.calls[i] != title {
			t.Errorf("呼び出し順[%d] = %q, want %q", i, classifier.calls[i], title)
		}
	}
}

// TestRun_ContextCanceledDuringClassification は分類中のキャンセルでエラーが返ることを検証する。
func TestRun_ContextCanceledDuringClassification(t *testing.T) {
	sources := []source.Source{
		&mockSource{platform: model.PlatformTikTok, trends: []model.RawTrend{
			rawTrend("Trend E", "http://x/5", model.PlatformTikTok),
		}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(sources, &mockClassifier{}, &mockMetrics{})
	p.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	p.limiter.Allow() // バーストを消費し、次のWaitを待機させる

	if _, err := p.Run(ctx); err == nil {
		t.Error("キャンセル済みコンテキストではエラーを返すべき")
	}
}
