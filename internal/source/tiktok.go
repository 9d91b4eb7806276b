package source

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/trendradar/internal/model"
)

// NewTikTokSource はTikTok系トレンドAPIのソースアダプタを生成する。
// メトリクスは再生数（views）にマッピングされる。
// clientにはSSRF防止機能付きのHTTPクライアントを渡すこと。
func NewTikTokSource(endpoint string, client *http.Client, logger *slog.Logger, maxSize int64) Source {
	return &apiSource{
		platform: model.PlatformTikTok,
		metric:   metricViews,
		endpoint: endpoint,
		client:   client,
		logger:   logger,
		maxSize:  maxSize,
	}
}
