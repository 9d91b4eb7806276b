package source

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/trendradar/internal/model"
)

// NewInstagramSource はInstagram系トレンドAPIのソースアダプタを生成する。
// メトリクスはいいね数（likes）にマッピングされる。
// clientにはSSRF防止機能付きのHTTPクライアントを渡すこと。
func NewInstagramSource(endpoint string, client *http.Client, logger *slog.Logger, maxSize int64) Source {
	return &apiSource{
		platform: model.PlatformInstagram,
		metric:   metricLikes,
		endpoint: endpoint,
		client:   client,
		logger:   logger,
		maxSize:  maxSize,
	}
}
