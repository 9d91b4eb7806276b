package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/trendradar/internal/metrics"
	"github.com/hitoshi/trendradar/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string

	// トレンド参照
	TrendService TrendServiceInterface

	// ヘルスチェック
	DB Pinger

	// Prometheusスクレイプ
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware → CORSMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	trendHandler := NewTrendHandler(deps.TrendService)
	healthHandler := NewHealthHandler(deps.DB)

	r.Route("/api/trends", func(r chi.Router) {
		r.Get("/", trendHandler.ListTrends)
	})

	r.Get("/health", healthHandler.Health)

	// Prometheusスクレイプ用エンドポイント
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	return r
}
