// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/trendradar/internal/model"
	"github.com/hitoshi/trendradar/internal/repository"
)

// defaultTrendsPerPage はトレンド一覧の1回の取得件数（デフォルト）。
const defaultTrendsPerPage = 50

// maxTrendsPerPage はトレンド一覧の1回の取得件数の上限。
const maxTrendsPerPage = 500

// TrendServiceInterface はトレンドハンドラーが必要とするサービスインターフェース。
type TrendServiceInterface interface {
	// ListTrends はフィルタ条件に合致するトレンドをprocessed_at降順で返す。
	ListTrends(ctx context.Context, filter repository.TrendFilter) ([]model.ProcessedTrend, error)
}

// TrendHandler はトレンド参照のHTTPハンドラー。
type TrendHandler struct {
	service TrendServiceInterface
}

// NewTrendHandler はTrendHandlerを生成する。
func NewTrendHandler(service TrendServiceInterface) *TrendHandler {
	return &TrendHandler{service: service}
}

// --- レスポンス型 ---

// trendResponse はトレンド1件のレスポンス。
type trendResponse struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Platform           string    `json:"platform"`
	URL                string    `json:"url"`
	Views              *int64    `json:"views,omitempty"`
	Likes              *int64    `json:"likes,omitempty"`
	Description        string    `json:"description"`
	Category           string    `json:"category"`
	CategoryConfidence float64   `json:"category_confidence"`
	DiscoveredAt       time.Time `json:"discovered_at"`
	ProcessedAt        time.Time `json:"processed_at"`
}

// trendListResponse はトレンド一覧のレスポンス。
type trendListResponse struct {
	Trends []trendResponse `json:"trends"`
	Count  int             `json:"count"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

// ListTrends はトレンド一覧を取得する。
// GET /api/trends?category=Tech&platform=TikTok&since=2026-08-01T00:00:00Z&limit=100
func (h *TrendHandler) ListTrends(w http.ResponseWriter, r *http.Request) {
	filter := repository.TrendFilter{Limit: defaultTrendsPerPage}

	q := r.URL.Query()

	filter.Category = q.Get("category")

	if p := q.Get("platform"); p != "" {
		platform, err := model.ParsePlatform(p)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPlatformError(p))
			return
		}
		filter.Platform = string(platform)
	}

	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSinceError(s))
			return
		}
		filter.Since = since
	}

	if l := q.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit <= 0 || limit > maxTrendsPerPage {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidLimitError(l))
			return
		}
		filter.Limit = limit
	}

	trends, err := h.service.ListTrends(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := trendListResponse{Trends: make([]trendResponse, 0, len(trends))}
	for _, trend := range trends {
		resp.Trends = append(resp.Trends, toTrendResponse(trend))
	}
	resp.Count = len(resp.Trends)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- ヘルパー関数 ---

// toTrendResponse はmodel.ProcessedTrendからAPIレスポンスに変換する。
func toTrendResponse(trend model.ProcessedTrend) trendResponse {
	return trendResponse{
		ID:                 trend.ID,
		Title:              trend.Title,
		Platform:           string(trend.Platform),
		URL:                trend.URL,
		Views:              trend.Views,
		Likes:              trend.Likes,
		Description:        trend.Description,
		Category:           trend.Category,
		CategoryConfidence: trend.CategoryConfidence,
		DiscoveredAt:       trend.DiscoveredAt,
		ProcessedAt:        trend.ProcessedAt,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidPlatform, model.ErrCodeInvalidLimit, model.ErrCodeInvalidSince:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
