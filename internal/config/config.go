package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Classify
	ClassifyProvider string
	ClassifyAPIKey   string
	ClassifyModel    string
	ClassifyTimeout  time.Duration
	ClassifyInterval time.Duration

	// Sources
	TikTokTrendsURL    string
	InstagramTrendsURL string
	YouTubeFeedURLs    []string
	SourceTimeout      time.Duration
	SourceMaxSize      int64

	// Ingest
	IngestInterval time.Duration
	BatchLimit     int
	RetentionDays  int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// CLASSIFY_API_KEYは必須ではない: 未設定の場合、分類はUncategorizedへの
// フォールバックとして動作し、インジェスト自体は継続する。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ClassifyProvider = getEnvString("CLASSIFY_PROVIDER", "openai")
	cfg.ClassifyAPIKey = os.Getenv("CLASSIFY_API_KEY")
	cfg.ClassifyModel = os.Getenv("CLASSIFY_MODEL")
	cfg.ClassifyTimeout = getEnvDuration("CLASSIFY_TIMEOUT", 30*time.Second)
	cfg.ClassifyInterval = getEnvDuration("CLASSIFY_INTERVAL", 200*time.Millisecond)

	cfg.TikTokTrendsURL = os.Getenv("TIKTOK_TRENDS_URL")
	cfg.InstagramTrendsURL = os.Getenv("INSTAGRAM_TRENDS_URL")
	cfg.YouTubeFeedURLs = splitList(os.Getenv("YOUTUBE_FEED_URLS"))
	cfg.SourceTimeout = getEnvDuration("SOURCE_TIMEOUT", 15*time.Second)
	cfg.SourceMaxSize = getEnvInt64("SOURCE_MAX_SIZE", 5242880)

	cfg.IngestInterval = getEnvDuration("INGEST_INTERVAL", 24*time.Hour)
	cfg.BatchLimit = getEnvInt("BATCH_LIMIT", 490)
	cfg.RetentionDays = getEnvInt("RETENTION_DAYS", 30)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// splitList はカンマ区切りの環境変数値を文字列スライスに分割する。
// 空要素は除去する。
func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
