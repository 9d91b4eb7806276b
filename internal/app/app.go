package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/trendradar/internal/classify"
	"github.com/hitoshi/trendradar/internal/config"
	"github.com/hitoshi/trendradar/internal/database"
	"github.com/hitoshi/trendradar/internal/handler"
	"github.com/hitoshi/trendradar/internal/logger"
	"github.com/hitoshi/trendradar/internal/metrics"
	"github.com/hitoshi/trendradar/internal/pipeline"
	"github.com/hitoshi/trendradar/internal/repository"
	"github.com/hitoshi/trendradar/internal/security"
	"github.com/hitoshi/trendradar/internal/source"
	"github.com/hitoshi/trendradar/internal/trend"
	"github.com/hitoshi/trendradar/internal/worker/ingest"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandIngest:
		return runIngest(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、トレンド参照APIとヘルスチェック、Prometheusエンドポイントを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	trendRepo := repository.NewPostgresTrendRepo(db)

	// 3. メトリクスレジストリの初期化
	// 取り込みメトリクスはワーカープロセス側で記録・公開されるため、
	// APIプロセスのレジストリには登録しない。
	reg := prometheus.NewRegistry()

	// 4. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrendService:      trendRepo,
		DB:                db,
		Gatherer:          reg,
	}

	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、取り込みスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	scheduler, db, gatherer, err := buildScheduler(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// ワーカーのメトリクスをスクレイプ可能にするための小さなHTTPサーバー
	metricsServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newWorkerMux(gatherer, db),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		slog.Info("worker metrics server starting",
			slog.String("addr", metricsServer.Addr),
		)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("ingest_interval", cfg.IngestInterval),
	)

	// 取り込みスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.IngestInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// newWorkerMux はワーカープロセスの/metricsと/healthを提供するハンドラーを構築する。
func newWorkerMux(gatherer prometheus.Gatherer, db handler.Pinger) http.Handler {
	mux := http.NewServeMux()
	metrics.SetupMetricsRoute(mux, gatherer)
	mux.HandleFunc("/health", handler.NewHealthHandler(db).Health)
	return mux
}

// runIngest は取り込みサイクルを1回だけ実行して終了する。
// 手動実行や外部のジョブスケジューラからの起動に使う。
func runIngest(cfg *config.Config) error {
	scheduler, db, _, err := buildScheduler(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return scheduler.RunOnce(ctx)
}

// buildScheduler は取り込みに必要な全依存関係をワイヤリングしたスケジューラを構築する。
// 戻り値のdbは呼び出し側でCloseすること。gathererはワーカーの/metricsが提供する。
func buildScheduler(cfg *config.Config) (*ingest.Scheduler, *sql.DB, prometheus.Gatherer, error) {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリとメトリクスの初期化
	trendRepo := repository.NewPostgresTrendRepo(db)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()
	safeClient := ssrfGuard.NewSafeClient(cfg.SourceTimeout)

	// 4. ソースアダプタの初期化
	// エンドポイント未設定のアダプタはスキップし、残りのソースで取り込みを行う。
	var sources []source.Source
	if cfg.TikTokTrendsURL != "" {
		sources = append(sources, source.NewTikTokSource(
			cfg.TikTokTrendsURL, safeClient, slog.Default(), cfg.SourceMaxSize,
		))
	} else {
		slog.Warn("TIKTOK_TRENDS_URL is not set, skipping TikTok source")
	}
	if cfg.InstagramTrendsURL != "" {
		sources = append(sources, source.NewInstagramSource(
			cfg.InstagramTrendsURL, safeClient, slog.Default(), cfg.SourceMaxSize,
		))
	} else {
		slog.Warn("INSTAGRAM_TRENDS_URL is not set, skipping Instagram source")
	}
	if len(cfg.YouTubeFeedURLs) > 0 {
		detector := source.NewFeedDetector(ssrfGuard, cfg.SourceTimeout, cfg.SourceMaxSize)
		sources = append(sources, source.NewYouTubeSource(
			cfg.YouTubeFeedURLs, detector, safeClient, slog.Default(), cfg.SourceMaxSize,
		))
	} else {
		slog.Warn("YOUTUBE_FEED_URLS is not set, skipping YouTube source")
	}

	// 5. 分類器の初期化
	// APIキー未設定や初期化失敗時は分類なし（全件Uncategorized）で取り込みを継続する。
	var classifier classify.Classifier
	if cfg.ClassifyAPIKey == "" {
		slog.Warn("CLASSIFY_API_KEY is not set, trends will be stored as Uncategorized")
	} else {
		classifier, err = classify.New(
			cfg.ClassifyProvider, cfg.ClassifyAPIKey, cfg.ClassifyModel,
			&http.Client{Timeout: cfg.ClassifyTimeout},
		)
		if err != nil {
			slog.Warn("failed to initialize classifier, trends will be stored as Uncategorized",
				slog.String("error", err.Error()),
			)
			classifier = nil
		}
	}

	// 6. パイプラインとライターの構築
	limiter := rate.NewLimiter(rate.Every(cfg.ClassifyInterval), 1)
	p := pipeline.New(sources, classifier, sanitizer, limiter, slog.Default(), collector)
	writer := trend.NewBatchWriter(trendRepo, slog.Default(), collector, cfg.BatchLimit, cfg.RetentionDays)

	return ingest.NewScheduler(p, writer, slog.Default(), collector), db, reg, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
