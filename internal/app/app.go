// Package app はアプリケーションの初期化と起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/storyman/internal/api"
	"github.com/hitoshi/storyman/internal/config"
	"github.com/hitoshi/storyman/internal/credstore"
	"github.com/hitoshi/storyman/internal/favicon"
	"github.com/hitoshi/storyman/internal/feed"
	"github.com/hitoshi/storyman/internal/handler"
	"github.com/hitoshi/storyman/internal/logger"
	"github.com/hitoshi/storyman/internal/metrics"
	"github.com/hitoshi/storyman/internal/middleware"
	"github.com/hitoshi/storyman/internal/security"
	"github.com/hitoshi/storyman/internal/session"
)

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば読み込み、環境変数からConfigを読み込み、
// JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envファイルの読み込み（ローカル実行用、存在しなくてもよい）
	_ = godotenv.Load()

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログの初期化
	logger.SetupDefault(w, cfg.LogLevel)

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
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	return runServe(cfg)
}

// runServe はローカルUIサーバーモードで起動する。
// 全依存関係をワイヤリングし、保存済み資格情報からのセッション復元と
// フィードの初回取得を行った後、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. ストーリーサービスAPIクライアントの初期化
	apiClient := api.NewClient(api.ClientConfig{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.RequestTimeout,
		RateLimit: cfg.APIRateLimit,
		RateBurst: cfg.APIRateBurst,
	}, log, collector)

	// 3. セッション管理の初期化
	credStore := credstore.NewFileStore(cfg.CredentialsFile)
	sessions := session.NewManager(apiClient, credStore, log)

	// 4. 保存済み資格情報からのセッション復元（失敗しても未ログインで続行）
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), cfg.RequestTimeout*2)
	defer cancelStartup()

	if sess := sessions.Restore(startupCtx); sess == nil {
		slog.Info("保存済みセッションなしで起動します")
	}

	// 5. フィードの初回取得
	sharedFeed, err := feed.FetchAll(startupCtx, apiClient, log)
	if err != nil {
		return fmt.Errorf("failed to fetch initial feed: %w", err)
	}

	// 6. 表示系サービスの初期化
	sanitizer := security.NewTextSanitizer()
	ssrfGuard := security.NewSSRFGuard()
	favicons := favicon.NewFetcher(ssrfGuard, log, cfg.FaviconTimeout, cfg.FaviconTTL)

	// 7. ハンドラーとルーターの構築
	ui, err := handler.NewUIHandler(sharedFeed, sessions, sanitizer, favicons, log)
	if err != nil {
		return fmt.Errorf("failed to build UI handler: %w", err)
	}

	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
		rateLimiterCfg.Rate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg, log)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		UI:          ui,
		RateLimiter: rateLimiter,
		Gatherer:    registry,
	})

	// 8. HTTPサーバーの起動
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
		slog.Info("UI server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down UI server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("UI server stopped gracefully")
	return nil
}

// runHealthcheck はローカルサーバーのヘルスチェックを実行する。
// /healthzが200を返せば成功とする。
func runHealthcheck(port string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://localhost:" + port + "/healthz")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}
