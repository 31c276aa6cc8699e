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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/dotsite/internal/activation"
	"github.com/hitoshi/dotsite/internal/config"
	"github.com/hitoshi/dotsite/internal/database"
	"github.com/hitoshi/dotsite/internal/fallback"
	"github.com/hitoshi/dotsite/internal/handler"
	"github.com/hitoshi/dotsite/internal/learning"
	"github.com/hitoshi/dotsite/internal/logger"
	"github.com/hitoshi/dotsite/internal/metrics"
	"github.com/hitoshi/dotsite/internal/middleware"
	"github.com/hitoshi/dotsite/internal/repository"
	"github.com/hitoshi/dotsite/internal/security"
	"github.com/hitoshi/dotsite/internal/worker"
	"github.com/hitoshi/dotsite/internal/worker/cleanup"
	"github.com/hitoshi/dotsite/internal/worker/eventstatus"
)

const (
	// activationCapacity は同時に保持するアクティベーション数の上限。
	activationCapacity = 10000
	// imageProbeMaxRedirects は画像の疎通確認で追跡するリダイレクト回数の上限。
	imageProbeMaxRedirects = 3
	// sessionCleanupInterval は期限切れセッションの削除間隔。
	sessionCleanupInterval = 24 * time.Hour
	dbConnectTimeout       = 10 * time.Second
)

var workerPool = database.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1}

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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newMetricsRegistry はアプリケーションのメトリクスとランタイムのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(context.Background(), cfg.DatabaseURL, cfg.DBPool, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established",
		slog.Int("max_open_conns", cfg.DBPool.MaxOpenConns),
	)

	// 2. メトリクス
	reg, collector := newMetricsRegistry()

	// 3. リポジトリの初期化（ストア操作はメトリクス付きでラップする）
	contentRepo := repository.NewInstrumentedContentRepo(repository.NewPostgresContentRepo(db), collector)
	profileRepo := repository.NewInstrumentedProfileRepo(repository.NewPostgresProfileRepo(db), collector)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewHTMLSanitizer()

	// 5. 画像の疎通確認
	var prober fallback.Prober
	if cfg.ImageProbeEnabled {
		httpProber := fallback.NewHTTPProber(
			ssrfGuard.NewSafeClient(cfg.ImageProbeTimeout, imageProbeMaxRedirects),
			ssrfGuard, cfg.ImageProbeTimeout, cfg.ImageProbeTTL,
			collector, logger.WithComponent(slog.Default(), "image_probe"),
		)
		go httpProber.Start()
		defer httpProber.Stop()
		prober = httpProber
	}

	// 6. ページアクティベーション
	activations := activation.NewRegistry[*handler.Page](
		cfg.ActivationTTL, activationCapacity, collector,
		logger.WithComponent(slog.Default(), "activation"),
	)
	go activations.Start()
	defer activations.Stop()

	// 7. 学習ウィジェット
	generator := learning.NewOpenRouterClient(learning.ClientConfig{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Model:   cfg.LearningModel,
		Referer: cfg.BaseURL,
		Title:   cfg.SiteTitle,
		Timeout: cfg.LearningTimeout,
	}, logger.WithComponent(slog.Default(), "learning"))

	// 8. ハンドラーとルーターの構築
	pages, err := handler.NewHandler(handler.Deps{
		Content:      contentRepo,
		Profiles:     profileRepo,
		Activations:  activations,
		Images:       fallback.NewResolver(prober),
		Sanitizer:    sanitizer,
		Generator:    generator,
		Markdown:     learning.NewRenderer(sanitizer),
		Recorder:     collector,
		SiteTitle:    cfg.SiteTitle,
		PreviewCount: cfg.PreviewCount,
		Logger:       slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("failed to build handler: %w", err)
	}

	rateLimiter := middleware.NewRateLimiter(
		middleware.DefaultRateLimiterConfig(cfg.RateLimitSubmit),
		logger.WithComponent(slog.Default(), "ratelimit"),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Pages:         pages,
		SessionFinder: sessionRepo,
		RateLimiter:   rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		StatusRecorder: collector,
		HealthChecker:  db,
		Gatherer:       reg,
		Logger:         slog.Default(),
	})

	// 9. HTTPサーバーの起動
	// 学習ウィジェットの生成を待つため、WriteTimeoutは生成タイムアウトより長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LearningTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "web server")
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、イベント状態の更新とセッションのクリーンアップを定期実行する。
// メトリクス（/metrics）とヘルスチェック（/health）はWebサーバーとは別に公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続（ジョブ数分の接続があればよい）
	db, err := database.Connect(context.Background(), cfg.DatabaseURL, workerPool, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. メトリクスとリポジトリの初期化
	reg, collector := newMetricsRegistry()
	contentRepo := repository.NewInstrumentedContentRepo(repository.NewPostgresContentRepo(db), collector)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 3. ジョブの登録
	scheduler := worker.NewScheduler(logger.WithComponent(slog.Default(), "scheduler"))
	scheduler.Add(eventstatus.NewJob(contentRepo, collector, slog.Default()), cfg.EventStatusInterval)
	scheduler.Add(cleanup.NewCleanupJob(sessionRepo, slog.Default()), sessionCleanupInterval)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.SetupMetricsRoute(reg))
	mux.Handle("/health", handler.NewHealthHandler(db, slog.Default()))
	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("event_status_interval", cfg.EventStatusInterval),
		slog.Duration("session_cleanup_interval", sessionCleanupInterval),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
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
