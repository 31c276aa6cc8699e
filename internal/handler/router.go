package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/dotsite/internal/metrics"
	"github.com/hitoshi/dotsite/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Pages *Handler

	// ミドルウェア依存
	SessionFinder  middleware.SessionFinder
	RateLimiter    *middleware.RateLimiter
	CSRF           middleware.CSRFConfig
	StatusRecorder middleware.HTTPStatusRecorder

	// 運用エンドポイント
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	Logger *slog.Logger
}

// NewRouter はページとフォーム操作のルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Session → Logging → CSRF
//
// ログにuser_idを含めるため、SessionはLoggingより外側に置く。
// /health・/metrics・/static/* はSession以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.Get("/health", NewHealthHandler(deps.HealthChecker, logger))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Handle("/static/*", staticHandler())

	h := deps.Pages
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, logger))
		r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF, logger))

		// トップページ
		r.Get("/", h.Home)
		r.Post("/retry", h.RetryPreview)
		r.With(deps.RateLimiter.RefreshMiddleware()).Post("/learning/refresh", h.RefreshLearning)

		// ブログ・イベント
		for name := range sections {
			r.Route("/"+name, func(r chi.Router) {
				r.Get("/", h.Section(name))
				r.Post("/retry", h.sectionHandler(name, retryItems))
				r.Post("/new", h.sectionHandler(name, openCreate))
				r.Post("/edit/{id}", h.sectionHandler(name, openEdit(sections[name].Kind)))
				r.Post("/cancel", h.sectionHandler(name, cancelForm))
				r.With(deps.RateLimiter.SubmitMiddleware()).Post("/submit", h.sectionHandler(name, submitForm))
			})
		}

		// メンバー
		r.Get("/members", h.Members)
		r.Post("/members/retry", h.RetryMembers)
	})

	return r
}
