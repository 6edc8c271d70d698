package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/backoffice/internal/guard"
	"github.com/hitoshi/backoffice/internal/middleware"
	"github.com/hitoshi/backoffice/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// セッション
	Session    SessionSource
	Hydration  guard.HydrationWaiter
	Login      LoginService
	Landing    string
	RouteTable guard.RouteTable
	Sanitizer  *security.MessageSanitizer

	// バックエンドへのプロキシ
	APIBaseURL   *url.URL
	APITransport http.RoundTripper

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter はコンソールの全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → SecurityHeaders → CORS → Session → Logging
//
// /health と /metrics はCSRFミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) (http.Handler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	views, err := NewViews(logger)
	if err != nil {
		return nil, err
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewMessageSanitizer()
	}

	authHandler := NewAuthHandler(deps.Login, deps.Session, deps.Hydration, views, sanitizer, deps.Landing, logger)
	sessionHandler := NewSessionHandler(deps.Session, logger)
	viewHandler := NewViewHandler(deps.Session, views, deps.RouteTable)
	authorizer := guard.NewAuthorizer(deps.Session, logger)

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(chimw.RealIP)
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRF.CookieSecure))
	if deps.CORSAllowedOrigin != "" {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	}
	// ユーザー名をアクセスログに含めるため、Loggingより外側に置く
	r.Use(middleware.NewSessionMiddleware(deps.Session))
	r.Use(middleware.NewLoggingMiddleware(logger))

	r.NotFound(viewHandler.RedirectNotFound)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker, logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- CSRF保護下のルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/", viewHandler.Root)
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		// ログイン（ログイン専用レート制限を追加）
		r.Get("/login", authHandler.LoginPage)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)

		r.Get("/logout", authHandler.Logout)
		r.Post("/logout", authHandler.Logout)

		r.Get(guard.UnauthorizedRoute, viewHandler.Unauthorized)
		r.Get(guard.NotFoundRoute, viewHandler.NotFound)

		// セッション状態
		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionHandler.Snapshot)
			r.Get("/events", sessionHandler.Events)
		})

		// 保護ビュー（ハイドレーション完了後にロールを判定）
		for _, route := range deps.RouteTable.Routes {
			r.With(authorizer.Middleware(deps.Hydration, route.Roles...)).
				Get(route.Path, viewHandler.Page(route))
		}

		// バックエンドAPIへのプロキシ
		if deps.APIBaseURL != nil {
			r.With(deps.RateLimiter.ProxyMiddleware()).
				Handle("/api/*", NewAPIProxy(deps.APIBaseURL, deps.APITransport, logger))
		}
	})

	return r, nil
}
