package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/farmchef/internal/confirm"
	"github.com/hitoshi/farmchef/internal/metrics"
	"github.com/hitoshi/farmchef/internal/middleware"
)

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
func SetupAuthRoutes(service AuthServiceInterface, config AuthHandlerConfig) http.Handler {
	r := chi.NewRouter()
	mountAuthRoutes(r, NewAuthHandler(service, config))
	return r
}

func mountAuthRoutes(r chi.Router, h *AuthHandler) {
	r.Route("/auth", func(r chi.Router) {
		// OAuthフロー
		r.Get("/google/login", h.Login)
		r.Get("/google/callback", h.Callback)

		// セッション管理
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	HealthCheckers    map[string]HealthChecker
	SessionFinder     middleware.SessionFinder
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	HSTS              bool
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ディレクトリ・プロフィール
	ProfileService ProfileServiceInterface

	// 投稿・フィード
	PostService PostServiceInterface
	FeedService FeedServiceInterface

	// 管理
	AdminService AdminServiceInterface
	ConfirmStore confirm.Store
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → CORS
//	（認証が必要なルート）→ Session → CSRF → RateLimit(General)
//	（管理ルート）→ RequireAdmin
//
// 認証ルート（/auth/*）とヘルスチェックはセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, notFoundRouteError())
	})

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService)
	postHandler := NewPostHandler(deps.PostService, deps.FeedService)
	adminHandler := NewAdminHandler(deps.AdminService, deps.ConfirmStore)

	// --- 認証不要のルート ---

	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthCheckers))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証ルート（OAuthフロー）
	mountAuthRoutes(r, authHandler)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ディレクトリ・プロフィール
		r.Route("/api/profiles", func(r chi.Router) {
			r.Get("/", profileHandler.ListProfiles)
			r.Get("/stats", profileHandler.Stats)
			r.Get("/me", profileHandler.GetOwnProfile)
			r.Patch("/me", profileHandler.UpdateOwnProfile)
			r.Get("/{ownerID}", profileHandler.GetProfilePage)
		})

		// 投稿・フィード
		r.Route("/api/posts", func(r chi.Router) {
			r.Get("/", postHandler.ListFeed)
			// POST /api/posts - 投稿作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.PostCreateMiddleware()).Post("/", postHandler.CreatePost)
			r.Patch("/{id}", postHandler.UpdatePost)
		})

		// 管理
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Get("/dashboard", adminHandler.Dashboard)
			r.Post("/profiles", adminHandler.CreateProfile)
			r.Patch("/profiles/{id}", adminHandler.UpdateProfile)
			r.Delete("/profiles/{id}", adminHandler.DeleteProfile)
			r.Delete("/posts/{id}", adminHandler.DeletePost)
		})
	})

	return r
}
