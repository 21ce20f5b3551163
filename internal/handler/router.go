// Package handler はローカルUIのHTTPハンドラーとルーティングを提供する。
// フィード・ログイン・投稿・お気に入り・プロフィールの各ビューを
// html/templateで描画し、ドメイン操作をfeed/sessionパッケージに委譲する。
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/storyman/internal/metrics"
	"github.com/hitoshi/storyman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	UI          *UIHandler
	RateLimiter *middleware.RateLimiter
	Gatherer    prometheus.Gatherer
}

// NewRouter は全ルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → RateLimit
//
// /healthz と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.UI.logger))
	r.Use(middleware.NewLoggingMiddleware(deps.UI.logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	// 運用エンドポイント
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))

	// UIルート
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		r.Get("/", deps.UI.FeedPage)

		// 認証
		r.Get("/login", deps.UI.LoginPage)
		r.Post("/login", deps.UI.Login)
		r.Post("/signup", deps.UI.Signup)
		r.Post("/logout", deps.UI.Logout)

		// ストーリー投稿・削除・お気に入り
		r.Get("/submit", deps.UI.SubmitPage)
		r.Post("/submit", deps.UI.Submit)
		r.Post("/stories/{id}/delete", deps.UI.DeleteStory)
		r.Post("/stories/{id}/favorite", deps.UI.ToggleFavorite)

		// 個人ビュー
		r.Get("/stories/my", deps.UI.MyStoriesPage)
		r.Get("/stories/favorites", deps.UI.FavoritesPage)
		r.Get("/profile", deps.UI.ProfilePage)

		// 付帯リソース
		r.Get("/favicons/{host}", deps.UI.Favicon)
	})

	return r
}
