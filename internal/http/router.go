package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/qna-web-bff/internal/http/handlers"
	"github.com/pribylovaa/qna-web-bff/internal/http/middleware"
	"github.com/pribylovaa/qna-web-bff/internal/session"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration

	Codec *session.Codec
	Pipe  *session.Pipeline
	Store session.Store
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(h *handlers.Handlers, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
		middleware.SessionLoader(opts.Codec, opts.Pipe, opts.Store), // cookie -> токен -> (обновление) -> сессия в контексте
		middleware.RouteGuard(), // редиректы страничных маршрутов по состоянию сессии
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	registerRoutes(root, h)
	return root
}

// registerRoutes — единая точка регистрации всех эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers) {
	// auth: жизненный цикл сессии.
	r.Get("/auth/google/start", h.GoogleStart)
	r.Get("/auth/google/callback", h.GoogleCallback)
	r.Get("/auth/session", h.Session)
	r.Post("/auth/logout", h.Logout)
	r.Post("/auth/logout-all", h.LogoutAll)
	r.Get("/auth/error", h.ErrorPage)

	// api: сквозной прокси на шлюз с bearer текущей сессии.
	r.Handle("/api/*", http.HandlerFunc(h.Proxy))
}
