package middleware

import (
	"net/http"
	"strings"

	"github.com/pribylovaa/qna-web-bff/internal/gateway"
)

// Классификация страничных маршрутов. Списки фиксированы контрактом с фронтом:
// guard применяется только к путям из routeMatcher, всё прочее — вне его зоны.
var (
	// authOnlyPaths — страницы, бессмысленные для вошедшего пользователя.
	authOnlyPaths = []string{"/login", "/register", "/forgot-password"}

	// protectedPaths — страницы, требующие сессии. Для /profile, /settings
	// и /dashboard защищаются и вложенные пути.
	protectedPaths = []string{"/questions/add", "/profile", "/settings", "/dashboard"}

	// routeMatcher — зона действия guard'а.
	routeMatcher = []string{
		"/", "/profile", "/settings", "/login", "/register",
		"/forgot-password", "/questions/add", "/dashboard",
	}
)

// RouteDecision — итог классификации: пустой Redirect означает «пропустить».
type RouteDecision struct {
	Redirect string
}

// matchesPrefix — точное совпадение либо вложенный путь (prefix + "/").
func matchesPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// inMatcherZone — путь входит в зону действия guard'а.
func inMatcherZone(path string) bool {
	for _, m := range routeMatcher {
		if m == "/" {
			if path == "/" {
				return true
			}
			continue
		}
		if matchesPrefix(path, m) {
			return true
		}
	}

	return false
}

// ClassifyRoute — тотальная чистая функция (path, authenticated) -> решение:
//   - аутентифицирован на auth-only странице -> редирект на "/";
//   - аноним на защищённой странице -> редирект на "/login";
//   - иначе пропуск без изменений.
func ClassifyRoute(path string, authenticated bool) RouteDecision {
	if !inMatcherZone(path) {
		return RouteDecision{}
	}

	for _, p := range authOnlyPaths {
		if matchesPrefix(path, p) {
			if authenticated {
				return RouteDecision{Redirect: "/"}
			}
			return RouteDecision{}
		}
	}

	for _, p := range protectedPaths {
		if matchesPrefix(path, p) {
			if !authenticated {
				return RouteDecision{Redirect: "/login"}
			}
			return RouteDecision{}
		}
	}

	return RouteDecision{}
}

// RouteGuard применяет ClassifyRoute к входящему запросу.
// Никакого I/O: только решение «пропустить или редиректнуть»,
// признак аутентификации — валидная сессия в контексте (SessionLoader).
func RouteGuard() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, authenticated := gateway.SessionFrom(r.Context())

			if d := ClassifyRoute(r.URL.Path, authenticated); d.Redirect != "" {
				http.Redirect(w, r, d.Redirect, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
