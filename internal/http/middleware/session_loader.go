package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pribylovaa/qna-web-bff/internal/gateway"
	"github.com/pribylovaa/qna-web-bff/internal/models"
	"github.com/pribylovaa/qna-web-bff/internal/session"
	logctx "github.com/pribylovaa/qna-web-bff/pkg/log"
)

type ctxTokenKey struct{}

// TokenFrom достаёт «сырой» токен сессии, положенный SessionLoader'ом.
// Наличие токена не означает валидную сессию — контроль у Pipeline.Resolve.
func TokenFrom(ctx context.Context) (models.SessionToken, bool) {
	if v := ctx.Value(ctxTokenKey{}); v != nil {
		if t, ok := v.(models.SessionToken); ok {
			return t, true
		}
	}

	return models.SessionToken{}, false
}

// SessionLoader восстанавливает сессию из подписанной cookie на каждом запросе:
//
//  1. декодирует cookie (битая/чужая подпись = анонимный запрос, cookie стирается);
//  2. отбрасывает сессии, выпущенные до отметки logout-all (если настроен Store);
//  3. прогоняет токен через Pipeline.Advance — живой access-токен проходит
//     без сетевых вызовов, истёкший обновляется ровно одним вызовом;
//  4. ротация: изменённый токен (обновление или «отравление») переподписывается
//     и уезжает клиенту новой cookie;
//  5. валидная сессия кладётся в контекст (gateway.CtxSession) — её bearer
//     подхватит исходящий клиент шлюза; невалидная остаётся только токеном
//     (TokenFrom) для хендлеров, которым нужен отказ с деталями.
func SessionLoader(codec *session.Codec, pipe *session.Pipeline, store session.Store) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(codec.CookieName())
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			tok, err := codec.Decode(cookie.Value)
			if err != nil {
				// Подпись не сошлась или JWT истёк — сессии нет.
				http.SetCookie(w, codec.ClearCookie())
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()

			// Отметка logout-all отзывает все cookie, выпущенные до неё.
			if store != nil && tok.UserID != "" {
				at, found, serr := store.LoggedOutAllAt(ctx, tok.UserID)
				if serr != nil {
					logctx.From(ctx).Warn("logout_all_check_failed",
						slog.String("err", serr.Error()),
					)
				} else if found && tok.IssuedAt.Before(at) {
					http.SetCookie(w, codec.ClearCookie())
					next.ServeHTTP(w, r)
					return
				}
			}

			advanced := pipe.Advance(ctx, tok, nil)

			// Ротация cookie после обновления (или «отравления») токена.
			if advanced != tok {
				if signed, eerr := codec.Encode(advanced); eerr == nil {
					http.SetCookie(w, codec.Cookie(signed, advanced.RefreshExpiresAt))
				} else {
					logctx.From(ctx).Error("session_cookie_encode_failed",
						slog.String("err", eerr.Error()),
					)
				}
			}

			ctx = context.WithValue(ctx, ctxTokenKey{}, advanced)

			if sess, rerr := pipe.Resolve(advanced); rerr == nil {
				ctx = context.WithValue(ctx, gateway.CtxSession, sess)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
