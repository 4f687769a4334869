package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/pribylovaa/qna-web-bff/internal/errors"
	"github.com/pribylovaa/qna-web-bff/internal/http/middleware"
	"github.com/pribylovaa/qna-web-bff/internal/models"
	"github.com/pribylovaa/qna-web-bff/internal/oauth"
	"github.com/pribylovaa/qna-web-bff/internal/session"
	"github.com/pribylovaa/qna-web-bff/pkg/log"
)

// Короткоживущие cookie OAuth-транзакции (state/verifier/next).
const (
	oauthStateCookie    = "qna_oauth_state"
	oauthVerifierCookie = "qna_oauth_verifier"
	oauthNextCookie     = "qna_oauth_next"

	oauthCookieTTL = 10 * time.Minute
)

func (h *Handlers) txnCookie(name, value string) *http.Cookie {
	maxAge := int(oauthCookieTTL / time.Second)
	if value == "" {
		maxAge = -1
	}

	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.SessionCfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handlers) clearTxnCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.txnCookie(oauthStateCookie, ""))
	http.SetCookie(w, h.txnCookie(oauthVerifierCookie, ""))
	http.SetCookie(w, h.txnCookie(oauthNextCookie, ""))
}

// redirectError — единая точка ухода на страницу ошибки входа.
func redirectError(w http.ResponseWriter, r *http.Request, code models.ErrorPageCode) {
	http.Redirect(w, r, "/auth/error?error="+url.QueryEscape(string(code)), http.StatusFound)
}

// safeNext допускает только локальные пути для пост-логин редиректа.
func safeNext(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return "/"
	}

	return raw
}

// GoogleStart — начало OAuth-редиректа: state + nonce + PKCE,
// транзакционные cookie и уход на страницу согласия Google.
func (h *Handlers) GoogleStart(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.GoogleStart"

	if !h.Provider.Configured() {
		redirectError(w, r, models.ErrorPageConfiguration)
		return
	}

	verifier, err := oauth.NewVerifier()
	if err != nil {
		log.From(r.Context()).Error("oauth_verifier_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		redirectError(w, r, models.ErrorPageConfiguration)
		return
	}

	state := uuid.NewString()
	nonce := uuid.NewString()

	authURL, err := h.Provider.AuthCodeURL(state, nonce, oauth.S256Challenge(verifier))
	if err != nil {
		log.From(r.Context()).Error("oauth_auth_url_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		redirectError(w, r, models.ErrorPageConfiguration)
		return
	}

	http.SetCookie(w, h.txnCookie(oauthStateCookie, state))
	http.SetCookie(w, h.txnCookie(oauthVerifierCookie, verifier))
	if next := safeNext(r.URL.Query().Get("next")); next != "/" {
		http.SetCookie(w, h.txnCookie(oauthNextCookie, next))
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// GoogleCallback — завершение OAuth-редиректа.
//
// Последовательность жёсткая: провайдерский code -> id_token -> стадия
// SignIn (обмен на токены бэкенда; отказ = уход на /auth/error без сессии)
// -> стадия Advance с начальной парой -> стадия Resolve -> подписанная
// cookie и редирект на сохранённый next.
func (h *Handlers) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.GoogleCallback"

	ctx := r.Context()
	lg := log.From(ctx)

	// Транзакционные cookie одноразовые: стираем до любого ответа
	// (после http.Redirect заголовки уже не изменить).
	h.clearTxnCookies(w)

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		lg.Warn("oauth_provider_denied",
			slog.String("op", op),
			slog.String("provider_error", errParam),
		)
		redirectError(w, r, models.ErrorPageAuthenticationFailed)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		redirectError(w, r, models.ErrorPageAuthenticationFailed)
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		lg.Warn("oauth_state_mismatch", slog.String("op", op))
		redirectError(w, r, models.ErrorPageAuthenticationFailed)
		return
	}

	verifier := ""
	if c, cerr := r.Cookie(oauthVerifierCookie); cerr == nil {
		verifier = c.Value
	}

	account, err := h.Provider.Exchange(ctx, code, verifier)
	if err != nil {
		lg.Warn("oauth_code_exchange_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		redirectError(w, r, models.ErrorPageAuthServiceError)
		return
	}

	// Стадия входа: отказ здесь — жёсткий блок, сессия не создаётся.
	outcome := h.Pipe.SignIn(ctx, account)
	if !outcome.Allowed {
		redirectError(w, r, outcome.Reason)
		return
	}

	tok := h.Pipe.Advance(ctx, models.SessionToken{}, &outcome)

	// Идентификатор пользователя — из профиля auth-сервиса; его отсутствие
	// не блокирует вход, но сужает серверные проверки (logout-all).
	if tok.Err == models.SessionErrNone {
		if profile, perr := h.Auth.Me(ctx, tok.AccessToken); perr == nil {
			tok.UserID = profile.ID
		} else {
			lg.Warn("me_after_sign_in_failed",
				slog.String("op", op),
				slog.String("err", perr.Error()),
			)
		}
	}

	if _, rerr := h.Pipe.Resolve(tok); rerr != nil {
		lg.Error("sign_in_token_unresolvable",
			slog.String("op", op),
			slog.String("err", rerr.Error()),
		)
		redirectError(w, r, models.ErrorPageAuthServiceError)
		return
	}

	signed, err := h.Codec.Encode(tok)
	if err != nil {
		lg.Error("session_encode_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		redirectError(w, r, models.ErrorPageConfiguration)
		return
	}

	http.SetCookie(w, h.Codec.Cookie(signed, tok.RefreshExpiresAt))

	next := "/"
	if c, cerr := r.Cookie(oauthNextCookie); cerr == nil {
		next = safeNext(c.Value)
	}

	http.Redirect(w, r, next, http.StatusFound)
}

// Session — текущая сессия для прикладного кода фронта.
// Это точка принудительного re-login: «отравленный» или неполный токен
// даёт 401 и стирание cookie.
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	tok, ok := middleware.TokenFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, session.ErrNoBackendTokens)
		return
	}

	sess, err := h.Pipe.Resolve(tok)
	if err != nil {
		http.SetCookie(w, h.Codec.ClearCookie())
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// Logout — выход из текущей сессии: отзыв refresh-токена на auth-сервисе
// (best-effort) и стирание cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Logout"

	ctx := r.Context()

	if tok, ok := middleware.TokenFrom(ctx); ok && tok.RefreshToken != "" {
		if err := h.Auth.Logout(ctx, tok.RefreshToken); err != nil {
			// Сессию в браузере стираем в любом случае.
			log.From(ctx).Warn("backend_logout_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}

	http.SetCookie(w, h.Codec.ClearCookie())
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// LogoutAll — отзыв всех сессий пользователя: auth-сервис отзывает
// refresh-токены, Store помечает момент отзыва (все cookie, выпущенные
// раньше, перестают приниматься SessionLoader'ом).
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.LogoutAll"

	ctx := r.Context()

	tok, ok := middleware.TokenFrom(ctx)
	if !ok {
		apierrors.WriteError(w, r, session.ErrNoBackendTokens)
		return
	}

	sess, err := h.Pipe.Resolve(tok)
	if err != nil {
		http.SetCookie(w, h.Codec.ClearCookie())
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.Auth.LogoutAll(ctx, sess.AccessToken); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if h.Store != nil && sess.UserID != "" {
		if err := h.Store.MarkLoggedOutAll(ctx, sess.UserID, time.Now().UTC(), h.SessionCfg.RefreshTokenTTL); err != nil {
			log.From(ctx).Warn("logout_all_mark_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}

	http.SetCookie(w, h.Codec.ClearCookie())
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// errorPageResponse — контракт /auth/error для фронта.
type errorPageResponse struct {
	models.ErrorPageDescriptor
	// AuthHealthy — результат live health-check'а auth-сервиса.
	AuthHealthy bool `json:"auth_healthy"`
	// CanRetry — кнопка retry активна только на восстановимых кодах
	// и только при живом auth-сервисе.
	CanRetry bool `json:"can_retry"`
}

// ErrorPage — данные для страницы ошибки входа: дескриптор по коду
// плюс live-проверка здоровья auth-сервиса.
func (h *Handlers) ErrorPage(w http.ResponseWriter, r *http.Request) {
	code := models.ErrorPageCode(r.URL.Query().Get("error"))
	if code == "" {
		code = models.ErrorPageAuthServiceError
	}

	desc := models.ErrorPageFor(code)
	healthy := h.Auth.Health(r.Context())

	writeJSON(w, http.StatusOK, errorPageResponse{
		ErrorPageDescriptor: desc,
		AuthHealthy:         healthy,
		CanRetry:            desc.Retryable && healthy,
	})
}
