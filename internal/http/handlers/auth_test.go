package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/qna-web-bff/internal/authclient"
	"github.com/pribylovaa/qna-web-bff/internal/config"
	"github.com/pribylovaa/qna-web-bff/internal/gateway"
	"github.com/pribylovaa/qna-web-bff/internal/http/middleware"
	"github.com/pribylovaa/qna-web-bff/internal/models"
	"github.com/pribylovaa/qna-web-bff/internal/oauth"
	"github.com/pribylovaa/qna-web-bff/internal/session"
)

// Интеграционные тесты хендлеров: настоящие authclient/oauth/pipeline поверх
// httptest-серверов вместо auth-сервиса и token-endpoint'а Google.

// classifyForTest повторяет маппинг main: Kind отказа -> код страницы ошибки.
func classifyForTest(err error) models.ErrorPageCode {
	switch authclient.KindOf(err) {
	case authclient.KindUnreachable:
		return models.ErrorPageServiceUnavailable
	case authclient.KindTokenRejected:
		return models.ErrorPageAuthenticationFailed
	case authclient.KindConfiguration:
		return models.ErrorPageConfiguration
	default:
		return models.ErrorPageAuthServiceError
	}
}

func newFixture(t *testing.T, authBackend http.Handler) (*Handlers, *session.Codec) {
	t.Helper()

	authSrv := httptest.NewServer(authBackend)
	t.Cleanup(authSrv.Close)

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id_token":"google-id-token"}`))
	}))
	t.Cleanup(tokenSrv.Close)

	cfg := &config.Config{}
	cfg.Gateway.URL = authSrv.URL
	cfg.Gateway.RetryAttempts = 1
	cfg.Timeouts.Service = 2 * time.Second
	cfg.Timeouts.Exchange = 2 * time.Second
	cfg.Timeouts.Health = 500 * time.Millisecond
	cfg.Session = config.SessionConfig{
		Secret:          "handlers-test-secret",
		CookieName:      "qna_session",
		Issuer:          "web-bff",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
	}
	cfg.Google = config.GoogleConfig{
		ClientID:    "client-id",
		RedirectURL: "http://localhost/auth/google/callback",
		AuthURL:     "https://accounts.example.com/auth",
		TokenURL:    tokenSrv.URL,
		Scopes:      "openid email profile",
	}

	auth := authclient.New(cfg)
	pipe := session.NewPipeline(auth, classifyForTest)
	codec := session.NewCodec(cfg.Session)
	provider := oauth.NewProvider(cfg.Google, cfg.Timeouts.Exchange)
	gw := gateway.New(cfg)

	return New(auth, pipe, codec, nil, provider, gw, cfg.Session), codec
}

// okAuthBackend — auth-сервис счастливого пути.
func okAuthBackend() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/google", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"accessToken":"A1","refreshToken":"R1","expiresIn":900}}`))
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"u42","email":"u@example.com","username":"user42"}}`))
	})
	mux.HandleFunc("GET /auth/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	})
	mux.HandleFunc("POST /auth/logout-all", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	})

	return mux
}

func callbackReq(state, code string) *http.Request {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if code != "" {
		q.Set("code", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+q.Encode(), nil)
	if state != "" {
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: state})
		req.AddCookie(&http.Cookie{Name: oauthVerifierCookie, Value: "verifier"})
	}

	return req
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range rr.Result().Cookies() {
		if c.Name == "qna_session" && c.MaxAge >= 0 {
			return c
		}
	}

	t.Fatal("session cookie not set")
	return nil
}

func TestGoogleStart_RedirectsToProviderWithPKCE(t *testing.T) {
	h, _ := newFixture(t, okAuthBackend())

	rr := httptest.NewRecorder()
	h.GoogleStart(rr, httptest.NewRequest(http.MethodGet, "/auth/google/start?next=/questions/add", nil))

	require.Equal(t, http.StatusFound, rr.Code)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "accounts.example.com", loc.Host)

	q := loc.Query()
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "client-id", q.Get("client_id"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.NotEmpty(t, q.Get("state"))
	require.NotEmpty(t, q.Get("nonce"))
	require.NotEmpty(t, q.Get("code_challenge"))

	// state/verifier/next уезжают транзакционными cookie.
	names := map[string]bool{}
	for _, c := range rr.Result().Cookies() {
		names[c.Name] = true
	}
	require.True(t, names[oauthStateCookie])
	require.True(t, names[oauthVerifierCookie])
	require.True(t, names[oauthNextCookie])
}

func TestGoogleStart_NotConfigured_RedirectsConfigurationError(t *testing.T) {
	h, _ := newFixture(t, okAuthBackend())
	h.Provider = oauth.NewProvider(config.GoogleConfig{}, time.Second)

	rr := httptest.NewRecorder()
	h.GoogleStart(rr, httptest.NewRequest(http.MethodGet, "/auth/google/start", nil))

	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, "/auth/error?error=Configuration", rr.Header().Get("Location"))
}

func TestGoogleCallback_HappyPath_SetsSessionAndRedirects(t *testing.T) {
	h, codec := newFixture(t, okAuthBackend())

	req := callbackReq("st-1", "good-code")
	req.AddCookie(&http.Cookie{Name: oauthNextCookie, Value: "/questions/add"})

	rr := httptest.NewRecorder()
	h.GoogleCallback(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, "/questions/add", rr.Header().Get("Location"))

	tok, err := codec.Decode(sessionCookie(t, rr).Value)
	require.NoError(t, err)
	require.Equal(t, "A1", tok.AccessToken)
	require.Equal(t, "R1", tok.RefreshToken)
	require.Equal(t, "u42", tok.UserID, "UserID берётся из /auth/me")
	require.Equal(t, models.SessionErrNone, tok.Err)
}

func TestGoogleCallback_ProviderError_AuthenticationFailed(t *testing.T) {
	h, _ := newFixture(t, okAuthBackend())

	rr := httptest.NewRecorder()
	h.GoogleCallback(rr, httptest.NewRequest(http.MethodGet, "/auth/google/callback?error=access_denied", nil))

	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, "/auth/error?error=AuthenticationFailed", rr.Header().Get("Location"))
}

func TestGoogleCallback_StateMismatch_AuthenticationFailed(t *testing.T) {
	h, _ := newFixture(t, okAuthBackend())

	req := callbackReq("st-1", "good-code")
	// Cookie несёт другой state.
	req.Header.Del("Cookie")
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "st-other"})

	rr := httptest.NewRecorder()
	h.GoogleCallback(rr, req)

	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, "/auth/error?error=AuthenticationFailed", rr.Header().Get("Location"))
}

func TestGoogleCallback_BadCode_AuthServiceError(t *testing.T) {
	h, _ := newFixture(t, okAuthBackend())

	rr := httptest.NewRecorder()
	h.GoogleCallback(rr, callbackReq("st-1", "bad-code"))

	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, "/auth/error?error=AuthServiceError", rr.Header().Get("Location"))
}

func TestGoogleCallback_ExchangeRejected_BlockedWithoutSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/google", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	h, _ := newFixture(t, mux)

	rr := httptest.NewRecorder()
	h.GoogleCallback(rr, callbackReq("st-1", "good-code"))

	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, "/auth/error?error=AuthenticationFailed", rr.Header().Get("Location"))

	// Жёсткий блок: сессионная cookie не выдаётся.
	for _, c := range rr.Result().Cookies() {
		require.NotEqual(t, "qna_session", c.Name)
	}
}

func TestGoogleCallback_ClearsTransactionCookies(t *testing.T) {
	h, _ := newFixture(t, okAuthBackend())

	rr := httptest.NewRecorder()
	h.GoogleCallback(rr, callbackReq("st-1", "good-code"))

	cleared := map[string]bool{}
	for _, c := range rr.Result().Cookies() {
		if c.MaxAge < 0 {
			cleared[c.Name] = true
		}
	}
	require.True(t, cleared[oauthStateCookie])
	require.True(t, cleared[oauthVerifierCookie])
	require.True(t, cleared[oauthNextCookie])
}

// throughLoader прогоняет запрос через SessionLoader, как в боевом роутере.
func throughLoader(h *Handlers, codec *session.Codec, final http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	middleware.SessionLoader(codec, h.Pipe, h.Store)(final).ServeHTTP(rr, req)
	return rr
}

func TestSession_ValidCookie_ReturnsSession(t *testing.T) {
	h, codec := newFixture(t, okAuthBackend())

	signed, err := codec.Encode(models.SessionToken{
		AccessToken:      "A1",
		RefreshToken:     "R1",
		AccessExpiresAt:  time.Now().UTC().Add(10 * time.Minute),
		RefreshExpiresAt: time.Now().UTC().Add(168 * time.Hour),
		UserID:           "u42",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: "qna_session", Value: signed})

	rr := throughLoader(h, codec, h.Session, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"user_id":"u42"`)
	require.Contains(t, rr.Body.String(), `"access_token":"A1"`)
}

func TestSession_NoCookie_Unauthenticated(t *testing.T) {
	h, codec := newFixture(t, okAuthBackend())

	rr := throughLoader(h, codec, h.Session, httptest.NewRequest(http.MethodGet, "/auth/session", nil))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), `"unauthenticated"`)
}

func TestSession_PoisonedToken_401AndCookieCleared(t *testing.T) {
	h, codec := newFixture(t, okAuthBackend())

	signed, err := codec.Encode(models.SessionToken{
		AccessToken:      "A1",
		RefreshToken:     "R1",
		AccessExpiresAt:  time.Now().UTC().Add(10 * time.Minute),
		RefreshExpiresAt: time.Now().UTC().Add(168 * time.Hour),
		UserID:           "u42",
		Err:              models.SessionErrRefreshFailed,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: "qna_session", Value: signed})

	rr := throughLoader(h, codec, h.Session, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)

	var clearedSession bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == "qna_session" && c.MaxAge < 0 {
			clearedSession = true
		}
	}
	require.True(t, clearedSession, "принудительный re-login стирает cookie")
}

func TestLogout_ClearsCookie(t *testing.T) {
	h, codec := newFixture(t, okAuthBackend())

	signed, err := codec.Encode(models.SessionToken{
		AccessToken:      "A1",
		RefreshToken:     "R1",
		AccessExpiresAt:  time.Now().UTC().Add(10 * time.Minute),
		RefreshExpiresAt: time.Now().UTC().Add(168 * time.Hour),
		UserID:           "u42",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "qna_session", Value: signed})

	rr := throughLoader(h, codec, h.Logout, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"ok":true`)

	var cleared bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == "qna_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	require.True(t, cleared)
}

func TestErrorPage_RetryGatedByHealth(t *testing.T) {
	h, _ := newFixture(t, okAuthBackend())

	rr := httptest.NewRecorder()
	h.ErrorPage(rr, httptest.NewRequest(http.MethodGet, "/auth/error?error=ServiceUnavailable", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"code":"ServiceUnavailable"`)
	require.Contains(t, rr.Body.String(), `"auth_healthy":true`)
	require.Contains(t, rr.Body.String(), `"can_retry":true`)
}

func TestErrorPage_UnhealthyBackend_NoRetry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	h, _ := newFixture(t, mux)

	rr := httptest.NewRecorder()
	h.ErrorPage(rr, httptest.NewRequest(http.MethodGet, "/auth/error?error=AuthenticationFailed", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"auth_healthy":false`)
	require.Contains(t, rr.Body.String(), `"can_retry":false`)
}

func TestErrorPage_ConfigurationNeverRetryable(t *testing.T) {
	h, _ := newFixture(t, okAuthBackend())

	rr := httptest.NewRecorder()
	h.ErrorPage(rr, httptest.NewRequest(http.MethodGet, "/auth/error?error=Configuration", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"auth_healthy":true`)
	require.Contains(t, rr.Body.String(), `"can_retry":false`)
}
