package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/qna-web-bff/internal/config"
	"github.com/pribylovaa/qna-web-bff/internal/gateway"
	"github.com/pribylovaa/qna-web-bff/internal/models"
)

// proxyGateway — клиент шлюза без повторов, чтобы тесты не ждали бэкофф.
func proxyGateway(t *testing.T, upstreamURL string) *gateway.Client {
	t.Helper()

	cfg := &config.Config{}
	cfg.Gateway.URL = upstreamURL
	cfg.Gateway.RetryAttempts = 1
	cfg.Timeouts.Service = 2 * time.Second

	return gateway.New(cfg)
}

func TestProxy_ForwardsWithBearerAndStripsAPIPrefix(t *testing.T) {
	var gotPath, gotAuth, gotCT string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")

		w.Header().Set("X-Upstream", "qna")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"q1"}`))
	}))
	defer upstream.Close()

	h, _ := newFixture(t, okAuthBackend())
	h.Gateway = proxyGateway(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/questions?tag=go", strings.NewReader(`{"title":"t"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer forged-by-client") // не должен пройти

	ctx := context.WithValue(req.Context(), gateway.CtxSession, models.Session{UserID: "u1", AccessToken: "A1"})

	rr := httptest.NewRecorder()
	h.Proxy(rr, req.WithContext(ctx))

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "/questions?tag=go", gotPath)
	require.Equal(t, "Bearer A1", gotAuth, "bearer — только из сессии, не от клиента")
	require.Equal(t, "application/json", gotCT)
	require.Equal(t, "qna", rr.Header().Get("X-Upstream"))

	body, _ := io.ReadAll(rr.Result().Body)
	require.JSONEq(t, `{"id":"q1"}`, string(body))
}

func TestProxy_UpstreamStatusPassedThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}))
	defer upstream.Close()

	h, _ := newFixture(t, okAuthBackend())
	h.Gateway = proxyGateway(t, upstream.URL)

	rr := httptest.NewRecorder()
	h.Proxy(rr, httptest.NewRequest(http.MethodGet, "/api/questions/missing", nil))

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestProxy_UpstreamDown_503Envelope(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	h, _ := newFixture(t, okAuthBackend())
	h.Gateway = proxyGateway(t, url)

	rr := httptest.NewRecorder()
	h.Proxy(rr, httptest.NewRequest(http.MethodGet, "/api/questions", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), `"unavailable"`)
}
