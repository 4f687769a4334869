package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pribylovaa/qna-web-bff/internal/authclient"
	"github.com/pribylovaa/qna-web-bff/internal/config"
	"github.com/pribylovaa/qna-web-bff/internal/gateway"
	"github.com/pribylovaa/qna-web-bff/internal/oauth"
	"github.com/pribylovaa/qna-web-bff/internal/session"
)

// Handlers агрегирует зависимости HTTP-слоя.
type Handlers struct {
	Auth     *authclient.Client
	Pipe     *session.Pipeline
	Codec    *session.Codec
	Store    session.Store
	Provider *oauth.Provider
	Gateway  *gateway.Client

	SessionCfg config.SessionConfig
}

func New(auth *authclient.Client, pipe *session.Pipeline, codec *session.Codec, store session.Store, provider *oauth.Provider, gw *gateway.Client, sessionCfg config.SessionConfig) *Handlers {
	return &Handlers{
		Auth:       auth,
		Pipe:       pipe,
		Codec:      codec,
		Store:      store,
		Provider:   provider,
		Gateway:    gw,
		SessionCfg: sessionCfg,
	}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
