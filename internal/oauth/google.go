// oauth — провайдерское плечо входа: редирект на Google и обмен
// authorization code на id_token (PKCE S256).
//
// Пакет намеренно не знает про сессии и токены бэкенда: его выход —
// эфемерный models.OAuthAccount, который дальше обрабатывает
// session.Pipeline.SignIn.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pribylovaa/qna-web-bff/internal/config"
	"github.com/pribylovaa/qna-web-bff/internal/models"
)

// Provider — клиент OAuth-провайдера (Google в текущей конфигурации).
type Provider struct {
	cfg   config.GoogleConfig
	httpc *http.Client
}

// NewProvider создаёт клиент провайдера.
func NewProvider(cfg config.GoogleConfig, timeout time.Duration) *Provider {
	return &Provider{
		cfg:   cfg,
		httpc: &http.Client{Timeout: timeout},
	}
}

// Configured — провайдер пригоден для входа (есть client_id и redirect).
func (p *Provider) Configured() bool {
	return p.cfg.ClientID != "" && p.cfg.RedirectURL != ""
}

// NewVerifier генерирует PKCE code_verifier (32 случайных байта, base64url).
func NewVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("oauth.NewVerifier: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// S256Challenge вычисляет code_challenge по верификатору.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// AuthCodeURL собирает URL авторизации провайдера.
func (p *Provider) AuthCodeURL(state, nonce, codeChallenge string) (string, error) {
	const op = "oauth.Provider.AuthCodeURL"

	authURL, err := url.Parse(p.cfg.AuthURL)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", p.cfg.ClientID)
	query.Set("redirect_uri", p.cfg.RedirectURL)
	query.Set("scope", p.cfg.Scopes)
	query.Set("state", state)
	query.Set("nonce", nonce)
	query.Set("code_challenge", codeChallenge)
	query.Set("code_challenge_method", "S256")

	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}

// Exchange меняет authorization code на аккаунт с id_token.
func (p *Provider) Exchange(ctx context.Context, code, codeVerifier string) (models.OAuthAccount, error) {
	const op = "oauth.Provider.Exchange"

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.RedirectURL)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("code_verifier", codeVerifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return models.OAuthAccount{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return models.OAuthAccount{}, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return models.OAuthAccount{}, fmt.Errorf("%s: token endpoint status %d", op, resp.StatusCode)
	}

	var payload struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.OAuthAccount{}, fmt.Errorf("%s: decode: %w", op, err)
	}

	if payload.IDToken == "" {
		return models.OAuthAccount{}, fmt.Errorf("%s: response has no id_token", op)
	}

	return models.OAuthAccount{
		Provider: "google",
		Type:     "oidc",
		IDToken:  payload.IDToken,
	}, nil
}
