// authclient — HTTP-клиент auth-секции API Gateway.
//
// Отвечает за две операции, связывающие Google OAuth-идентичность с
// собственной токен-схемой бэкенда: обмен google id_token на пару
// access/refresh и обновление истёкшего access-токена. Дополнительно —
// профиль текущего пользователя, logout/logout-all и health-check.
//
// Клиент не хранит состояния за пределами возвращаемых значений; все
// диагностические логи маскируют токены (pkg/redact).
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pribylovaa/qna-web-bff/internal/config"
	"github.com/pribylovaa/qna-web-bff/internal/models"
	"github.com/pribylovaa/qna-web-bff/pkg/log"
	"github.com/pribylovaa/qna-web-bff/pkg/redact"
)

// Kind — классификация отказов клиента (см. маппинг на страницы ошибок
// в internal/session и на HTTP-статусы в internal/errors).
type Kind int

const (
	// KindUnreachable — сервис недостижим: connection refused, DNS, таймаут.
	KindUnreachable Kind = iota + 1
	// KindTokenRejected — сервис ответил 401: предъявленный токен отвергнут.
	KindTokenRejected
	// KindServiceFault — прочий не-2xx либо синтаксически битое тело ответа.
	KindServiceFault
	// KindConfiguration — запрос не может быть построен (нет id_token и т.п.).
	KindConfiguration
)

// Error — типизированная ошибка клиента. Kind позволяет вызывающему
// отличить «сервис недоступен» от «токен отвергнут», Status хранит
// HTTP-статус, если ответ был получен.
type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnreachable:
		return fmt.Sprintf("auth service unreachable: %v", e.Err)
	case KindTokenRejected:
		return fmt.Sprintf("token rejected (status %d)", e.Status)
	case KindConfiguration:
		return fmt.Sprintf("auth client misconfigured: %v", e.Err)
	default:
		return fmt.Sprintf("auth service fault (status %d): %v", e.Status, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf возвращает Kind ошибки клиента или 0, если ошибка чужая.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}

	return 0
}

// Client — клиент auth-секции шлюза ({gateway}/auth).
type Client struct {
	base    string
	httpc   *http.Client
	healthc *http.Client

	// Дефолтные сроки жизни токенов, когда сервис не прислал expiresIn.
	accessTTL  time.Duration
	refreshTTL time.Duration

	// now — источник времени; подменяется в тестах.
	now func() time.Time
}

// New создаёт клиент поверх базового URL шлюза (cfg.Gateway.URL).
func New(cfg *config.Config) *Client {
	return &Client{
		base:       strings.TrimRight(cfg.Gateway.URL, "/") + "/auth",
		httpc:      &http.Client{Timeout: cfg.Timeouts.Exchange},
		healthc:    &http.Client{Timeout: cfg.Timeouts.Health},
		accessTTL:  cfg.Session.AccessTokenTTL,
		refreshTTL: cfg.Session.RefreshTokenTTL,
		now:        time.Now,
	}
}

// tokenData — payload ответа /google и /refresh.
// expiresIn/refreshExpiresIn — секунды; могут отсутствовать.
type tokenData struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn"`
}

// envelope — общий конверт ответов auth-сервиса.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// ExchangeGoogleToken меняет google id_token на пару токенов бэкенда.
//
// Контракт:
//   - account.IDToken обязателен (иначе KindConfiguration);
//   - успех = 2xx и {"success":true,"data":{...}} с непустыми токенами;
//   - абсолютные сроки = now + expiresIn; при отсутствии expiresIn —
//     дефолты из конфигурации (15m access / 7d refresh).
func (c *Client) ExchangeGoogleToken(ctx context.Context, account models.OAuthAccount) (models.BackendTokenPair, error) {
	const op = "authclient.ExchangeGoogleToken"

	lg := log.From(ctx)

	if account.IDToken == "" {
		return models.BackendTokenPair{}, &Error{
			Kind: KindConfiguration,
			Err:  fmt.Errorf("%s: account has no id_token", op),
		}
	}

	body := map[string]string{
		"token":     account.IDToken,
		"tokenType": "id_token",
	}

	data, err := c.post(ctx, "/google", body, "")
	if err != nil {
		lg.Error("token_exchange_failed",
			slog.String("op", op),
			slog.String("provider", account.Provider),
			slog.String("id_token", redact.Present(account.IDToken)),
			slog.String("err", err.Error()),
		)
		exchangesTotal.WithLabelValues(outcomeOf(err)).Inc()
		return models.BackendTokenPair{}, err
	}

	pair, err := c.toPair(op, data)
	if err != nil {
		exchangesTotal.WithLabelValues("malformed").Inc()
		return models.BackendTokenPair{}, err
	}

	exchangesTotal.WithLabelValues("ok").Inc()
	lg.Info("token_exchange_ok",
		slog.String("op", op),
		slog.Time("access_expires_at", pair.AccessExpiresAt),
	)

	return pair, nil
}

// RefreshToken обновляет пару по refresh-токену.
//
// В отличие от обмена, отказ здесь — восстановимый сигнал, а не ошибка:
// стадия Advance обязана вернуть хоть какой-то токен, поэтому при любом
// сбое (включая 401 — refresh-токен сам недействителен) возвращается
// входной токен с Err = RefreshAccessTokenError.
func (c *Client) RefreshToken(ctx context.Context, tok models.SessionToken) models.SessionToken {
	const op = "authclient.RefreshToken"

	lg := log.From(ctx)

	if tok.RefreshToken == "" {
		tok.Err = models.SessionErrRefreshFailed
		return tok
	}

	body := map[string]string{"refreshToken": tok.RefreshToken}

	data, err := c.post(ctx, "/refresh", body, tok.RefreshToken)
	if err != nil {
		lg.Warn("token_refresh_failed",
			slog.String("op", op),
			slog.String("refresh_token", redact.Token()),
			slog.String("err", err.Error()),
		)
		refreshesTotal.WithLabelValues(outcomeOf(err)).Inc()

		tok.Err = models.SessionErrRefreshFailed
		return tok
	}

	pair, err := c.toPair(op, data)
	if err != nil {
		lg.Warn("token_refresh_malformed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		refreshesTotal.WithLabelValues("malformed").Inc()

		tok.Err = models.SessionErrRefreshFailed
		return tok
	}

	refreshesTotal.WithLabelValues("ok").Inc()
	lg.Info("token_refresh_ok",
		slog.String("op", op),
		slog.Time("access_expires_at", pair.AccessExpiresAt),
	)

	tok.AccessToken = pair.AccessToken
	tok.RefreshToken = pair.RefreshToken
	tok.AccessExpiresAt = pair.AccessExpiresAt
	tok.RefreshExpiresAt = pair.RefreshExpiresAt
	tok.Err = models.SessionErrNone

	return tok
}

// Me возвращает профиль пользователя по access-токену.
func (c *Client) Me(ctx context.Context, accessToken string) (models.UserProfile, error) {
	const op = "authclient.Me"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/me", nil)
	if err != nil {
		return models.UserProfile{}, &Error{Kind: KindConfiguration, Err: fmt.Errorf("%s: %w", op, err)}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	data, err := c.do(req)
	if err != nil {
		return models.UserProfile{}, err
	}

	var profile models.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return models.UserProfile{}, &Error{Kind: KindServiceFault, Err: fmt.Errorf("%s: decode profile: %w", op, err)}
	}

	return profile, nil
}

// Logout отзывает refresh-токен текущей сессии.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	_, err := c.post(ctx, "/logout", map[string]string{"refreshToken": refreshToken}, refreshToken)
	return err
}

// LogoutAll отзывает все сессии пользователя (по access-токену).
func (c *Client) LogoutAll(ctx context.Context, accessToken string) error {
	_, err := c.post(ctx, "/logout-all", map[string]string{}, accessToken)
	return err
}

// Health — live-проверка доступности auth-сервиса (таймаут 3s).
// Используется страницей ошибки, чтобы гасить кнопку retry.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.healthc.Do(req)
	if err != nil {
		return false
	}
	defer func() { _, _ = io.Copy(io.Discard, resp.Body); _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// post — POST JSON на относительный путь; bearer добавляется, если непустой.
func (c *Client) post(ctx context.Context, path string, body any, bearer string) (json.RawMessage, error) {
	const op = "authclient.post"

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Err: fmt.Errorf("%s: %w", op, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Err: fmt.Errorf("%s: %w", op, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return c.do(req)
}

// do выполняет запрос и нормализует отказы в *Error.
func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	const op = "authclient.do"

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Сетевая недостижимость или таймаут клиента.
		return nil, &Error{Kind: KindUnreachable, Err: fmt.Errorf("%s: %w", op, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Kind: KindUnreachable, Err: fmt.Errorf("%s: read body: %w", op, err)}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &Error{Kind: KindTokenRejected, Status: resp.StatusCode, Err: fmt.Errorf("%s: unauthorized", op)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindServiceFault, Status: resp.StatusCode, Err: fmt.Errorf("%s: unexpected status", op)}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &Error{Kind: KindServiceFault, Status: resp.StatusCode, Err: fmt.Errorf("%s: decode: %w", op, err)}
	}

	if !env.Success || env.Data == nil {
		return nil, &Error{Kind: KindServiceFault, Status: resp.StatusCode, Err: fmt.Errorf("%s: success=false or empty data", op)}
	}

	return env.Data, nil
}

// toPair превращает payload токенов в пару с абсолютными сроками.
func (c *Client) toPair(op string, data json.RawMessage) (models.BackendTokenPair, error) {
	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return models.BackendTokenPair{}, &Error{Kind: KindServiceFault, Err: fmt.Errorf("%s: decode tokens: %w", op, err)}
	}

	if td.AccessToken == "" || td.RefreshToken == "" {
		return models.BackendTokenPair{}, &Error{Kind: KindServiceFault, Err: fmt.Errorf("%s: empty tokens in response", op)}
	}

	now := c.now().UTC()

	accessTTL := c.accessTTL
	if td.ExpiresIn > 0 {
		accessTTL = time.Duration(td.ExpiresIn) * time.Second
	}

	refreshTTL := c.refreshTTL
	if td.RefreshExpiresIn > 0 {
		refreshTTL = time.Duration(td.RefreshExpiresIn) * time.Second
	}

	return models.BackendTokenPair{
		AccessToken:      td.AccessToken,
		RefreshToken:     td.RefreshToken,
		AccessExpiresAt:  now.Add(accessTTL),
		RefreshExpiresAt: now.Add(refreshTTL),
	}, nil
}

// outcomeOf — метка исхода для метрик.
func outcomeOf(err error) string {
	switch KindOf(err) {
	case KindUnreachable:
		return "unreachable"
	case KindTokenRejected:
		return "rejected"
	case KindConfiguration:
		return "config"
	default:
		return "fault"
	}
}
