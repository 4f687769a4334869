// models — доменные типы сессионного слоя web-bff.
//
// Ключевой принцип (в отличие от «ambient»-состояния сессионных библиотек):
// все значения неизменяемые и передаются явно; каждая стадия пайплайна
// получает SessionToken по значению и возвращает (возможно) новую копию.
package models

import "time"

// SessionErrorCode — машинный код состояния «сессия испорчена».
// Пустая строка означает отсутствие ошибки.
type SessionErrorCode string

const (
	// SessionErrNone — ошибок нет.
	SessionErrNone SessionErrorCode = ""

	// SessionErrRefreshFailed — обновление access-токена не удалось
	// (включая 401 на refresh-токен). Токен «отравлен»: пайплайн больше
	// не пытается обновляться сам, принудительный re-login происходит
	// на ближайшем чтении сессии.
	SessionErrRefreshFailed SessionErrorCode = "RefreshAccessTokenError"

	// SessionErrNoBackendTokens — нарушение внутреннего инварианта:
	// вход разрешён, но пары токенов бэкенда после обмена нет.
	SessionErrNoBackendTokens SessionErrorCode = "NoBackendTokens"
)

// SessionToken — состояние браузерной сессии, хранится в подписанной cookie.
//
// Инвариант: токен с непустым Err не должен быть виден прикладному коду как
// валидная сессия; единственная точка контроля — стадия Resolve пайплайна.
type SessionToken struct {
	// AccessToken — короткоживущий bearer для запросов к шлюзу.
	AccessToken string
	// RefreshToken — секрет для выпуска новой пары на auth-сервисе.
	RefreshToken string
	// AccessExpiresAt — момент истечения access-токена (UTC).
	AccessExpiresAt time.Time
	// RefreshExpiresAt — момент истечения refresh-токена (UTC).
	RefreshExpiresAt time.Time
	// UserID — идентификатор пользователя на бэкенде.
	UserID string
	// IssuedAt — момент выпуска cookie (проставляется кодеком);
	// используется отметками logout-all для отсечения старых сессий.
	IssuedAt time.Time
	// Err — код «отравления» сессии (см. SessionErrorCode).
	Err SessionErrorCode
}

// AccessExpired сообщает, истёк ли access-токен на момент now.
func (t SessionToken) AccessExpired(now time.Time) bool {
	return !t.AccessExpiresAt.After(now)
}

// BackendTokenPair — пара токенов, выданная auth-сервисом в обмен на
// google id_token либо на прежний refresh-токен. Живёт только внутри
// транзакции входа/обновления, затем копируется в SessionToken.
type BackendTokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// OAuthAccount — эфемерный аккаунт-объект, полученный от OAuth-провайдера
// в рамках одного редиректа. Не персистится.
type OAuthAccount struct {
	// Provider — идентификатор провайдера ("google").
	Provider string
	// Type — тип связки ("oauth" | "oidc" | "credentials").
	Type string
	// IDToken — подписанный провайдером identity-токен.
	IDToken string
	// UserID — субъект на стороне провайдера (sub), если известен.
	UserID string
}

// IsGoogleOAuth — аккаунт подлежит обмену на токены бэкенда.
func (a OAuthAccount) IsGoogleOAuth() bool {
	return a.Provider == "google" && (a.Type == "oauth" || a.Type == "oidc")
}

// SignInOutcome — явный результат стадии входа вместо ad-hoc полей на
// общем account-объекте: либо вход разрешён и есть пара токенов,
// либо запрещён с кодом для страницы ошибки.
type SignInOutcome struct {
	Allowed bool
	// Tokens — пара бэкенда; nil для не-Google входов (pass-through).
	Tokens *BackendTokenPair
	// Reason — код страницы ошибки; заполнен только при Allowed == false.
	Reason ErrorPageCode
}

// Session — внешнее представление сессии для прикладного кода.
// Создаётся только стадией Resolve и только из валидного токена.
type Session struct {
	UserID          string    `json:"user_id"`
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}
