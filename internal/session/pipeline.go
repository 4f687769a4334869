// session — жизненный цикл браузерной сессии web-bff.
//
// Пайплайн — явная трёхстадийная машина поверх неизменяемых значений
// SessionToken (вместо ambient-состояния сессионных библиотек):
//
//	SignIn  — однократно по завершении OAuth-редиректа: обмен google
//	          id_token на пару токенов бэкенда; жёсткий запрет входа при сбое;
//	Advance — на каждом запросе, которому нужна валидная сессия: перенос
//	          начальной пары, no-op для живого access-токена, единственный
//	          вызов обновления для истёкшего;
//	Resolve — единственная точка контроля: «отравленный» или неполный
//	          токен никогда не превращается в Session.
//
// Стадии идемпотентны и безопасны при повторном прогоне: библиотека-хост
// в оригинальной схеме дергала их в разных точках жизненного цикла запроса,
// здесь тот же контракт сохранён осознанно.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/qna-web-bff/internal/models"
	"github.com/pribylovaa/qna-web-bff/pkg/log"
)

var (
	// ErrReauthRequired — обновление access-токена провалилось; сессия
	// подлежит уничтожению, пользователь — повторной аутентификации.
	ErrReauthRequired = errors.New("authentication failed: refresh token rotation failed")

	// ErrNoBackendTokens — в токене нет валидной пары бэкенда
	// (инвариант нарушен или вход прошёл без обмена).
	ErrNoBackendTokens = errors.New("authentication failed: no valid backend tokens")
)

// Exchanger — контракт клиента обмена токенов (internal/authclient).
type Exchanger interface {
	ExchangeGoogleToken(ctx context.Context, account models.OAuthAccount) (models.BackendTokenPair, error)
	RefreshToken(ctx context.Context, tok models.SessionToken) models.SessionToken
}

// KindClassifier — отображение ошибки обмена в код страницы ошибок.
// Вынесено в интерфейс-функцию, чтобы пайплайн не зависел от authclient.
type KindClassifier func(err error) models.ErrorPageCode

// Pipeline — трёхстадийный пайплайн сессии.
type Pipeline struct {
	exchanger Exchanger
	classify  KindClassifier
	store     Store // опционально; nil — одиночный инстанс без Redis.
	now       func() time.Time
}

// Option — настройка пайплайна.
type Option func(*Pipeline)

// WithStore подключает Redis-хранилище (single-flight и logout-all).
func WithStore(s Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithClock подменяет источник времени (тесты).
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline создаёт пайплайн поверх клиента обмена.
func NewPipeline(ex Exchanger, classify KindClassifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		exchanger: ex,
		classify:  classify,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// SignIn — стадия входа.
//
// Google OAuth/OIDC-аккаунты обязаны пройти обмен; любой его сбой — жёсткий
// блок (Allowed=false) с кодом для /auth/error. Не-Google аккаунты проходят
// без обмена (Tokens=nil) — их дальше забракует ветка NoBackendTokens.
func (p *Pipeline) SignIn(ctx context.Context, account models.OAuthAccount) models.SignInOutcome {
	const op = "session.Pipeline.SignIn"

	if !account.IsGoogleOAuth() {
		return models.SignInOutcome{Allowed: true}
	}

	pair, err := p.exchanger.ExchangeGoogleToken(ctx, account)
	if err != nil {
		reason := models.ErrorPageAuthServiceError
		if p.classify != nil {
			reason = p.classify(err)
		}

		log.From(ctx).Warn("sign_in_blocked",
			slog.String("op", op),
			slog.String("provider", account.Provider),
			slog.String("reason", string(reason)),
		)

		return models.SignInOutcome{Allowed: false, Reason: reason}
	}

	return models.SignInOutcome{Allowed: true, Tokens: &pair}
}

// Advance — стадия актуализации токена. Ветки в строгом порядке:
//
//  1. signIn != nil (продолжение начального входа) — перенос пары бэкенда
//     в токен и сброс прежней ошибки; отсутствие пары на этом пути —
//     нарушение инварианта, токен помечается NoBackendTokens;
//  2. токен уже «отравлен» RefreshAccessTokenError — возвращается как есть,
//     пайплайн не повторяет обновление сам;
//  3. access-токен ещё жив — no-op, никаких сетевых вызовов;
//     истёк и есть refresh-токен — ровно один вызов обновления
//     (под single-flight замком, если настроен Store);
//     истёк и refresh-токена нет — пометка RefreshAccessTokenError.
func (p *Pipeline) Advance(ctx context.Context, tok models.SessionToken, signIn *models.SignInOutcome) models.SessionToken {
	const op = "session.Pipeline.Advance"

	// 1) Продолжение начального входа.
	if signIn != nil {
		if signIn.Tokens == nil {
			log.From(ctx).Error("backend_tokens_missing_after_sign_in",
				slog.String("op", op),
			)

			tok.Err = models.SessionErrNoBackendTokens
			return tok
		}

		tok.AccessToken = signIn.Tokens.AccessToken
		tok.RefreshToken = signIn.Tokens.RefreshToken
		tok.AccessExpiresAt = signIn.Tokens.AccessExpiresAt
		tok.RefreshExpiresAt = signIn.Tokens.RefreshExpiresAt
		tok.Err = models.SessionErrNone

		return tok
	}

	// 2) Отравленный токен не лечим: решение о re-login за стадией Resolve.
	if tok.Err == models.SessionErrRefreshFailed {
		return tok
	}

	// 3) Быстрый путь: access-токен ещё жив.
	if !tok.AccessExpired(p.now().UTC()) {
		return tok
	}

	if tok.RefreshToken == "" {
		tok.Err = models.SessionErrRefreshFailed
		return tok
	}

	// Single-flight: проигравший гонку (другая вкладка уже обновляет)
	// остаётся со старым токеном и заберёт новую cookie следующим запросом.
	if p.store != nil {
		ok, err := p.store.TryRefreshLock(ctx, tok.RefreshToken)
		if err != nil {
			// Redis-сбой не должен ломать обновление; деградируем
			// до поведения без замка.
			log.From(ctx).Warn("refresh_lock_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		} else if !ok {
			return tok
		}
	}

	return p.exchanger.RefreshToken(ctx, tok)
}

// Resolve — стадия контроля. Идемпотентна и чиста: одинаковый токен даёт
// одинаковый результат. Любой непустой Err или отсутствие токенов пары —
// отказ, даже если access-токен формально ещё присутствует.
func (p *Pipeline) Resolve(tok models.SessionToken) (models.Session, error) {
	const op = "session.Pipeline.Resolve"

	if tok.Err == models.SessionErrRefreshFailed {
		return models.Session{}, fmt.Errorf("%s: %w", op, ErrReauthRequired)
	}

	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return models.Session{}, fmt.Errorf("%s: %w", op, ErrNoBackendTokens)
	}

	return models.Session{
		UserID:          tok.UserID,
		AccessToken:     tok.AccessToken,
		RefreshToken:    tok.RefreshToken,
		AccessExpiresAt: tok.AccessExpiresAt,
	}, nil
}
