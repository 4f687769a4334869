package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pribylovaa/qna-web-bff/internal/config"
	"github.com/pribylovaa/qna-web-bff/internal/models"
)

// Роль кодека — замена шифрованного cookie-хранилища сессионной библиотеки:
// SessionToken целиком упаковывается в подписанный HS256 JWT и живёт в
// cookie браузера. BFF не хранит сессий на сервере (не считая опциональных
// отметок в Redis), поэтому подпись — единственная защита целостности.

// ErrBadSessionCookie — cookie отсутствует, подпись не сошлась или
// токен истёк; для вызывающего это эквивалент «сессии нет».
var ErrBadSessionCookie = errors.New("bad session cookie")

// sessionClaims — полезная нагрузка сессионного JWT.
// Сроки access/refresh-токенов бэкенда — unix-миллисекунды (atexp/rtexp);
// exp самого JWT совпадает со сроком refresh-токена.
type sessionClaims struct {
	AccessToken      string `json:"at"`
	RefreshToken     string `json:"rt,omitempty"`
	AccessExpiresAt  int64  `json:"atexp,omitempty"`
	RefreshExpiresAt int64  `json:"rtexp,omitempty"`
	Err              string `json:"err,omitempty"`
	jwt.RegisteredClaims
}

// Codec подписывает/проверяет сессионную cookie.
type Codec struct {
	secret     []byte
	issuer     string
	cookieName string
	secure     bool

	now func() time.Time
}

// NewCodec создаёт кодек из конфигурации сессии.
func NewCodec(cfg config.SessionConfig) *Codec {
	return &Codec{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		cookieName: cfg.CookieName,
		secure:     cfg.CookieSecure,
		now:        time.Now,
	}
}

// Encode упаковывает токен в подписанный JWT.
func (c *Codec) Encode(tok models.SessionToken) (string, error) {
	const op = "session.Codec.Encode"

	now := c.now().UTC()

	// Срок жизни cookie = срок refresh-токена; «отравленный» токен без
	// известного срока получает короткое окно, достаточное, чтобы стадия
	// Resolve успела принудить re-login.
	exp := tok.RefreshExpiresAt
	if exp.IsZero() || !exp.After(now) {
		exp = now.Add(5 * time.Minute)
	}

	claims := sessionClaims{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Err:          string(tok.Err),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tok.UserID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	if !tok.AccessExpiresAt.IsZero() {
		claims.AccessExpiresAt = tok.AccessExpiresAt.UnixMilli()
	}
	if !tok.RefreshExpiresAt.IsZero() {
		claims.RefreshExpiresAt = tok.RefreshExpiresAt.UnixMilli()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// Decode проверяет подпись и восстанавливает токен сессии.
func (c *Codec) Decode(raw string) (models.SessionToken, error) {
	const op = "session.Codec.Decode"

	token, err := jwt.ParseWithClaims(raw, &sessionClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrBadSessionCookie)
			}

			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(c.issuer),
	)
	if err != nil {
		return models.SessionToken{}, fmt.Errorf("%s: %w", op, ErrBadSessionCookie)
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return models.SessionToken{}, fmt.Errorf("%s: %w", op, ErrBadSessionCookie)
	}

	tok := models.SessionToken{
		AccessToken:  claims.AccessToken,
		RefreshToken: claims.RefreshToken,
		UserID:       claims.Subject,
		Err:          models.SessionErrorCode(claims.Err),
	}

	if claims.AccessExpiresAt > 0 {
		tok.AccessExpiresAt = time.UnixMilli(claims.AccessExpiresAt).UTC()
	}
	if claims.RefreshExpiresAt > 0 {
		tok.RefreshExpiresAt = time.UnixMilli(claims.RefreshExpiresAt).UTC()
	}
	if claims.IssuedAt != nil {
		tok.IssuedAt = claims.IssuedAt.Time.UTC()
	}

	return tok, nil
}

// CookieName — имя сессионной cookie.
func (c *Codec) CookieName() string { return c.cookieName }

// Cookie собирает сессионную cookie с корректными флагами.
func (c *Codec) Cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     c.cookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie — cookie, стирающая сессию в браузере.
func (c *Codec) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
