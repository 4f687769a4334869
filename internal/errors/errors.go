// errors стандартизирует ответы об ошибках HTTP-слоя web-bff.
// На вход он принимает ошибку (таксономия authclient/session/context),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Маппинг:
//   - KindUnreachable (auth-сервис недостижим)        -> 503 unavailable
//   - KindTokenRejected (401 от auth-сервиса)         -> 401 unauthenticated
//   - KindServiceFault (не-2xx/битое тело апстрима)   -> 502 bad_gateway
//   - KindConfiguration                               -> 500 internal
//   - session.ErrReauthRequired / ErrNoBackendTokens  -> 401 unauthenticated
//   - gateway.ErrUpstreamUnavailable                   -> 503 unavailable
//   - context.DeadlineExceeded                        -> 504 deadline_exceeded
//   - context.Canceled                                -> 499 canceled
//   - прочее                                          -> 500 internal
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/qna-web-bff/internal/authclient"
	"github.com/pribylovaa/qna-web-bff/internal/gateway"
	"github.com/pribylovaa/qna-web-bff/internal/session"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и унифицированный ответ.
// err == nil — программная ошибка вызова: возвращаем 500/internal,
// чтобы не послать "200 OK" с телом ошибки и не маскировать баг.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := base(err)

	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	// Прокидываем request_id для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func base(err error) (int, string, string) {
	if err == nil {
		return http.StatusInternalServerError, "internal", "internal error"
	}

	switch {
	case errors.Is(err, session.ErrReauthRequired),
		errors.Is(err, session.ErrNoBackendTokens):
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case errors.Is(err, gateway.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "service unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	}

	switch authclient.KindOf(err) {
	case authclient.KindUnreachable:
		return http.StatusServiceUnavailable, "unavailable", "auth service unavailable"
	case authclient.KindTokenRejected:
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case authclient.KindServiceFault:
		return http.StatusBadGateway, "bad_gateway", "upstream fault"
	}

	return http.StatusInternalServerError, "internal", "internal error"
}
