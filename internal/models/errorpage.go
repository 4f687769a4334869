package models

// ErrorPageCode — код для /auth/error?error=<code>; контракт с фронтом.
type ErrorPageCode string

const (
	// ErrorPageServiceUnavailable — auth-сервис недоступен (сеть/таймаут).
	ErrorPageServiceUnavailable ErrorPageCode = "ServiceUnavailable"
	// ErrorPageAuthenticationFailed — провайдерский токен отвергнут (401).
	ErrorPageAuthenticationFailed ErrorPageCode = "AuthenticationFailed"
	// ErrorPageAuthServiceError — прочий сбой auth-сервиса (не-2xx, битое тело).
	ErrorPageAuthServiceError ErrorPageCode = "AuthServiceError"
	// ErrorPageConfiguration — ошибка конфигурации (нет id_token и т.п.).
	ErrorPageConfiguration ErrorPageCode = "Configuration"
)

// ErrorPageDescriptor — человекочитаемое описание кода для страницы ошибки.
type ErrorPageDescriptor struct {
	Code    ErrorPageCode `json:"code"`
	Title   string        `json:"title"`
	Message string        `json:"message"`
	Action  string        `json:"action"`
	// Retryable — имеет ли смысл кнопка «повторить» в принципе;
	// фактическая доступность дополнительно гасится live health-check'ом.
	Retryable bool `json:"retryable"`
}

// errorPages — таблица маппинга код -> описание.
var errorPages = map[ErrorPageCode]ErrorPageDescriptor{
	ErrorPageServiceUnavailable: {
		Code:      ErrorPageServiceUnavailable,
		Title:     "Сервис временно недоступен",
		Message:   "Не удалось связаться с сервисом аутентификации. Попробуйте позже.",
		Action:    "retry",
		Retryable: true,
	},
	ErrorPageAuthenticationFailed: {
		Code:      ErrorPageAuthenticationFailed,
		Title:     "Не удалось войти",
		Message:   "Google-аккаунт не был подтверждён сервисом аутентификации.",
		Action:    "login",
		Retryable: true,
	},
	ErrorPageAuthServiceError: {
		Code:      ErrorPageAuthServiceError,
		Title:     "Ошибка сервиса аутентификации",
		Message:   "Сервис аутентификации вернул непредвиденный ответ.",
		Action:    "retry",
		Retryable: true,
	},
	ErrorPageConfiguration: {
		Code:      ErrorPageConfiguration,
		Title:     "Ошибка конфигурации",
		Message:   "Вход невозможен из-за ошибки конфигурации приложения.",
		Action:    "support",
		Retryable: false,
	},
}

// ErrorPageFor возвращает описание по коду; неизвестный код трактуем как
// AuthServiceError, чтобы фронт всегда получал валидный дескриптор.
func ErrorPageFor(code ErrorPageCode) ErrorPageDescriptor {
	if d, ok := errorPages[code]; ok {
		return d
	}

	d := errorPages[ErrorPageAuthServiceError]
	d.Code = code
	return d
}
