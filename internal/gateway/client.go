// gateway — исходящий HTTP-клиент к API Gateway бэкенда.
//
// Клиент только прикладывает bearer-токен текущей сессии и x-request-id к
// запросу; он никогда не обновляет и не валидирует токены — это забота
// session.Pipeline. Идемпотентные запросы ретраятся с линейным бэкоффом.
package gateway

import (
	"bytes"
	"context"
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
)

// CtxKey — ключи контекста, общие для middleware и исходящего клиента.
type CtxKey string

const (
	// CtxRequestID — сквозной X-Request-Id входящего запроса.
	CtxRequestID CtxKey = "request_id"
	// CtxSession — валидная сессия, положенная SessionLoader'ом.
	CtxSession CtxKey = "session"
)

// SessionFrom достаёт сессию из контекста.
func SessionFrom(ctx context.Context) (models.Session, bool) {
	if v := ctx.Value(CtxSession); v != nil {
		if s, ok := v.(models.Session); ok {
			return s, true
		}
	}

	return models.Session{}, false
}

// ErrUpstreamUnavailable — шлюз недостижим после исчерпания повторов.
var ErrUpstreamUnavailable = errors.New("gateway upstream unavailable")

// Client — клиент шлюза.
type Client struct {
	base     string
	httpc    *http.Client
	attempts int

	// backoff — задержка перед повтором; линейная attempt*1s,
	// подменяется в тестах.
	backoff func(attempt int) time.Duration
}

// New создаёт клиент шлюза.
func New(cfg *config.Config) *Client {
	attempts := cfg.Gateway.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Client{
		base:     strings.TrimRight(cfg.Gateway.URL, "/"),
		httpc:    &http.Client{Timeout: cfg.Timeouts.Service},
		attempts: attempts,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * time.Second
		},
	}
}

// idempotent — методы, которые безопасно повторять.
func idempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// retryableStatus — транзиентные ответы шлюза.
func retryableStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable
}

// Do выполняет запрос к шлюзу по относительному пути.
//
// Поведение:
//   - bearer access-токен берётся из сессии в контексте (если есть);
//   - GET/HEAD повторяются до attempts раз при сетевой ошибке или 502/503,
//     пауза между попытками attempt*1s (прерываемая контекстом);
//   - 4xx (401/403/404/409 и прочие) отдаются вызывающему сразу, без повторов.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	const op = "gateway.Client.Do"

	lg := log.From(ctx)

	attempts := c.attempts
	if !idempotent(method) {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			// Линейный бэкофф, уважающий дедлайн запроса.
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		req, err := c.newRequest(ctx, method, path, body, header)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
			lg.Warn("gateway_request_failed",
				slog.String("op", op),
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.String("err", err.Error()),
			)
			continue
		}

		if retryableStatus(resp.StatusCode) && attempt < attempts && idempotent(method) {
			lastErr = fmt.Errorf("%s: transient upstream status %d", op, resp.StatusCode)
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("%s: retries exhausted: %w (last: %v)", op, ErrUpstreamUnavailable, lastErr)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if sess, ok := SessionFrom(ctx); ok && sess.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	}
	if v := ctx.Value(CtxRequestID); v != nil {
		if rid, _ := v.(string); rid != "" {
			req.Header.Set("X-Request-Id", rid)
		}
	}

	return req, nil
}
