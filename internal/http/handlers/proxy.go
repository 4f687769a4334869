package handlers

import (
	"io"
	"net/http"
	"strings"

	apierrors "github.com/pribylovaa/qna-web-bff/internal/errors"
)

// proxyBodyLimit — предохранитель от сверхбольших тел (вопросы/ответы с
// вложенным markdown укладываются с запасом).
const proxyBodyLimit = 4 << 20

// passHeaders — заголовки, которые проксируются на шлюз как есть.
// Authorization не входит: bearer прикладывает исходящий клиент из сессии.
var passHeaders = []string{"Content-Type", "Accept", "Accept-Language", "If-None-Match"}

// Proxy — сквозной прокси /api/* -> API Gateway.
//
// BFF не вмешивается в семантику вызова: тело и статус апстрима
// возвращаются без изменений, клиент шлюза добавляет bearer текущей
// сессии и ограниченные повторы для GET/HEAD.
func (h *Handlers) Proxy(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	if path == "" {
		path = "/"
	}
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(io.LimitReader(r.Body, proxyBodyLimit))
		if err != nil {
			apierrors.WriteError(w, r, err)
			return
		}
		body = b
	}

	header := make(http.Header, len(passHeaders))
	for _, k := range passHeaders {
		if v := r.Header.Get(k); v != "" {
			header.Set(k, v)
		}
	}

	resp, err := h.Gateway.Do(r.Context(), r.Method, path, body, header)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
