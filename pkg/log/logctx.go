// log — прокладка request-scoped логгера через context.
//
// Любой слой (middleware, клиенты, пайплайн сессии) кладёт обогащённый
// *slog.Logger в контекст через Into и достаёт его через From; при отсутствии
// логгера From возвращает slog.Default(), поэтому вызовы всегда безопасны.
package log

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// Into кладёт логгер в контекст.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From достаёт логгер из контекста (или возвращает slog.Default()).
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}

	return slog.Default()
}
