// Пакет ctxmeta - нейтральный слой для работы с метаданными, которые
// прокидываются через context.Context (request_id, message_id, trace_id и т.д.).
// Идея: транспорт, консьюмер и логгер зависят от небольшого общего пакета, но не друг от друга.
package ctxmeta

import "context"

type ctxKey string

const (
	// Ключи контекста (неэкспортируемые типы - чтобы избежать коллизий).
	KeyRequestID     ctxKey = "request_id"
	KeyMessageID     ctxKey = "message_id"
	KeyCorrelationID ctxKey = "correlation_id"
)

// WithRequestID кладёт request_id в контекст (если пусто - ничего не делает).
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, KeyRequestID, requestID)
}

// RequestIDFromContext достаёт request_id из контекста.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return valueFrom(ctx, KeyRequestID)
}

// WithMessageID кладёт идентификатор обрабатываемого сообщения брокера.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return withValue(ctx, KeyMessageID, messageID)
}

func MessageIDFromContext(ctx context.Context) (string, bool) {
	return valueFrom(ctx, KeyMessageID)
}

// WithCorrelationID кладёт идентификатор корреляции сообщения.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return withValue(ctx, KeyCorrelationID, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	return valueFrom(ctx, KeyCorrelationID)
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil || v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

// valueFrom - пустое значение считаем отсутствующим.
func valueFrom(ctx context.Context, key ctxKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
