package ports

import (
	"context"

	"github.com/Gunvolt24/sb_relay/internal/domain"
)

// MessageHandler - бизнес-логика обработки сообщения.
// nil - успех (сообщение будет завершено), ошибка - сообщение будет возвращено в очередь.
type MessageHandler func(ctx context.Context, msg *domain.Message) error

// MessageSender - отправка сообщений в очередь (реализует broker.Producer).
type MessageSender interface {
	Send(ctx context.Context, queue string, body []byte, correlationID string) error
}

// HandledCache - недавно успешно обработанные сообщения (по domain.Message.DeliveryKey).
type HandledCache interface {
	Seen(ctx context.Context, deliveryKey string) bool
	Remember(ctx context.Context, deliveryKey string)
}
