package ports

import (
	"context"

	"github.com/Gunvolt24/sb_relay/internal/domain"
)

// Dialer - устанавливает новое подключение к брокеру (получает учётные данные, открывает клиента).
type Dialer interface {
	Dial(ctx context.Context) (BrokerClient, error)
}

// BrokerClient - живое подключение к брокеру.
// Реализация не переподключается сама: этим занимается broker.Invoker.
type BrokerClient interface {
	// Send - открыть канал отправки в очередь, передать одно сообщение, закрыть канал.
	Send(ctx context.Context, queue string, msg *domain.OutgoingMessage) error

	// Receive - открыть поток получения сообщений в режиме peek-lock.
	Receive(ctx context.Context, queue string) (MessageStream, error)

	// Complete - удалить сообщение из очереди навсегда.
	Complete(ctx context.Context, msg *domain.Message) error

	// Abandon - снять блокировку; сообщение сразу доступно для повторной доставки.
	Abandon(ctx context.Context, msg *domain.Message) error

	// RenewLock - продлить блокировку на фиксированный брокером интервал.
	RenewLock(ctx context.Context, msg *domain.Message) error

	Close(ctx context.Context) error
}

// MessageStream - ленивая, фактически бесконечная последовательность сообщений.
type MessageStream interface {
	// Next блокируется до появления сообщения, ошибки или отмены контекста.
	Next(ctx context.Context) (*domain.Message, error)
	Close(ctx context.Context) error
}
