package ports

import "context"

// MessageConsumer - фоновый потребитель сообщений, управляемый приложением.
type MessageConsumer interface {
	Run(ctx context.Context) error
	Close() error
	Healthy() bool
}
