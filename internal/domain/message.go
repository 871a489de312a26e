package domain

import "time"

// Message - сообщение, полученное из брокера под блокировкой (peek-lock).
// Живёт локально от получения до разрешения блокировки (complete/abandon).
type Message struct {
	ID            string    // идентификатор, выданный брокером (уникален для активной блокировки)
	Body          []byte    // полезная нагрузка
	CorrelationID string    // необязательный идентификатор корреляции
	LockToken     string    // токен блокировки; нужен для complete/abandon/renew
	// DeliveryKey - назначен брокером, уникален в очереди и не меняется при повторной доставке
	// (sequence number, topic/partition/offset). Пустой, если драйвер такого не даёт.
	DeliveryKey string
	Queue         string    // очередь-источник
	DeliveryCount uint32    // номер доставки (1 - первая)
	EnqueuedAt    time.Time // время постановки в очередь (если известно)
	LockedUntil   time.Time // момент истечения блокировки (если известен)

	// Raw - исходное сообщение драйвера; используется только драйвером при разрешении блокировки.
	Raw any
}

// OutgoingMessage - сообщение для отправки в очередь.
type OutgoingMessage struct {
	Body          []byte
	CorrelationID string
}
