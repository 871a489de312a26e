package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/Gunvolt24/sb_relay/internal/domain"
	"github.com/Gunvolt24/sb_relay/internal/ports"
)

// Stream - долгоживущий поток получения сообщений, привязанный к конкретному клиенту.
// Перед открытием нового потока старый нужно закрыть.
type Stream struct {
	inner ports.MessageStream
	h     *handle
	queue string

	closeOnce sync.Once
	closeErr  error
}

// Next - следующее сообщение под блокировкой. Блокируется между сообщениями.
func (s *Stream) Next(ctx context.Context) (*domain.Message, error) {
	msg, err := s.inner.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: receive queue=%s: %w", ErrConnection, s.queue, err)
	}
	return msg, nil
}

// Queue - очередь, из которой читает поток.
func (s *Stream) Queue() string { return s.queue }

// Close - закрыть поток и отпустить клиента. Повторный вызов - no-op.
func (s *Stream) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.inner.Close(ctx)
		s.h.release()
	})
	return s.closeErr
}
