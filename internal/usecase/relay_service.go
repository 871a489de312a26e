package usecase

import (
	"context"
	"fmt"

	"github.com/Gunvolt24/sb_relay/internal/domain"
	"github.com/Gunvolt24/sb_relay/internal/ports"
	"github.com/Gunvolt24/sb_relay/pkg/validate"
)

// RelayService - прикладная логика обработчика: разобрать JSON из входной очереди
// и переслать его в очередь назначения (без знаний о транспорте).
type RelayService struct {
	sender      ports.MessageSender
	destination string
	log         ports.Logger
}

// NewRelayService - DI-конструктор.
func NewRelayService(sender ports.MessageSender, destination string, log ports.Logger) *RelayService {
	return &RelayService{
		sender:      sender,
		destination: destination,
		log:         log,
	}
}

// Handle - обработчик сообщения (ports.MessageHandler).
// Шаги:
//  1. строгий разбор JSON (одно значение, без хвоста) -> validate.ErrInvalidPayload при проблемах;
//  2. пересылка канонического JSON в очередь назначения;
//  3. correlation id берётся из входящего сообщения, при его отсутствии - ID сообщения.
//
// Любая ошибка возвращается наверх: сообщение будет возвращено в очередь (abandon).
func (s *RelayService) Handle(ctx context.Context, msg *domain.Message) error {
	_, canonical, err := validate.PayloadFromJSON(msg.Body)
	if err != nil {
		s.log.Warnf(ctx, "invalid payload id=%s delivery=%d: %v", msg.ID, msg.DeliveryCount, err)
		return err
	}
	s.log.Infof(ctx, "processing message id=%s bytes=%d", msg.ID, len(canonical))

	correlationID := msg.CorrelationID
	if correlationID == "" {
		correlationID = msg.ID
	}

	if err := s.sender.Send(ctx, s.destination, canonical, correlationID); err != nil {
		return fmt.Errorf("forward id=%s to %s: %w", msg.ID, s.destination, err)
	}
	s.log.Infof(ctx, "message id=%s forwarded to %s", msg.ID, s.destination)
	return nil
}
