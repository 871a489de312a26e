package broker

import (
	"context"

	"github.com/Gunvolt24/sb_relay/internal/ports"
	"github.com/Gunvolt24/sb_relay/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Проверка, что Producer удовлетворяет порту отправки.
var _ ports.MessageSender = (*Producer)(nil)

// Producer - отправка сообщений через Invoker. Собственного состояния нет.
type Producer struct {
	inv    *Invoker
	log    ports.Logger
	tracer trace.Tracer
}

func NewProducer(inv *Invoker, log ports.Logger) *Producer {
	return &Producer{
		inv:    inv,
		log:    log,
		tracer: otel.Tracer("github.com/Gunvolt24/sb_relay/internal/broker"),
	}
}

// Send - отправить body в очередь queue; correlationID необязателен.
// Ошибка отправки повторяется один раз после переподключения, затем возвращается вызывающему.
func (p *Producer) Send(ctx context.Context, queue string, body []byte, correlationID string) error {
	ctx, span := p.tracer.Start(ctx, "broker.send", trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", queue),
			attribute.Int("messaging.message.body.size", len(body)),
		))
	defer span.End()

	err := p.inv.Invoke(ctx, "send", func(ctx context.Context, c *Connection) error {
		return c.Send(ctx, queue, body, correlationID)
	})
	if err != nil {
		metrics.MessagesSent.WithLabelValues(queue, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		p.log.Errorf(ctx, "send to queue=%s failed: %v", queue, err)
		return err
	}

	metrics.MessagesSent.WithLabelValues(queue, "ok").Inc()
	p.log.Infof(ctx, "message sent queue=%s bytes=%d", queue, len(body))
	return nil
}
