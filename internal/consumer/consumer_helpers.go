package consumer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Gunvolt24/sb_relay/internal/broker"
	"github.com/Gunvolt24/sb_relay/internal/domain"
	"github.com/Gunvolt24/sb_relay/pkg/ctxmeta"
	"github.com/Gunvolt24/sb_relay/pkg/metrics"
)

// process обрабатывает одно сообщение: аренда → handler → complete/abandon → остановка аренды.
// Аренда останавливается ровно один раз при любом исходе.
func (c *Consumer) process(ctx context.Context, msg *domain.Message) {
	metrics.MessagesReceived.WithLabelValues(c.queue).Inc()

	ctx = ctxmeta.WithMessageID(ctx, msg.ID)
	ctx = ctxmeta.WithCorrelationID(ctx, msg.CorrelationID)
	ctx, span := c.tracer.Start(ctx, "broker.process", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", c.queue),
			attribute.String("messaging.message.id", msg.ID),
			attribute.Int("messaging.servicebus.message.delivery_count", int(msg.DeliveryCount)),
		))
	defer span.End()

	stop, _ := c.leases.Start(ctx, msg)
	defer stop()

	// Ключ - DeliveryKey, а не ID: ID у Service Bus задаёт отправитель, он может совпадать у разных сообщений.
	dedup := c.cache != nil && msg.DeliveryKey != ""
	if dedup && c.cache.Seen(ctx, msg.DeliveryKey) {
		// handler уже отработал, потерялся только complete
		c.log.Infof(ctx, "message id=%s key=%s already handled (delivery=%d), completing",
			msg.ID, msg.DeliveryKey, msg.DeliveryCount)
		c.complete(ctx, msg)
		return
	}

	if err := c.handle(ctx, msg); err != nil {
		metrics.HandlerFailures.WithLabelValues(c.queue).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		c.log.Warnf(ctx, "handler failed id=%s: %v (abandoning)", msg.ID, err)
		c.abandon(ctx, msg)
		return
	}

	if dedup {
		c.cache.Remember(ctx, msg.DeliveryKey)
	}
	c.complete(ctx, msg)
}

// handle вызывает handler; паника превращается в ErrHandler.
func (c *Consumer) handle(ctx context.Context, msg *domain.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrHandler, r)
		}
	}()

	if hErr := c.handler(ctx, msg); hErr != nil {
		return fmt.Errorf("%w: %w", ErrHandler, hErr)
	}
	return nil
}

// complete - ошибка разрешения логируется, цикл продолжается.
func (c *Consumer) complete(ctx context.Context, msg *domain.Message) {
	rctx, cancel := resolveContext(ctx)
	defer cancel()

	if err := c.inv.CompleteMessage(rctx, msg); err != nil {
		metrics.MessagesResolved.WithLabelValues(c.queue, "complete", "error").Inc()
		c.log.Warnf(ctx, "complete failed id=%s: %v", msg.ID, err)
		return
	}
	metrics.MessagesResolved.WithLabelValues(c.queue, "complete", "ok").Inc()
}

func (c *Consumer) abandon(ctx context.Context, msg *domain.Message) {
	rctx, cancel := resolveContext(ctx)
	defer cancel()

	if err := c.inv.AbandonMessage(rctx, msg); err != nil {
		metrics.MessagesResolved.WithLabelValues(c.queue, "abandon", "error").Inc()
		c.log.Warnf(ctx, "abandon failed id=%s: %v", msg.ID, err)
		return
	}
	metrics.MessagesResolved.WithLabelValues(c.queue, "abandon", "ok").Inc()
}

// resolveContext - разрешение блокировки доводится до конца и при остановке цикла.
func resolveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
}

// closeStream закрывает поток и логирует ошибку.
func (c *Consumer) closeStream(ctx context.Context, s *broker.Stream) {
	cctx, cancel := resolveContext(ctx)
	defer cancel()
	if err := s.Close(cctx); err != nil {
		c.log.Warnf(ctx, "close receive stream queue=%s: %v", s.Queue(), err)
	}
}
