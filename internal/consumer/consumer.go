// Package consumer - цикл получения сообщений в режиме peek-lock:
// аренда блокировки на время обработки, complete/abandon, переподключение через Invoker.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Gunvolt24/sb_relay/internal/broker"
	"github.com/Gunvolt24/sb_relay/internal/domain"
	"github.com/Gunvolt24/sb_relay/internal/ports"
)

// ErrHandler - handler вернул ошибку или запаниковал; сообщение возвращается в очередь.
var ErrHandler = errors.New("message handler failed")

// Проверка, что Consumer удовлетворяет интерфейсу верхнего уровня (порт приложения).
var _ ports.MessageConsumer = (*Consumer)(nil)

// leaser - аренда блокировок (lease.Manager), интерфейс для подмены в тестах.
type leaser interface {
	Start(ctx context.Context, msg *domain.Message) (stop func(), started bool)
}

// resolveTimeout - время на complete/abandon, в том числе после отмены контекста цикла.
const resolveTimeout = 30 * time.Second

// Option - необязательные зависимости Consumer.
type Option func(*Consumer)

// WithHandledCache - пропускать handler для сообщений, уже успешно обработанных
// (повторная доставка после потерянного complete).
func WithHandledCache(cache ports.HandledCache) Option {
	return func(c *Consumer) { c.cache = cache }
}

// Consumer - один поток получения из очереди queue. Сообщения обрабатываются последовательно.
type Consumer struct {
	queue   string
	inv     *broker.Invoker
	leases  leaser
	handler ports.MessageHandler
	cache   ports.HandledCache
	log     ports.Logger
	tracer  trace.Tracer

	running   atomic.Bool
	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewConsumer - конструктор. Все обращения к брокеру идут через inv.
func NewConsumer(queue string, inv *broker.Invoker, leases leaser, handler ports.MessageHandler, log ports.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		queue:   queue,
		inv:     inv,
		leases:  leases,
		handler: handler,
		log:     log,
		tracer:  otel.Tracer("github.com/Gunvolt24/sb_relay/internal/consumer"),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run - основной цикл:
// 1) сеанс получения (открыть поток + читать сообщения) выполняется через Invoker;
// 2) упавший сеанс переподключается и повторяется один раз;
// 3) если и повтор упал, не доставив ни одного сообщения, - выходим с ошибкой ErrConnection;
// 4) сеанс, успевший доставить сообщения, получает новую попытку с переподключением.
// Остановка - отмена ctx или Close().
func (c *Consumer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.running.Store(true)
	defer c.running.Store(false)
	c.log.Infof(ctx, "consumer started queue=%s", c.queue)

	for {
		var delivered int
		err := c.inv.Invoke(ctx, "receive", func(ctx context.Context, conn *broker.Connection) error {
			n, sErr := c.session(ctx, conn)
			delivered = n
			return sErr
		})

		if ctx.Err() != nil {
			c.log.Infof(ctx, "consumer stopped queue=%s", c.queue)
			return ctx.Err()
		}
		if err == nil {
			continue
		}
		if delivered > 0 {
			// Сеанс был рабочим - новая попытка с собственным переподключением.
			c.log.Warnf(ctx, "receive session failed after %d messages: %v (restarting)", delivered, err)
			continue
		}

		c.log.Errorf(ctx, "receive from queue=%s failed after reconnect: %v", c.queue, err)
		if !errors.Is(err, broker.ErrConnection) {
			err = fmt.Errorf("%w: %w", broker.ErrConnection, err)
		}
		return fmt.Errorf("consume queue=%s: %w", c.queue, err)
	}
}

// Close - останавливает Run. Повторный вызов - no-op.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() { close(c.stopCh) })
	return nil
}

// Healthy - цикл получения запущен.
func (c *Consumer) Healthy() bool {
	return c.running.Load()
}

// session - один поток получения: читает и обрабатывает сообщения, пока поток не упадёт.
// Возвращает число доставленных сообщений; при отмене ctx ошибки нет.
func (c *Consumer) session(ctx context.Context, conn *broker.Connection) (int, error) {
	s, err := conn.ReceiveStream(ctx, c.queue)
	if err != nil {
		return 0, err
	}
	defer c.closeStream(ctx, s)

	n := 0
	for {
		// остановка между сообщениями: брошенное сообщение не должно вернуться в этот же цикл
		if ctx.Err() != nil {
			return n, nil
		}
		msg, err := s.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return n, nil
			}
			return n, err
		}
		n++
		c.process(ctx, msg)
	}
}
