package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gunvolt24/sb_relay/internal/domain"
	"github.com/Gunvolt24/sb_relay/internal/ports"
	"golang.org/x/sync/singleflight"
)

// closeTimeout - время на закрытие выведенного из обращения клиента.
const closeTimeout = 10 * time.Second

// Connection - единственный владелец живого подключения к брокеру.
// Сам никогда не переподключается: это делает Invoker через Connect.
type Connection struct {
	dialer ports.Dialer
	log    ports.Logger

	mu     sync.RWMutex // защищает cur/gen/closed
	cur    *handle
	gen    uint64
	closed bool

	dials singleflight.Group
}

// handle - клиент брокера со счётчиком ссылок.
// После замены (retired) закрывается, когда отпущена последняя ссылка:
// поток получения на старом клиенте не обрывается чужим переподключением.
type handle struct {
	client ports.BrokerClient
	gen    uint64
	log    ports.Logger

	mu      sync.Mutex
	refs    int
	retired bool
	closed  bool
}

// NewConnection - конструктор. Подключение не устанавливается до вызова Connect.
func NewConnection(dialer ports.Dialer, log ports.Logger) *Connection {
	return &Connection{dialer: dialer, log: log}
}

// Connect - открывает новое подключение и заменяет текущее целиком.
// При ошибке прежний клиент (если был) остаётся на месте.
// Параллельные вызовы схлопываются в один Dial.
func (c *Connection) Connect(ctx context.Context) error {
	_, err, _ := c.dials.Do("connect", func() (any, error) {
		return nil, c.connect(ctx)
	})
	return err
}

func (c *Connection) connect(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	c.log.Infof(ctx, "connecting to broker")
	client, err := c.dialer.Dial(ctx)
	if err != nil {
		c.log.Warnf(ctx, "could not connect to broker: %v", err)
		return fmt.Errorf("%w: dial: %w", ErrConnection, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = client.Close(ctx)
		return ErrClosed
	}
	c.gen++
	old := c.cur
	c.cur = &handle{client: client, gen: c.gen, log: c.log}
	gen := c.gen
	c.mu.Unlock()

	if old != nil {
		old.retire()
	}
	c.log.Infof(ctx, "connected to broker generation=%d", gen)
	return nil
}

// Connected - есть ли живой клиент.
func (c *Connection) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur != nil
}

// Generation - номер текущего подключения (растёт с каждым Connect).
func (c *Connection) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Send - отправить одно сообщение в очередь.
func (c *Connection) Send(ctx context.Context, queue string, body []byte, correlationID string) error {
	h, err := c.acquire()
	if err != nil {
		return err
	}
	defer h.release()

	msg := &domain.OutgoingMessage{Body: body, CorrelationID: correlationID}
	if err := h.client.Send(ctx, queue, msg); err != nil {
		return fmt.Errorf("%w: queue=%s: %w", ErrSend, queue, err)
	}
	return nil
}

// ReceiveStream - открыть поток получения (peek-lock). Поток держит ссылку на клиента до Close.
func (c *Connection) ReceiveStream(ctx context.Context, queue string) (*Stream, error) {
	h, err := c.acquire()
	if err != nil {
		return nil, err
	}

	inner, err := h.client.Receive(ctx, queue)
	if err != nil {
		h.release()
		return nil, fmt.Errorf("%w: open receiver queue=%s: %w", ErrConnection, queue, err)
	}
	return &Stream{inner: inner, h: h, queue: queue}, nil
}

// CompleteMessage - завершить сообщение (удалить из очереди).
func (c *Connection) CompleteMessage(ctx context.Context, msg *domain.Message) error {
	return c.settle(ctx, msg, "complete", func(cl ports.BrokerClient) error { return cl.Complete(ctx, msg) })
}

// AbandonMessage - снять блокировку, сообщение сразу доступно для повторной доставки.
func (c *Connection) AbandonMessage(ctx context.Context, msg *domain.Message) error {
	return c.settle(ctx, msg, "abandon", func(cl ports.BrokerClient) error { return cl.Abandon(ctx, msg) })
}

// RenewLock - продлить блокировку сообщения.
func (c *Connection) RenewLock(ctx context.Context, msg *domain.Message) error {
	h, err := c.acquire()
	if err != nil {
		return err
	}
	defer h.release()

	if err := h.client.RenewLock(ctx, msg); err != nil {
		return fmt.Errorf("%w: id=%s: %w", ErrRenewal, msg.ID, err)
	}
	return nil
}

// Close - освобождает подключение. Повторный вызов - no-op.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	h := c.cur
	c.cur = nil
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	c.log.Infof(ctx, "closing broker connection generation=%d", h.gen)
	return h.retire()
}

func (c *Connection) settle(ctx context.Context, msg *domain.Message, op string, fn func(ports.BrokerClient) error) error {
	h, err := c.acquire()
	if err != nil {
		return err
	}
	defer h.release()

	if err := fn(h.client); err != nil {
		return fmt.Errorf("%w: %s id=%s: %w", ErrResolution, op, msg.ID, err)
	}
	return nil
}

// acquire - взять ссылку на текущего клиента под read-lock.
func (c *Connection) acquire() (*handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.cur == nil {
		return nil, ErrNotConnected
	}
	c.cur.mu.Lock()
	c.cur.refs++
	c.cur.mu.Unlock()
	return c.cur, nil
}

func (h *handle) release() {
	h.mu.Lock()
	h.refs--
	shouldClose := h.retired && h.refs == 0 && !h.closed
	if shouldClose {
		h.closed = true
	}
	h.mu.Unlock()

	if shouldClose {
		_ = h.close()
	}
}

// retire - вывести клиента из обращения; закрыть сразу, если ссылок нет.
func (h *handle) retire() error {
	h.mu.Lock()
	h.retired = true
	shouldClose := h.refs == 0 && !h.closed
	if shouldClose {
		h.closed = true
	}
	h.mu.Unlock()

	if shouldClose {
		return h.close()
	}
	return nil
}

func (h *handle) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := h.client.Close(ctx); err != nil {
		h.log.Warnf(ctx, "close broker client generation=%d: %v", h.gen, err)
		return err
	}
	return nil
}
