// Package memory - in-memory брокер с семантикой peek-lock.
// Нужен для локального запуска без внешних зависимостей и для тестов:
// поддерживает истечение/продление блокировок и внедрение отказов.
package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gunvolt24/sb_relay/internal/domain"
	"github.com/Gunvolt24/sb_relay/internal/ports"
	"github.com/google/uuid"
)

// DefaultLockDuration - как у Service Bus по умолчанию для очередей с увеличенной блокировкой.
const DefaultLockDuration = 5 * time.Minute

// Op - операция, в которую можно внедрить отказ.
type Op string

const (
	OpDial     Op = "dial"
	OpSend     Op = "send"
	OpReceive  Op = "receive"
	OpNext     Op = "next"
	OpComplete Op = "complete"
	OpAbandon  Op = "abandon"
	OpRenew    Op = "renew"
)

var (
	// ErrLockLost - блокировка истекла или уже разрешена.
	ErrLockLost = errors.New("message lock lost")
	// ErrClientClosed - клиент закрыт.
	ErrClientClosed = errors.New("client closed")
	// ErrStreamClosed - поток получения закрыт.
	ErrStreamClosed = errors.New("receive stream closed")
)

// Broker - общее состояние «сервиса»; клиенты получают через Dialer.
type Broker struct {
	lockDuration time.Duration

	mu     sync.Mutex
	queues map[string]*queue
	faults map[Op][]error
	dials  int
}

type queue struct {
	ready     []*entry
	locked    map[string]*entry // по lock token
	completed []*entry
	wake      chan struct{}
	lastSeq   int64
}

type entry struct {
	id            string
	seq           int64
	correlationID string
	body          []byte
	enqueuedAt    time.Time
	deliveries    uint32
	lockToken     string
	lockedUntil   time.Time
}

// NewBroker - lockDuration <= 0 заменяется на DefaultLockDuration.
func NewBroker(lockDuration time.Duration) *Broker {
	if lockDuration <= 0 {
		lockDuration = DefaultLockDuration
	}
	return &Broker{
		lockDuration: lockDuration,
		queues:       make(map[string]*queue),
		faults:       make(map[Op][]error),
	}
}

// Dialer - порт подключения к этому брокеру.
func (b *Broker) Dialer() ports.Dialer { return dialer{b: b} }

// FailNext - следующие len(errs) вызовов op завершатся указанными ошибками (по порядку).
func (b *Broker) FailNext(op Op, errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[op] = append(b.faults[op], errs...)
}

// Publish - положить сообщение в очередь напрямую (минуя клиента).
// Брокер назначает сообщению свой ID и порядковый номер в очереди (с 1).
func (b *Broker) Publish(queueName string, body []byte, correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueue(queueName, body, correlationID)
}

// Ready - число сообщений, доступных для получения.
func (b *Broker) Ready(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queueName)
	b.expireLocked(q, time.Now())
	return len(q.ready)
}

// Locked - число сообщений под активной блокировкой.
func (b *Broker) Locked(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queueName)
	b.expireLocked(q, time.Now())
	return len(q.locked)
}

// Completed - тела завершённых сообщений в порядке завершения.
func (b *Broker) Completed(queueName string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queueName)
	out := make([][]byte, 0, len(q.completed))
	for _, e := range q.completed {
		out = append(out, append([]byte(nil), e.body...))
	}
	return out
}

// Peek - копии сообщений, ожидающих получения.
func (b *Broker) Peek(queueName string) []domain.OutgoingMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queueName)
	out := make([]domain.OutgoingMessage, 0, len(q.ready))
	for _, e := range q.ready {
		out = append(out, domain.OutgoingMessage{Body: append([]byte(nil), e.body...), CorrelationID: e.correlationID})
	}
	return out
}

// Dials - сколько раз подключались к брокеру (включая неудачные попытки).
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// ------вспомогательные функции (вызываются под b.mu)------

func (b *Broker) queue(name string) *queue {
	q, ok := b.queues[name]
	if !ok {
		q = &queue{locked: make(map[string]*entry), wake: make(chan struct{})}
		b.queues[name] = q
	}
	return q
}

func (b *Broker) enqueue(queueName string, body []byte, correlationID string) {
	q := b.queue(queueName)
	q.lastSeq++
	q.ready = append(q.ready, &entry{
		id:            uuid.NewString(),
		seq:           q.lastSeq,
		correlationID: correlationID,
		body:          append([]byte(nil), body...),
		enqueuedAt:    time.Now(),
	})
	q.notify()
}

func (b *Broker) fault(op Op) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	errs := b.faults[op]
	if len(errs) == 0 {
		return nil
	}
	b.faults[op] = errs[1:]
	return errs[0]
}

// expireLocked - вернуть в очередь сообщения с истёкшей блокировкой.
func (b *Broker) expireLocked(q *queue, now time.Time) {
	for token, e := range q.locked {
		if now.After(e.lockedUntil) {
			delete(q.locked, token)
			e.lockToken = ""
			q.ready = append(q.ready, e)
			q.notify()
		}
	}
}

// lockedEntry - активная блокировка по токену или ErrLockLost.
func (b *Broker) lockedEntry(msg *domain.Message) (*queue, *entry, error) {
	q := b.queue(msg.Queue)
	b.expireLocked(q, time.Now())
	e, ok := q.locked[msg.LockToken]
	if !ok {
		return nil, nil, ErrLockLost
	}
	return q, e, nil
}

func (q *queue) notify() {
	close(q.wake)
	q.wake = make(chan struct{})
}

type dialer struct{ b *Broker }

func (d dialer) Dial(_ context.Context) (ports.BrokerClient, error) {
	d.b.mu.Lock()
	d.b.dials++
	d.b.mu.Unlock()

	if err := d.b.fault(OpDial); err != nil {
		return nil, err
	}
	return &client{b: d.b}, nil
}

type client struct {
	b      *Broker
	closed atomic.Bool
}

func (c *client) Send(_ context.Context, queueName string, msg *domain.OutgoingMessage) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := c.b.fault(OpSend); err != nil {
		return err
	}
	c.b.Publish(queueName, msg.Body, msg.CorrelationID)
	return nil
}

func (c *client) Receive(_ context.Context, queueName string) (ports.MessageStream, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if err := c.b.fault(OpReceive); err != nil {
		return nil, err
	}
	return &stream{c: c, queue: queueName, done: make(chan struct{})}, nil
}

func (c *client) Complete(_ context.Context, msg *domain.Message) error {
	return c.settle(OpComplete, msg, func(q *queue, e *entry) {
		delete(q.locked, e.lockToken)
		q.completed = append(q.completed, e)
	})
}

func (c *client) Abandon(_ context.Context, msg *domain.Message) error {
	return c.settle(OpAbandon, msg, func(q *queue, e *entry) {
		delete(q.locked, e.lockToken)
		e.lockToken = ""
		q.ready = append([]*entry{e}, q.ready...)
		q.notify()
	})
}

func (c *client) RenewLock(_ context.Context, msg *domain.Message) error {
	return c.settle(OpRenew, msg, func(_ *queue, e *entry) {
		e.lockedUntil = time.Now().Add(c.b.lockDuration)
	})
}

func (c *client) Close(_ context.Context) error {
	c.closed.Store(true)
	return nil
}

func (c *client) settle(op Op, msg *domain.Message, apply func(q *queue, e *entry)) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := c.b.fault(op); err != nil {
		return err
	}

	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	q, e, err := c.b.lockedEntry(msg)
	if err != nil {
		return err
	}
	apply(q, e)
	return nil
}

type stream struct {
	c         *client
	queue     string
	done      chan struct{}
	closeOnce sync.Once
}

// Next - блокируется, пока в очереди не появится сообщение. После отмены ctx сообщений не выдаёт.
func (s *stream) Next(ctx context.Context) (*domain.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-s.done:
			return nil, ErrStreamClosed
		default:
		}
		if s.c.closed.Load() {
			return nil, ErrClientClosed
		}
		if err := s.c.b.fault(OpNext); err != nil {
			return nil, err
		}

		b := s.c.b
		b.mu.Lock()
		now := time.Now()
		q := b.queue(s.queue)
		b.expireLocked(q, now)
		if len(q.ready) > 0 {
			e := q.ready[0]
			q.ready = q.ready[1:]
			e.deliveries++
			e.lockToken = uuid.NewString()
			e.lockedUntil = now.Add(b.lockDuration)
			q.locked[e.lockToken] = e
			msg := &domain.Message{
				ID:            e.id,
				DeliveryKey:   s.queue + "/" + strconv.FormatInt(e.seq, 10),
				Body:          append([]byte(nil), e.body...),
				CorrelationID: e.correlationID,
				LockToken:     e.lockToken,
				Queue:         s.queue,
				DeliveryCount: e.deliveries,
				EnqueuedAt:    e.enqueuedAt,
				LockedUntil:   e.lockedUntil,
			}
			b.mu.Unlock()
			return msg, nil
		}
		wake := q.wake
		recheck := b.nextExpiry(q, now)
		b.mu.Unlock()

		timer := time.NewTimer(recheck)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-s.done:
			timer.Stop()
			return nil, ErrStreamClosed
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (s *stream) Close(_ context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// nextExpiry - через сколько истечёт ближайшая блокировка (чтобы вернуть сообщение в очередь).
func (b *Broker) nextExpiry(q *queue, now time.Time) time.Duration {
	wait := b.lockDuration
	for _, e := range q.locked {
		if d := e.lockedUntil.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}
