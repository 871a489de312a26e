// Package kafka - драйвер broker.Connection поверх segmentio/kafka-go.
//
// Peek-lock на Kafka отображается так:
//   - complete - коммит оффсета сообщения;
//   - abandon - reader пересоздаётся и группа продолжает с последнего коммита,
//     то есть сообщение будет доставлено снова;
//   - продление блокировки не нужно: партиция закреплена за участником группы,
//     пока идут heartbeat'ы.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/Gunvolt24/sb_relay/internal/domain"
	"github.com/Gunvolt24/sb_relay/internal/ports"
)

// headerCorrelationID - заголовок с correlation id.
const headerCorrelationID = "correlation_id"

var (
	// ErrNoBrokers - в конфиге не указан ни один брокер.
	ErrNoBrokers = errors.New("kafka: no brokers configured")
	// ErrStreamClosed - поток получения закрыт.
	ErrStreamClosed = errors.New("kafka: receive stream closed")

	errForeignMessage = errors.New("kafka: message was not received by this driver")
	errNoStream       = errors.New("kafka: no open receive stream for topic")
)

// Проверки соответствия портам.
var (
	_ ports.Dialer        = (*Dialer)(nil)
	_ ports.BrokerClient  = (*Client)(nil)
	_ ports.MessageStream = (*stream)(nil)
)

// reader - минимальный контракт над kafka.Reader, чтобы подменять его в тестах.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// writer - минимальный контракт над kafka.Writer.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Dialer struct {
	cfg Config
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg}
}

// Dial - проверяет доступность хотя бы одного брокера и создаёт клиента.
func (d *Dialer) Dial(ctx context.Context) (ports.BrokerClient, error) {
	if len(d.cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	var lastErr error
	reachable := false
	for _, addr := range d.cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		reachable = true
		break
	}
	if !reachable {
		return nil, fmt.Errorf("kafka brokers %v unreachable: %w", d.cfg.Brokers, lastErr)
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(d.cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newClient(d.cfg, w, func(rc kafka.ReaderConfig) reader { return kafka.NewReader(rc) }), nil
}

// Client - writer на все топики и по одному потоку (reader'у группы) на топик.
type Client struct {
	cfg       Config
	w         writer
	newReader func(kafka.ReaderConfig) reader

	mu      sync.Mutex
	streams map[string]*stream
}

func newClient(cfg Config, w writer, newReader func(kafka.ReaderConfig) reader) *Client {
	return &Client{cfg: cfg, w: w, newReader: newReader, streams: make(map[string]*stream)}
}

// Send - ключ сообщения = correlation id (сообщения одной корреляции попадают в одну партицию).
func (c *Client) Send(ctx context.Context, queue string, msg *domain.OutgoingMessage) error {
	km := kafka.Message{Topic: queue, Value: msg.Body}
	if msg.CorrelationID != "" {
		km.Key = []byte(msg.CorrelationID)
		km.Headers = []kafka.Header{{Key: headerCorrelationID, Value: []byte(msg.CorrelationID)}}
	}
	return c.w.WriteMessages(ctx, km)
}

func (c *Client) Receive(_ context.Context, queue string) (ports.MessageStream, error) {
	rc := c.cfg.ReaderConfig(queue)
	s := &stream{owner: c, queue: queue, rc: rc, r: c.newReader(rc)}

	c.mu.Lock()
	c.streams[queue] = s
	c.mu.Unlock()
	return s, nil
}

// Complete - коммит оффсета.
func (c *Client) Complete(ctx context.Context, msg *domain.Message) error {
	s, raw, err := c.streamFor(msg)
	if err != nil {
		return err
	}
	return s.commit(ctx, raw)
}

// Abandon - следующий Next начнёт с последнего закоммиченного оффсета.
func (c *Client) Abandon(_ context.Context, msg *domain.Message) error {
	s, _, err := c.streamFor(msg)
	if err != nil {
		return err
	}
	s.markRewind()
	return nil
}

// RenewLock - no-op: назначение партиции держится heartbeat'ами группы.
func (c *Client) RenewLock(_ context.Context, msg *domain.Message) error {
	_, _, err := c.streamFor(msg)
	return err
}

func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	streams := c.streams
	c.streams = make(map[string]*stream)
	c.mu.Unlock()

	var errs []error
	for _, s := range streams {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.w.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Client) streamFor(msg *domain.Message) (*stream, kafka.Message, error) {
	raw, ok := msg.Raw.(kafka.Message)
	if !ok {
		return nil, kafka.Message{}, errForeignMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[msg.Queue]
	if !ok {
		return nil, kafka.Message{}, fmt.Errorf("%w: %s", errNoStream, msg.Queue)
	}
	return s, raw, nil
}

type stream struct {
	owner *Client
	queue string
	rc    kafka.ReaderConfig

	mu     sync.Mutex
	r      reader
	rewind bool
	closed bool
}

func (s *stream) Next(ctx context.Context) (*domain.Message, error) {
	r, err := s.current()
	if err != nil {
		return nil, err
	}

	m, err := r.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	return toDomain(s.queue, m), nil
}

func (s *stream) Close(_ context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	r := s.r
	s.mu.Unlock()

	s.owner.mu.Lock()
	if s.owner.streams[s.queue] == s {
		delete(s.owner.streams, s.queue)
	}
	s.owner.mu.Unlock()

	return r.Close()
}

// current - действующий reader; после abandon старый закрывается и создаётся новый.
func (s *stream) current() (reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.rewind {
		_ = s.r.Close()
		s.r = s.owner.newReader(s.rc)
		s.rewind = false
	}
	return s.r, nil
}

func (s *stream) commit(ctx context.Context, m kafka.Message) error {
	s.mu.Lock()
	r := s.r
	s.mu.Unlock()
	return r.CommitMessages(ctx, m)
}

func (s *stream) markRewind() {
	s.mu.Lock()
	s.rewind = true
	s.mu.Unlock()
}

// toDomain - ID сообщения стабилен между доставками: топик/партиция/оффсет.
func toDomain(queue string, m kafka.Message) *domain.Message {
	id := m.Topic + "/" + strconv.Itoa(m.Partition) + "/" + strconv.FormatInt(m.Offset, 10)
	out := &domain.Message{
		ID:          id,
		DeliveryKey: id,
		Body:        m.Value,
		LockToken:   id,
		Queue:       queue,
		EnqueuedAt:  m.Time,
		Raw:         m,
	}
	for _, h := range m.Headers {
		if h.Key == headerCorrelationID {
			out.CorrelationID = string(h.Value)
			break
		}
	}
	if out.CorrelationID == "" && len(m.Key) > 0 {
		out.CorrelationID = string(m.Key)
	}
	return out
}
