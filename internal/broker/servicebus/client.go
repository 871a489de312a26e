// Package servicebus - драйвер Azure Service Bus (peek-lock) для broker.Connection.
package servicebus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"

	"github.com/Gunvolt24/sb_relay/internal/domain"
	"github.com/Gunvolt24/sb_relay/internal/ports"
)

// errForeignMessage - сообщение получено не этим драйвером (нет исходного ReceivedMessage).
var errForeignMessage = errors.New("servicebus: message was not received by this driver")

// Config - параметры подключения.
// Если ConnectionString пуст, используются учётные данные окружения (DefaultAzureCredential).
type Config struct {
	Namespace        string // полное имя пространства, например "ns.servicebus.windows.net"
	ConnectionString string
}

// Проверки соответствия портам.
var (
	_ ports.Dialer        = (*Dialer)(nil)
	_ ports.BrokerClient  = (*Client)(nil)
	_ ports.MessageStream = (*stream)(nil)
)

// Dialer - создаёт новый azservicebus.Client на каждый Dial.
type Dialer struct {
	cfg Config
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg}
}

// Dial - получить учётные данные и открыть клиента.
func (d *Dialer) Dial(_ context.Context) (ports.BrokerClient, error) {
	var (
		client *azservicebus.Client
		err    error
	)

	if d.cfg.ConnectionString != "" {
		client, err = azservicebus.NewClientFromConnectionString(d.cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("servicebus client from connection string: %w", err)
		}
	} else {
		if d.cfg.Namespace == "" {
			return nil, errors.New("servicebus: namespace is empty")
		}
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("servicebus credential: %w", credErr)
		}
		client, err = azservicebus.NewClient(d.cfg.Namespace, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("servicebus client namespace=%s: %w", d.cfg.Namespace, err)
		}
	}

	return &Client{client: client, settlers: make(map[string]*azservicebus.Receiver)}, nil
}

// Client - обёртка над azservicebus.Client.
// Для разрешения блокировок держит по одному receiver на очередь: сообщение,
// полученное другим link'ом (например, до переподключения), SDK разрешает через management link.
type Client struct {
	client *azservicebus.Client

	mu       sync.Mutex
	settlers map[string]*azservicebus.Receiver
}

func (c *Client) Send(ctx context.Context, queue string, msg *domain.OutgoingMessage) error {
	sender, err := c.client.NewSender(queue, nil)
	if err != nil {
		return fmt.Errorf("open sender: %w", err)
	}
	defer func() { _ = sender.Close(ctx) }()

	return sender.SendMessage(ctx, toOutgoing(msg), nil)
}

func (c *Client) Receive(_ context.Context, queue string) (ports.MessageStream, error) {
	r, err := c.client.NewReceiverForQueue(queue, peekLock())
	if err != nil {
		return nil, fmt.Errorf("open receiver: %w", err)
	}

	c.mu.Lock()
	c.settlers[queue] = r
	c.mu.Unlock()

	return &stream{owner: c, receiver: r, queue: queue}, nil
}

func (c *Client) Complete(ctx context.Context, msg *domain.Message) error {
	raw, r, err := c.settlerFor(msg)
	if err != nil {
		return err
	}
	return r.CompleteMessage(ctx, raw, nil)
}

func (c *Client) Abandon(ctx context.Context, msg *domain.Message) error {
	raw, r, err := c.settlerFor(msg)
	if err != nil {
		return err
	}
	return r.AbandonMessage(ctx, raw, nil)
}

func (c *Client) RenewLock(ctx context.Context, msg *domain.Message) error {
	raw, r, err := c.settlerFor(msg)
	if err != nil {
		return err
	}
	return r.RenewMessageLock(ctx, raw, nil)
}

func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	settlers := c.settlers
	c.settlers = make(map[string]*azservicebus.Receiver)
	c.mu.Unlock()

	var errs []error
	for _, r := range settlers {
		if err := r.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.client.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// settlerFor - receiver очереди сообщения (создаётся при необходимости).
func (c *Client) settlerFor(msg *domain.Message) (*azservicebus.ReceivedMessage, *azservicebus.Receiver, error) {
	raw, ok := msg.Raw.(*azservicebus.ReceivedMessage)
	if !ok || raw == nil {
		return nil, nil, errForeignMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.settlers[msg.Queue]; ok {
		return raw, r, nil
	}
	r, err := c.client.NewReceiverForQueue(msg.Queue, peekLock())
	if err != nil {
		return nil, nil, fmt.Errorf("open settlement receiver: %w", err)
	}
	c.settlers[msg.Queue] = r
	return raw, r, nil
}

type stream struct {
	owner    *Client
	receiver *azservicebus.Receiver
	queue    string
	buffered []*azservicebus.ReceivedMessage
}

// Next - ждёт следующее сообщение (ReceiveMessages блокируется до первого сообщения).
func (s *stream) Next(ctx context.Context) (*domain.Message, error) {
	for len(s.buffered) == 0 {
		msgs, err := s.receiver.ReceiveMessages(ctx, 1, nil)
		if err != nil {
			return nil, err
		}
		s.buffered = msgs
	}

	m := s.buffered[0]
	s.buffered = s.buffered[1:]
	return toDomain(s.queue, m), nil
}

func (s *stream) Close(ctx context.Context) error {
	s.owner.mu.Lock()
	if s.owner.settlers[s.queue] == s.receiver {
		delete(s.owner.settlers, s.queue)
	}
	s.owner.mu.Unlock()

	return s.receiver.Close(ctx)
}

func peekLock() *azservicebus.ReceiverOptions {
	return &azservicebus.ReceiverOptions{ReceiveMode: azservicebus.ReceiveModePeekLock}
}

// toOutgoing - correlation id используется и как MessageID (дедупликация на стороне брокера).
func toOutgoing(msg *domain.OutgoingMessage) *azservicebus.Message {
	out := &azservicebus.Message{Body: msg.Body}
	if msg.CorrelationID != "" {
		id := msg.CorrelationID
		out.MessageID = &id
		out.CorrelationID = &id
	}
	return out
}

func toDomain(queue string, m *azservicebus.ReceivedMessage) *domain.Message {
	out := &domain.Message{
		ID:            m.MessageID,
		Body:          m.Body,
		LockToken:     uuid.UUID(m.LockToken).String(),
		Queue:         queue,
		DeliveryCount: m.DeliveryCount,
		Raw:           m,
	}
	if m.CorrelationID != nil {
		out.CorrelationID = *m.CorrelationID
	}
	// MessageID задаёт отправитель и может повторяться; sequence number уникален в очереди.
	if m.SequenceNumber != nil {
		out.DeliveryKey = queue + "/" + strconv.FormatInt(*m.SequenceNumber, 10)
	}
	if m.EnqueuedTime != nil {
		out.EnqueuedAt = *m.EnqueuedTime
	}
	if m.LockedUntil != nil {
		out.LockedUntil = *m.LockedUntil
	}
	return out
}
