package broker

import (
	"context"

	"github.com/Gunvolt24/sb_relay/internal/domain"
	"github.com/Gunvolt24/sb_relay/internal/ports"
	"github.com/Gunvolt24/sb_relay/pkg/metrics"
)

// Op - операция над подключением к брокеру.
type Op func(ctx context.Context, conn *Connection) error

// Invoker - единая политика «переподключиться один раз и повторить один раз»
// для любой операции над Connection. Других мест с логикой переподключения нет.
type Invoker struct {
	conn *Connection
	log  ports.Logger
}

func NewInvoker(conn *Connection, log ports.Logger) *Invoker {
	return &Invoker{conn: conn, log: log}
}

// Invoke - выполнить op; при ошибке вызвать Connect и повторить op ровно один раз.
// Ошибка Connect возвращается как есть, ошибка повтора - без изменений.
// Если контекст уже отменён, переподключения нет.
func (i *Invoker) Invoke(ctx context.Context, name string, op Op) error {
	err := op(ctx, i.conn)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	i.log.Warnf(ctx, "broker op=%s failed: %v (reconnecting)", name, err)
	if cErr := i.conn.Connect(ctx); cErr != nil {
		metrics.Reconnects.WithLabelValues(name, "error").Inc()
		i.log.Errorf(ctx, "reconnect after op=%s failed: %v", name, cErr)
		return cErr
	}
	metrics.Reconnects.WithLabelValues(name, "ok").Inc()

	if err = op(ctx, i.conn); err != nil {
		i.log.Warnf(ctx, "broker op=%s failed after reconnect: %v", name, err)
	}
	return err
}

// Call - Invoke для операций, возвращающих значение.
// fn сама освобождает ресурсы, если возвращает ошибку.
func Call[T any](ctx context.Context, inv *Invoker, name string, fn func(ctx context.Context, conn *Connection) (T, error)) (T, error) {
	var res T
	err := inv.Invoke(ctx, name, func(ctx context.Context, conn *Connection) error {
		v, err := fn(ctx, conn)
		if err != nil {
			return err
		}
		res = v
		return nil
	})
	return res, err
}

// CompleteMessage - complete через политику переподключения.
func (i *Invoker) CompleteMessage(ctx context.Context, msg *domain.Message) error {
	return i.Invoke(ctx, "complete", func(ctx context.Context, c *Connection) error {
		return c.CompleteMessage(ctx, msg)
	})
}

// AbandonMessage - abandon через политику переподключения.
func (i *Invoker) AbandonMessage(ctx context.Context, msg *domain.Message) error {
	return i.Invoke(ctx, "abandon", func(ctx context.Context, c *Connection) error {
		return c.AbandonMessage(ctx, msg)
	})
}

// RenewLock - продление блокировки через политику переподключения.
func (i *Invoker) RenewLock(ctx context.Context, msg *domain.Message) error {
	return i.Invoke(ctx, "renew_lock", func(ctx context.Context, c *Connection) error {
		return c.RenewLock(ctx, msg)
	})
}

// ReceiveStream - открыть поток получения через политику переподключения.
func (i *Invoker) ReceiveStream(ctx context.Context, queue string) (*Stream, error) {
	return Call(ctx, i, "receive", func(ctx context.Context, c *Connection) (*Stream, error) {
		return c.ReceiveStream(ctx, queue)
	})
}
