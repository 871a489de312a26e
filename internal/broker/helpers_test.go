package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/Gunvolt24/sb_relay/internal/broker"
	"github.com/Gunvolt24/sb_relay/internal/broker/memory"
)

type nopLogger struct{}

func (nopLogger) Infof(context.Context, string, ...any)  {}
func (nopLogger) Warnf(context.Context, string, ...any)  {}
func (nopLogger) Errorf(context.Context, string, ...any) {}

// connectMemory - подключение к брокеру в памяти, уже установленное.
func connectMemory(t *testing.T, b *memory.Broker) (*broker.Connection, *broker.Invoker) {
	t.Helper()
	conn := broker.NewConnection(b.Dialer(), nopLogger{})
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	return conn, broker.NewInvoker(conn, nopLogger{})
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
