package app_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/Gunvolt24/sb_relay/config"
	"github.com/Gunvolt24/sb_relay/internal/app"
	"github.com/Gunvolt24/sb_relay/internal/broker"
	"github.com/Gunvolt24/sb_relay/internal/broker/kafka"
	"github.com/Gunvolt24/sb_relay/internal/broker/memory"
	"github.com/Gunvolt24/sb_relay/internal/broker/servicebus"
	"github.com/Gunvolt24/sb_relay/internal/consumer"
	"github.com/Gunvolt24/sb_relay/internal/domain"
	"github.com/Gunvolt24/sb_relay/internal/lease"
	"github.com/Gunvolt24/sb_relay/internal/ports"
	"github.com/Gunvolt24/sb_relay/internal/ports/mocks"
)

// логгер-заглушка
type nopLogger struct{}

func (nopLogger) Infof(context.Context, string, ...any)  {}
func (nopLogger) Warnf(context.Context, string, ...any)  {}
func (nopLogger) Errorf(context.Context, string, ...any) {}

func newApp(log ports.Logger, cons ports.MessageConsumer, gracefulTimeout time.Duration) *app.App {
	// HTTP-сервер на случайном свободном порту
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NewServeMux(), ReadHeaderTimeout: time.Second}
	return app.NewApp(log, srv, cons, gracefulTimeout)
}

// runApp - Run в отдельной горутине.
func runApp(ctx context.Context, a *app.App) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	return errCh
}

// relayStack - брокер в памяти и настоящий консьюмер очереди "q" с данным handler.
func relayStack(t *testing.T, handler ports.MessageHandler) (*memory.Broker, *consumer.Consumer) {
	t.Helper()
	b := memory.NewBroker(time.Minute)
	conn := broker.NewConnection(b.Dialer(), nopLogger{})
	require.NoError(t, conn.Connect(context.Background()))
	inv := broker.NewInvoker(conn, nopLogger{})
	leases := lease.NewManager(lease.Config{}, inv.RenewLock, nopLogger{})

	// порядок как в cleanup из Bootstrap
	t.Cleanup(func() {
		leases.StopAll()
		_ = conn.Close(context.Background())
	})
	return b, consumer.NewConsumer("q", inv, leases, handler, nopLogger{})
}

func TestAppRun_GracefulShutdown(t *testing.T) {
	ctrl := gomock.NewController(t)
	cons := mocks.NewMockMessageConsumer(ctrl)
	cons.EXPECT().Run(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}).Times(1)
	cons.EXPECT().Close().Return(nil).Times(1)

	a := newApp(nopLogger{}, cons, time.Second)

	// Запуск и быстрая остановка
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, a.Run(ctx))
}

func TestAppRun_ConsumerConnectionLost_ReturnsError(t *testing.T) {
	ctrl := gomock.NewController(t)
	lost := errors.Join(broker.ErrConnection, errors.New("stream reset"))
	cons := mocks.NewMockMessageConsumer(ctrl)
	cons.EXPECT().Run(gomock.Any()).Return(lost).Times(1)
	cons.EXPECT().Close().Return(nil).Times(1)

	a := newApp(nopLogger{}, cons, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.Run(ctx)
	require.ErrorIs(t, err, broker.ErrConnection)
	require.NoError(t, ctx.Err(), "Run must return before the deadline")
}

// Сообщение в обработке на момент остановки: Run ждёт handler, и complete
// уходит до того, как Bootstrap-cleanup закроет подключение.
func TestAppRun_InFlightMessage_CompletedBeforeReturn(t *testing.T) {
	started := make(chan struct{})
	b, cons := relayStack(t, func(context.Context, *domain.Message) error {
		close(started)
		time.Sleep(150 * time.Millisecond) // отправка в очередь назначения, без учёта отмены
		return nil
	})
	b.Publish("q", []byte(`{"page":1}`), "doc-42")

	a := newApp(nopLogger{}, cons, 2*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := runApp(ctx, a)

	<-started
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Run to stop")
	}
	require.Len(t, b.Completed("q"), 1)
	require.Equal(t, 0, b.Locked("q"))
}

// Handler прерван отменой: сообщение брошено и вернулось в очередь до выхода из Run.
func TestAppRun_CancelBeforeHandlerReturns_MessageAbandoned(t *testing.T) {
	started := make(chan struct{})
	b, cons := relayStack(t, func(ctx context.Context, _ *domain.Message) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	b.Publish("q", []byte(`{"page":2}`), "doc-42")

	a := newApp(nopLogger{}, cons, 2*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := runApp(ctx, a)

	<-started
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Run to stop")
	}
	require.Empty(t, b.Completed("q"))
	require.Equal(t, 1, b.Ready("q"))
	require.Equal(t, 0, b.Locked("q"))
}

// Консьюмер, не реагирующий на остановку, держит Run не дольше gracefulTimeout.
func TestAppRun_StuckConsumer_BoundedByGracefulTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	cons := mocks.NewMockMessageConsumer(ctrl)
	cons.EXPECT().Run(gomock.Any()).DoAndReturn(func(context.Context) error {
		<-release
		return nil
	}).Times(1)
	cons.EXPECT().Close().Return(nil).Times(1)

	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warnf(gomock.Any(), "consumer did not stop within %s", gomock.Any()).Times(1)
	log.EXPECT().Infof(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Warnf(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Errorf(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()

	const gt = 100 * time.Millisecond
	a := newApp(log, cons, gt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	begin := time.Now()
	errCh := runApp(ctx, a)
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run must not wait for the consumer past gracefulTimeout")
	}
	require.GreaterOrEqual(t, time.Since(begin), gt)
}

func TestNewDialer_ByKind(t *testing.T) {
	sb, err := app.NewDialer(&config.Broker{Kind: config.BrokerServiceBus, Namespace: "ns.servicebus.windows.net"})
	require.NoError(t, err)
	require.IsType(t, &servicebus.Dialer{}, sb)

	kd, err := app.NewDialer(&config.Broker{Kind: config.BrokerKafka, KafkaBrokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	require.IsType(t, &kafka.Dialer{}, kd)

	md, err := app.NewDialer(&config.Broker{Kind: config.BrokerMemory})
	require.NoError(t, err)
	require.NotNil(t, md)

	_, err = app.NewDialer(&config.Broker{Kind: "rabbitmq"})
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestConnectBroker_Memory_Connected(t *testing.T) {
	conn, inv, err := app.ConnectBroker(context.Background(), &config.Broker{Kind: config.BrokerMemory}, nopLogger{})
	require.NoError(t, err)
	require.NotNil(t, inv)
	require.True(t, conn.Connected())
	require.NoError(t, conn.Close(context.Background()))
}
