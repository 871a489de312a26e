package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Gunvolt24/sb_relay/internal/broker/memory"
	"github.com/Gunvolt24/sb_relay/internal/domain"
	"github.com/Gunvolt24/sb_relay/internal/ports"
)

// dial - клиент + поток получения из очереди "q".
func dial(t *testing.T, b *memory.Broker) (context.Context, func(body string), func() *domain.Message, ports.BrokerClient) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	cl, err := b.Dialer().Dial(ctx)
	require.NoError(t, err)
	st, err := cl.Receive(ctx, "q")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	send := func(body string) {
		require.NoError(t, cl.Send(ctx, "q", &domain.OutgoingMessage{Body: []byte(body)}))
	}
	next := func() *domain.Message {
		msg, err := st.Next(ctx)
		require.NoError(t, err)
		return msg
	}
	return ctx, send, next, cl
}

func TestBroker_CompleteRemovesMessage(t *testing.T) {
	b := memory.NewBroker(time.Minute)
	ctx, send, next, cl := dial(t, b)

	send("hello")
	msg := next()
	require.Equal(t, "hello", string(msg.Body))
	require.Equal(t, uint32(1), msg.DeliveryCount)
	require.NotEmpty(t, msg.LockToken)
	require.Equal(t, 1, b.Locked("q"))

	require.NoError(t, cl.Complete(ctx, msg))
	require.Equal(t, 0, b.Locked("q"))
	require.Equal(t, 0, b.Ready("q"))
	require.Equal(t, [][]byte{[]byte("hello")}, b.Completed("q"))

	// Повторное разрешение - блокировка уже снята.
	require.ErrorIs(t, cl.Complete(ctx, msg), memory.ErrLockLost)
}

func TestBroker_AbandonRedeliversImmediately(t *testing.T) {
	b := memory.NewBroker(time.Minute)
	ctx, send, next, cl := dial(t, b)

	send("x")
	first := next()
	require.NoError(t, cl.Abandon(ctx, first))

	second := next()
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.DeliveryKey, second.DeliveryKey)
	require.Equal(t, uint32(2), second.DeliveryCount)
	require.NotEqual(t, first.LockToken, second.LockToken)
}

// Общий correlation id не делает сообщения одним: ID и ключ доставки назначает брокер.
func TestBroker_SharedCorrelationID_DistinctIdentity(t *testing.T) {
	b := memory.NewBroker(time.Minute)
	ctx, _, next, cl := dial(t, b)

	for _, body := range []string{`{"page":1}`, `{"page":2}`} {
		require.NoError(t, cl.Send(ctx, "q", &domain.OutgoingMessage{Body: []byte(body), CorrelationID: "doc-42"}))
	}

	first, second := next(), next()
	require.Equal(t, "doc-42", first.CorrelationID)
	require.Equal(t, "doc-42", second.CorrelationID)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, "q/1", first.DeliveryKey)
	require.Equal(t, "q/2", second.DeliveryKey)
}

func TestBroker_LockExpiresAndRenewExtends(t *testing.T) {
	b := memory.NewBroker(100 * time.Millisecond)
	ctx, send, next, cl := dial(t, b)

	send("a")
	msg := next()

	// Продлеваем до истечения - блокировка жива.
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, cl.RenewLock(ctx, msg))
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, b.Locked("q"))

	// Без продления блокировка истекает и сообщение снова доступно.
	time.Sleep(120 * time.Millisecond)
	require.ErrorIs(t, cl.RenewLock(ctx, msg), memory.ErrLockLost)
	again := next()
	require.Equal(t, msg.ID, again.ID)
}

func TestBroker_FaultInjection(t *testing.T) {
	b := memory.NewBroker(time.Minute)
	boom := errors.New("boom")
	b.FailNext(memory.OpDial, boom)

	_, err := b.Dialer().Dial(context.Background())
	require.ErrorIs(t, err, boom)
	_, err = b.Dialer().Dial(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, b.Dials())
}

func TestBroker_NextUnblocksOnCloseAndCancel(t *testing.T) {
	b := memory.NewBroker(time.Minute)
	cl, err := b.Dialer().Dial(context.Background())
	require.NoError(t, err)

	st, err := cl.Receive(context.Background(), "empty")
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = st.Close(context.Background())
	}()
	_, err = st.Next(context.Background())
	require.ErrorIs(t, err, memory.ErrStreamClosed)

	st2, err := cl.Receive(context.Background(), "empty")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = st2.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// Отменённый контекст: готовое сообщение остаётся в очереди.
func TestBroker_NextCancelled_LeavesReadyMessage(t *testing.T) {
	b := memory.NewBroker(time.Minute)
	b.Publish("q", []byte("pending"), "c1")

	cl, err := b.Dialer().Dial(context.Background())
	require.NoError(t, err)
	st, err := cl.Receive(context.Background(), "q")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = st.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, b.Ready("q"))
	require.Equal(t, 0, b.Locked("q"))
}

func TestBroker_ClosedClientRejectsOps(t *testing.T) {
	b := memory.NewBroker(time.Minute)
	cl, err := b.Dialer().Dial(context.Background())
	require.NoError(t, err)
	require.NoError(t, cl.Close(context.Background()))

	err = cl.Send(context.Background(), "q", &domain.OutgoingMessage{Body: []byte("x")})
	require.ErrorIs(t, err, memory.ErrClientClosed)
	require.Empty(t, b.Peek("q"))
}
