package broker_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Gunvolt24/sb_relay/internal/broker"
	"github.com/Gunvolt24/sb_relay/internal/broker/memory"
	"github.com/Gunvolt24/sb_relay/pkg/metrics"
)

// Отправка падает один раз, повтор успешен → ровно одно сообщение в очереди.
func TestProducer_SendFailsOnce_DeliveredExactlyOnce(t *testing.T) {
	b := memory.NewBroker(0)
	_, inv := connectMemory(t, b)
	p := broker.NewProducer(inv, nopLogger{})
	okBefore := testutil.ToFloat64(metrics.MessagesSent.WithLabelValues("nlp_queue", "ok"))

	b.FailNext(memory.OpSend, errors.New("link detached"))
	if err := p.Send(testCtx(t), "nlp_queue", []byte(`{"doc":1}`), "corr-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := b.Peek("nlp_queue")
	if len(msgs) != 1 {
		t.Fatalf("want exactly one delivered message, got %d", len(msgs))
	}
	if string(msgs[0].Body) != `{"doc":1}` || msgs[0].CorrelationID != "corr-1" {
		t.Fatalf("unexpected message: %+v", msgs[0])
	}
	if b.Dials() != 2 {
		t.Fatalf("want one reconnect, dials=%d", b.Dials())
	}
	if got := testutil.ToFloat64(metrics.MessagesSent.WithLabelValues("nlp_queue", "ok")); got != okBefore+1 {
		t.Fatalf("sent metric: want %v, got %v", okBefore+1, got)
	}
}

// Две неудачи подряд - ошибка ErrSend вызывающему, ничего не доставлено.
func TestProducer_SendFailsTwice_ReturnsSendError(t *testing.T) {
	b := memory.NewBroker(0)
	_, inv := connectMemory(t, b)
	p := broker.NewProducer(inv, nopLogger{})
	cause := errors.New("quota exceeded")

	b.FailNext(memory.OpSend, cause, cause)
	err := p.Send(testCtx(t), "q", []byte("x"), "")
	if !errors.Is(err, broker.ErrSend) || !errors.Is(err, cause) {
		t.Fatalf("want ErrSend wrapping cause, got %v", err)
	}
	if got := len(b.Peek("q")); got != 0 {
		t.Fatalf("nothing must be delivered, got %d", got)
	}
}

// Переподключение не удалось - ErrConnection.
func TestProducer_ReconnectFails_ReturnsConnectionError(t *testing.T) {
	b := memory.NewBroker(0)
	_, inv := connectMemory(t, b)
	p := broker.NewProducer(inv, nopLogger{})

	b.FailNext(memory.OpSend, errors.New("link detached"))
	b.FailNext(memory.OpDial, errors.New("dns"))

	if err := p.Send(testCtx(t), "q", []byte("x"), ""); !errors.Is(err, broker.ErrConnection) {
		t.Fatalf("want ErrConnection, got %v", err)
	}
}
