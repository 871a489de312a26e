package lease

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gunvolt24/sb_relay/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Infof(context.Context, string, ...any)  {}
func (nopLogger) Warnf(context.Context, string, ...any)  {}
func (nopLogger) Errorf(context.Context, string, ...any) {}

// countingRenewer - считает вызовы и возвращает err.
type countingRenewer struct {
	calls atomic.Int32
	err   error
}

func (r *countingRenewer) renew(context.Context, *domain.Message) error {
	r.calls.Add(1)
	return r.err
}

func newTestManager(interval time.Duration, renew Renewer) *Manager {
	return NewManager(Config{RenewInterval: interval, RenewTimeout: time.Second}, renew, nopLogger{})
}

// waitFor ждёт выполнения условия не дольше d.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", d)
}

// Первое продление сразу, дальше по интервалу; после stop тики прекращаются.
func TestStart_RenewsImmediatelyThenEveryInterval(t *testing.T) {
	r := &countingRenewer{}
	m := newTestManager(30*time.Millisecond, r.renew)

	stop, started := m.Start(context.Background(), &domain.Message{ID: "m1"})
	if !started {
		t.Fatal("want started=true")
	}

	waitFor(t, 20*time.Millisecond, func() bool { return r.calls.Load() >= 1 })
	waitFor(t, 200*time.Millisecond, func() bool { return r.calls.Load() >= 3 })

	stop()
	if m.Active() != 0 {
		t.Fatalf("want 0 active leases, got %d", m.Active())
	}

	after := r.calls.Load()
	time.Sleep(100 * time.Millisecond)
	if got := r.calls.Load(); got != after {
		t.Fatalf("renewals continued after stop: %d -> %d", after, got)
	}
}

// Ошибка продления не останавливает тики.
func TestRenewFailure_KeepsTicking(t *testing.T) {
	r := &countingRenewer{err: errors.New("lock lost")}
	m := newTestManager(20*time.Millisecond, r.renew)

	stop, _ := m.Start(context.Background(), &domain.Message{ID: "m1"})
	defer stop()

	waitFor(t, 300*time.Millisecond, func() bool { return r.calls.Load() >= 4 })
	if m.Active() != 1 {
		t.Fatalf("lease must stay active after failures, got %d", m.Active())
	}
}

// Параллельные Start с одним ID создают ровно одну задачу.
func TestStart_SameIDConcurrently_SingleTask(t *testing.T) {
	r := &countingRenewer{}
	m := newTestManager(time.Hour, r.renew)

	const n = 16
	var (
		wg      sync.WaitGroup
		started atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := m.Start(context.Background(), &domain.Message{ID: "dup"}); ok {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	if started.Load() != 1 {
		t.Fatalf("want exactly one started lease, got %d", started.Load())
	}
	if m.Active() != 1 {
		t.Fatalf("want 1 active lease, got %d", m.Active())
	}

	// только одно немедленное продление: интервал час, второго тика нет
	waitFor(t, 100*time.Millisecond, func() bool { return r.calls.Load() >= 1 })
	time.Sleep(30 * time.Millisecond)
	if got := r.calls.Load(); got != 1 {
		t.Fatalf("want 1 renewal, got %d", got)
	}

	m.Stop("dup")
}

// stop от повторного Start не трогает уже активную аренду.
func TestStart_DuplicateStopIsNoop(t *testing.T) {
	m := newTestManager(time.Hour, func(context.Context, *domain.Message) error { return nil })

	stop1, ok1 := m.Start(context.Background(), &domain.Message{ID: "a"})
	stop2, ok2 := m.Start(context.Background(), &domain.Message{ID: "a"})
	if !ok1 || ok2 {
		t.Fatalf("want started true/false, got %v/%v", ok1, ok2)
	}

	stop2()
	if m.Active() != 1 {
		t.Fatalf("duplicate stop must not end the lease, active=%d", m.Active())
	}

	stop1()
	stop1()
	if m.Active() != 0 {
		t.Fatalf("want 0 active, got %d", m.Active())
	}
}

func TestStop_UnknownID_NoOp(t *testing.T) {
	m := newTestManager(time.Hour, func(context.Context, *domain.Message) error { return nil })
	m.Stop("missing")
	if m.Active() != 0 {
		t.Fatalf("want 0 active, got %d", m.Active())
	}
}

// Остановка отменяет контекст продления, которое сейчас выполняется.
func TestStop_CancelsInFlightRenewal(t *testing.T) {
	entered := make(chan struct{})
	result := make(chan error, 1)
	renew := func(ctx context.Context, _ *domain.Message) error {
		close(entered)
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	}
	m := newTestManager(time.Hour, renew)

	stop, _ := m.Start(context.Background(), &domain.Message{ID: "slow"})
	<-entered
	stop()

	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight renewal was not cancelled")
	}
}

// Тик, сработавший после остановки, ничего не делает.
func TestTickAfterStop_NoOp(t *testing.T) {
	r := &countingRenewer{}
	m := newTestManager(time.Hour, r.renew)

	stop, _ := m.Start(context.Background(), &domain.Message{ID: "m1"})
	waitFor(t, 100*time.Millisecond, func() bool { return r.calls.Load() == 1 })

	m.mu.Lock()
	l := m.leases["m1"]
	m.mu.Unlock()

	stop()
	m.tick(l)

	if got := r.calls.Load(); got != 1 {
		t.Fatalf("stale tick must not renew, calls=%d", got)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil && l.timer.Stop() {
		t.Fatal("stale tick must not re-arm the timer")
	}
}

// Аренды независимы: остановка одной не влияет на другую.
func TestLeases_Independent(t *testing.T) {
	var a, b atomic.Int32
	renew := func(_ context.Context, msg *domain.Message) error {
		if msg.ID == "a" {
			a.Add(1)
		} else {
			b.Add(1)
		}
		return nil
	}
	m := newTestManager(20*time.Millisecond, renew)

	stopA, _ := m.Start(context.Background(), &domain.Message{ID: "a"})
	stopB, _ := m.Start(context.Background(), &domain.Message{ID: "b"})
	defer stopB()

	waitFor(t, 100*time.Millisecond, func() bool { return a.Load() >= 1 && b.Load() >= 1 })
	stopA()
	afterA := a.Load()

	waitFor(t, 300*time.Millisecond, func() bool { return b.Load() >= 4 })
	if a.Load() != afterA {
		t.Fatalf("stopped lease kept renewing: %d -> %d", afterA, a.Load())
	}
	if m.Active() != 1 {
		t.Fatalf("want 1 active, got %d", m.Active())
	}
}

func TestStopAll(t *testing.T) {
	m := newTestManager(time.Hour, func(context.Context, *domain.Message) error { return nil })
	m.Start(context.Background(), &domain.Message{ID: "a"})
	m.Start(context.Background(), &domain.Message{ID: "b"})

	m.StopAll()
	if m.Active() != 0 {
		t.Fatalf("want 0 active, got %d", m.Active())
	}
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{}, nil, nopLogger{})
	if m.interval != DefaultRenewInterval || m.timeout != DefaultRenewTimeout {
		t.Fatalf("defaults not applied: %s %s", m.interval, m.timeout)
	}
}
