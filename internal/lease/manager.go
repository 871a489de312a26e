// Package lease - фоновое продление блокировок сообщений, пока их обрабатывает handler.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/Gunvolt24/sb_relay/internal/domain"
	"github.com/Gunvolt24/sb_relay/internal/ports"
	"github.com/Gunvolt24/sb_relay/pkg/metrics"
)

const (
	// DefaultRenewInterval - должен быть строго меньше времени жизни блокировки у брокера (5 минут).
	DefaultRenewInterval = 4 * time.Minute
	// DefaultRenewTimeout - ограничение одного вызова продления.
	DefaultRenewTimeout = 30 * time.Second
)

// Renewer - продление блокировки одного сообщения (в приложении это Invoker.RenewLock).
type Renewer func(ctx context.Context, msg *domain.Message) error

// Config - параметры продления. Нулевые значения заменяются значениями по умолчанию.
type Config struct {
	RenewInterval time.Duration
	RenewTimeout  time.Duration
}

// Manager - таблица активных аренд: ID сообщения → задача продления.
// Мьютекс таблицы никогда не держится во время вызова Renewer.
type Manager struct {
	renew    Renewer
	log      ports.Logger
	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	leases map[string]*lease
}

// lease - одна аренда. Свой мьютекс: аренды не мешают друг другу.
type lease struct {
	msg    *domain.Message
	ctx    context.Context // отменяется при остановке, прерывая текущее продление
	cancel context.CancelFunc

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func NewManager(cfg Config, renew Renewer, log ports.Logger) *Manager {
	interval := cfg.RenewInterval
	if interval <= 0 {
		interval = DefaultRenewInterval
	}
	timeout := cfg.RenewTimeout
	if timeout <= 0 {
		timeout = DefaultRenewTimeout
	}
	return &Manager{
		renew:    renew,
		log:      log,
		interval: interval,
		timeout:  timeout,
		leases:   make(map[string]*lease),
	}
}

// Start - начать продление блокировки msg: первое продление сразу (асинхронно),
// далее каждые RenewInterval. Для уже активного ID ничего не делает и возвращает started=false.
// Возвращённая stop идемпотентна; для started=false это no-op.
func (m *Manager) Start(ctx context.Context, msg *domain.Message) (stop func(), started bool) {
	// Значения контекста (message_id, trace) нужны для логов, отмена - нет:
	// аренда живёт до явной остановки.
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &lease{msg: msg, ctx: lctx, cancel: cancel}

	m.mu.Lock()
	if _, ok := m.leases[msg.ID]; ok {
		m.mu.Unlock()
		cancel()
		return func() {}, false
	}
	m.leases[msg.ID] = l
	metrics.ActiveLeases.Set(float64(len(m.leases)))
	m.mu.Unlock()

	l.mu.Lock()
	l.timer = time.AfterFunc(0, func() { m.tick(l) })
	l.mu.Unlock()

	return func() { m.stop(l) }, true
}

// Stop - остановить аренду по ID. Отсутствующий ID - no-op.
func (m *Manager) Stop(messageID string) {
	m.mu.Lock()
	l, ok := m.leases[messageID]
	m.mu.Unlock()

	if ok {
		m.stop(l)
	}
}

// Active - количество активных аренд.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leases)
}

// StopAll - остановить все аренды (при завершении приложения).
func (m *Manager) StopAll() {
	m.mu.Lock()
	all := make([]*lease, 0, len(m.leases))
	for _, l := range m.leases {
		all = append(all, l)
	}
	m.mu.Unlock()

	for _, l := range all {
		m.stop(l)
	}
}

func (m *Manager) stop(l *lease) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	if l.timer != nil {
		l.timer.Stop()
	}
	l.mu.Unlock()

	l.cancel()

	m.mu.Lock()
	// под тем же ID может уже жить новая аренда (повторная доставка)
	if cur, ok := m.leases[l.msg.ID]; ok && cur == l {
		delete(m.leases, l.msg.ID)
	}
	metrics.ActiveLeases.Set(float64(len(m.leases)))
	m.mu.Unlock()
}

// tick - одно продление. Таймер перевзводится и после ошибки; после остановки тик ничего не делает.
func (m *Manager) tick(l *lease) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	rctx, cancel := context.WithTimeout(l.ctx, m.timeout)
	err := m.renew(rctx, l.msg)
	cancel()

	switch {
	case l.ctx.Err() != nil:
		// остановлена во время продления
		return
	case err != nil:
		metrics.LockRenewals.WithLabelValues("error").Inc()
		m.log.Warnf(l.ctx, "lock renewal failed id=%s: %v (next attempt in %s)", l.msg.ID, err, m.interval)
	default:
		metrics.LockRenewals.WithLabelValues("ok").Inc()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.timer = time.AfterFunc(m.interval, func() { m.tick(l) })
}
