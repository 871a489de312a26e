package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Gunvolt24/sb_relay/config"
	"github.com/Gunvolt24/sb_relay/internal/broker"
	cachemem "github.com/Gunvolt24/sb_relay/internal/cache/memory"
	"github.com/Gunvolt24/sb_relay/internal/consumer"
	"github.com/Gunvolt24/sb_relay/internal/lease"
	"github.com/Gunvolt24/sb_relay/internal/ports"
	rest "github.com/Gunvolt24/sb_relay/internal/transport/http"
	"github.com/Gunvolt24/sb_relay/internal/usecase"
	"github.com/Gunvolt24/sb_relay/pkg/logger"
	"github.com/Gunvolt24/sb_relay/pkg/metrics"
	"github.com/Gunvolt24/sb_relay/pkg/telemetry"
	"github.com/gin-gonic/gin"
)

const (
	// closeTimeout - время на закрытие подключения к брокеру при остановке.
	closeTimeout = 10 * time.Second
	// defaultGracefulTimeout - ожидание остановки HTTP-сервера и консьюмера.
	defaultGracefulTimeout = 5 * time.Second
)

// App - собранное приложение и его внешние интерфейсы (HTTP, consumer).
type App struct {
	Logger          ports.Logger          // логгер
	HTTPServer      *http.Server          // HTTP-сервер (/healthz, /metrics)
	Consumer        ports.MessageConsumer // цикл получения сообщений
	gracefulTimeout time.Duration         // время ожидания завершения HTTP-сервера
}

// NewApp - gracefulTimeout <= 0 заменяется на 5s.
func NewApp(log ports.Logger, srv *http.Server, consumer ports.MessageConsumer, gracefulTimeout time.Duration) *App {
	if gracefulTimeout <= 0 {
		gracefulTimeout = defaultGracefulTimeout
	}
	return &App{Logger: log, HTTPServer: srv, Consumer: consumer, gracefulTimeout: gracefulTimeout}
}

// Cleanup - функция освобождения ресурсов.
type Cleanup func()

// applyGinMode - устанавливает режим Gin по строке;
// неизвестное значение → debug и предупреждение в лог.
func applyGinMode(ctx context.Context, mode string, log ports.Logger) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	case "", "debug":
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.DebugMode)
		log.Warnf(ctx, "unknown GIN_MODE=%q, fallback to debug", mode)
	}
}

// Bootstrap - собирает зависимости и возвращает приложение, функцию очистки и ошибку.
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, Cleanup, error) {
	// Логгер (dev/prod режим задаётся конфигурацией).
	logg, cleanupLogger, err := logger.NewZapLogger(cfg.Logger.IsProd)
	if err != nil {
		return nil, func() {}, err
	}

	// Регистрация метрик (Prometheus).
	metrics.MustRegister()

	// Подключение к брокеру.
	conn, inv, err := ConnectBroker(ctx, &cfg.Broker, logg)
	if err != nil {
		if cErr := cleanupLogger(); cErr != nil {
			logg.Warnf(ctx, "cleanup logger: %v", cErr)
		}
		return nil, func() {}, err
	}

	// Трейсинг OTEL (при включённой конфигурации); по умолчанию - no-op.
	shutdownTrace := func(context.Context) error { return nil }
	if cfg.Tracing.Enabled {
		setup, tErr := telemetry.SetupTracing(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio)
		if tErr != nil {
			logg.Warnf(ctx, "failed to setup tracing: %v", tErr)
		} else {
			logg.Infof(ctx, "otel tracing enabled service=%s endpoint=%s sample=%.2f",
				cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio)
			shutdownTrace = setup
		}
	}

	// Сборка зависимостей доменного слоя.
	producer := broker.NewProducer(inv, logg)
	relay := usecase.NewRelayService(producer, cfg.Queues.Destination, logg)
	leases := lease.NewManager(lease.Config{
		RenewInterval: cfg.Lease.RenewInterval,
		RenewTimeout:  cfg.Lease.RenewTimeout,
	}, inv.RenewLock, logg)

	var opts []consumer.Option
	if cfg.Dedup.Enabled {
		opts = append(opts, consumer.WithHandledCache(cachemem.NewHandledCache(cfg.Dedup.Capacity, cfg.Dedup.TTL)))
	}
	cons := consumer.NewConsumer(cfg.Queues.Source, inv, leases, relay.Handle, logg, opts...)

	// Режим Gin.
	applyGinMode(ctx, cfg.HTTP.GinMode, logg)

	// Имя сервиса для otelgin (только при включённом трейсинге).
	otelServiceName := ""
	if cfg.Tracing.Enabled {
		otelServiceName = cfg.Tracing.ServiceName
	}

	// Роутер и HTTP-сервер.
	httpHandler := rest.NewHandler(cons, leases, conn, logg)
	router := rest.NewRouter(httpHandler, otelServiceName)

	var handler http.Handler = router
	if cfg.HTTP.HandlerTimeout > 0 {
		handler = http.TimeoutHandler(router, cfg.HTTP.HandlerTimeout, "request timeout")
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	app := NewApp(logg, httpSrv, cons, cfg.HTTP.GracefulTimeout)

	logg.Infof(ctx, "relay configured source=%s destination=%s renew_interval=%s dedup=%t",
		cfg.Queues.Source, cfg.Queues.Destination, cfg.Lease.RenewInterval, cfg.Dedup.Enabled)

	// Очистка ресурсов (в обратном порядке).
	cleanup := func() {
		if terr := shutdownTrace(context.Background()); terr != nil {
			logg.Warnf(ctx, "shutdown tracing: %v", terr)
		}
		if err := cons.Close(); err != nil {
			logg.Warnf(ctx, "consumer close error: %v", err)
		}
		leases.StopAll()

		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := conn.Close(closeCtx); err != nil {
			logg.Warnf(ctx, "broker connection close error: %v", err)
		}
		cancel()

		if cerr := cleanupLogger(); cerr != nil {
			logg.Warnf(ctx, "cleanup logger: %v", cerr)
		}
	}

	return app, cleanup, nil
}

// Run - запускает HTTP-сервер и консьюмера; ждёт отмены контекста или ошибки и останавливает их.
// Возвращается только после выхода консьюмера (или по gracefulTimeout): сообщение, которое
// обрабатывается в момент остановки, успевает получить complete/abandon до закрытия подключения.
// Ошибка консьюмера (подключение не восстановлено) возвращается вызывающему.
func (a *App) Run(ctx context.Context) error {
	consumerDone := make(chan error, 1)
	httpErr := make(chan error, 1)

	// Запуск консьюмера.
	go func() {
		a.Logger.Infof(ctx, "consumer starting")
		consumerDone <- a.Consumer.Run(ctx)
	}()

	// Запуск HTTP-сервера.
	go func() {
		a.Logger.Infof(ctx, "http server starting (addr=%s)", a.HTTPServer.Addr)
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	// Ожидание сигнала остановки или фоновой ошибки.
	var runErr error
	consumerStopped := false
	select {
	case <-ctx.Done():
		a.Logger.Infof(ctx, "shutdown requested, starting graceful shutdown")
	case err := <-consumerDone:
		consumerStopped = true
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			a.Logger.Infof(ctx, "consumer stopped: %v", err)
		} else {
			a.Logger.Errorf(ctx, "consumer failed: %v", err)
			runErr = err
		}
	case err := <-httpErr:
		a.Logger.Errorf(ctx, "http server failed: %v", err)
		runErr = err
	}

	gt := a.gracefulTimeout
	if gt <= 0 {
		gt = defaultGracefulTimeout
	}

	// Корректная остановка HTTP-сервера.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gt)
	defer cancel()

	if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warnf(ctx, "http server shutdown failed: %v", err)
	} else {
		a.Logger.Infof(ctx, "http server stopped gracefully")
	}

	// Остановка консьюмера и ожидание текущего сообщения.
	if err := a.Consumer.Close(); err != nil {
		a.Logger.Warnf(ctx, "consumer close error: %v", err)
	}
	if !consumerStopped {
		timer := time.NewTimer(gt)
		defer timer.Stop()
		select {
		case <-consumerDone:
			a.Logger.Infof(ctx, "consumer stopped")
		case <-timer.C:
			a.Logger.Warnf(ctx, "consumer did not stop within %s", gt)
		}
	}

	a.Logger.Infof(ctx, "service stopped")
	return runErr
}
