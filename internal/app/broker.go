package app

import (
	"context"
	"fmt"

	"github.com/Gunvolt24/sb_relay/config"
	"github.com/Gunvolt24/sb_relay/internal/broker"
	"github.com/Gunvolt24/sb_relay/internal/broker/kafka"
	"github.com/Gunvolt24/sb_relay/internal/broker/memory"
	"github.com/Gunvolt24/sb_relay/internal/broker/servicebus"
	"github.com/Gunvolt24/sb_relay/internal/ports"
)

// NewDialer - драйвер брокера по BROKER_KIND.
func NewDialer(cfg *config.Broker) (ports.Dialer, error) {
	switch cfg.Kind {
	case config.BrokerServiceBus:
		return servicebus.NewDialer(servicebus.Config{
			Namespace:        cfg.Namespace,
			ConnectionString: cfg.ConnectionString,
		}), nil
	case config.BrokerKafka:
		return kafka.NewDialer(kafka.Config{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     cfg.KafkaGroupID,
			StartOffset: cfg.KafkaStartOffset,
		}), nil
	case config.BrokerMemory:
		return memory.NewBroker(cfg.MemoryLockDuration).Dialer(), nil
	default:
		return nil, fmt.Errorf("%w: unknown broker kind %q", config.ErrInvalidConfig, cfg.Kind)
	}
}

// ConnectBroker - подключение и invoker поверх него.
// Неудачное первое подключение не фатально: invoker переподключится при первой операции.
func ConnectBroker(ctx context.Context, cfg *config.Broker, log ports.Logger) (*broker.Connection, *broker.Invoker, error) {
	dialer, err := NewDialer(cfg)
	if err != nil {
		return nil, nil, err
	}

	conn := broker.NewConnection(dialer, log)
	if err := conn.Connect(ctx); err != nil {
		log.Warnf(ctx, "initial broker connect failed kind=%s: %v", cfg.Kind, err)
	} else {
		log.Infof(ctx, "broker connected kind=%s", cfg.Kind)
	}

	return conn, broker.NewInvoker(conn, log), nil
}
