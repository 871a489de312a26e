package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix - префикс переменных окружения по умолчанию (RELAY_...).
const Prefix = "RELAY"

// Поддерживаемые драйверы брокера.
const (
	BrokerServiceBus = "servicebus"
	BrokerKafka      = "kafka"
	BrokerMemory     = "memory"
)

// ErrInvalidConfig - конфигурация загружена, но непригодна для запуска.
var ErrInvalidConfig = errors.New("invalid config")

type HTTP struct {
	Addr              string        `default:":8080" envconfig:"ADDR"`
	GinMode           string        `default:"debug" envconfig:"GIN_MODE"`
	ReadTimeout       time.Duration `default:"10s" envconfig:"READ_TIMEOUT"`
	WriteTimeout      time.Duration `default:"10s" envconfig:"WRITE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `default:"5s" envconfig:"READ_HEADER_TIMEOUT"`
	IdleTimeout       time.Duration `default:"60s" envconfig:"IDLE_TIMEOUT"`
	HandlerTimeout    time.Duration `default:"3s" envconfig:"HANDLER_TIMEOUT"`
	GracefulTimeout   time.Duration `default:"5s" envconfig:"GRACEFUL_TIMEOUT"`
}

type Tracing struct {
	Enabled     bool    `default:"false" envconfig:"OTEL_ENABLED"`
	ServiceName string  `default:"sb-relay" envconfig:"OTEL_SERVICE_NAME"`
	Endpoint    string  `default:"jaeger:4318" envconfig:"OTEL_ENDPOINT"`
	SampleRatio float64 `default:"1" envconfig:"OTEL_SAMPLE_RATIO"`
}

// Broker - выбор драйвера и его параметры.
// Для Service Bus: если задан ConnectionString, он используется вместо учётных данных окружения.
type Broker struct {
	Kind               string        `default:"servicebus" envconfig:"KIND"`
	Namespace          string        `default:"centauri-message-broker.servicebus.windows.net" envconfig:"NAMESPACE"`
	ConnectionString   string        `envconfig:"CONNECTION_STRING"`
	KafkaBrokers       []string      `default:"kafka:9092" envconfig:"KAFKA_BROKERS"`
	KafkaGroupID       string        `default:"relay" envconfig:"KAFKA_GROUP_ID"`
	KafkaStartOffset   string        `default:"last" envconfig:"KAFKA_START_OFFSET"`
	MemoryLockDuration time.Duration `default:"5m" envconfig:"MEMORY_LOCK_DURATION"`
}

type Queues struct {
	Source      string `default:"ocr_queue" envconfig:"SOURCE"`
	Destination string `default:"nlp_queue" envconfig:"DESTINATION"`
}

// Lease - продление блокировок. Интервал должен быть меньше времени блокировки у брокера.
type Lease struct {
	RenewInterval time.Duration `default:"4m" envconfig:"RENEW_INTERVAL"`
	RenewTimeout  time.Duration `default:"30s" envconfig:"RENEW_TIMEOUT"`
}

// Dedup - кэш недавно обработанных сообщений.
type Dedup struct {
	Enabled  bool          `default:"true" envconfig:"ENABLED"`
	Capacity int           `default:"1000" envconfig:"CAPACITY"`
	TTL      time.Duration `default:"10m" envconfig:"TTL"`
}

type Logger struct {
	IsProd bool `default:"false" envconfig:"IS_PROD"`
}

type Config struct {
	HTTP    HTTP
	Tracing Tracing
	Broker  Broker
	Queues  Queues
	Lease   Lease
	Dedup   Dedup
	Logger  Logger
}

// Load - загрузка с префиксом RELAY.
func Load() (Config, error) {
	return LoadWithPrefix(Prefix)
}

// LoadWithPrefix - загрузка из окружения с заданным префиксом и проверка значений.
func LoadWithPrefix(prefix string) (Config, error) {
	var c Config

	if err := envconfig.Process(prefix, &c); err != nil {
		return Config{}, err
	}
	c.Broker.Kind = strings.ToLower(strings.TrimSpace(c.Broker.Kind))

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate - проверка согласованности значений.
func (c *Config) Validate() error {
	switch c.Broker.Kind {
	case BrokerServiceBus:
		if c.Broker.Namespace == "" && c.Broker.ConnectionString == "" {
			return fmt.Errorf("%w: servicebus needs NAMESPACE or CONNECTION_STRING", ErrInvalidConfig)
		}
	case BrokerKafka:
		if len(c.Broker.KafkaBrokers) == 0 {
			return fmt.Errorf("%w: kafka needs KAFKA_BROKERS", ErrInvalidConfig)
		}
	case BrokerMemory:
		if c.Lease.RenewInterval >= c.Broker.MemoryLockDuration {
			return fmt.Errorf("%w: renew interval %s must be shorter than lock duration %s",
				ErrInvalidConfig, c.Lease.RenewInterval, c.Broker.MemoryLockDuration)
		}
	default:
		return fmt.Errorf("%w: unknown broker kind %q", ErrInvalidConfig, c.Broker.Kind)
	}

	if c.Queues.Source == "" || c.Queues.Destination == "" {
		return fmt.Errorf("%w: source and destination queues are required", ErrInvalidConfig)
	}
	if c.Lease.RenewInterval <= 0 {
		return fmt.Errorf("%w: renew interval must be positive", ErrInvalidConfig)
	}
	return nil
}
