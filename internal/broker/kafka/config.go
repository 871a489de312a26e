package kafka

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// Config - параметры подключения к Kafka. Очередь = топик, потребители - одна consumer group.
type Config struct {
	Brokers     []string
	GroupID     string
	StartOffset string // "first" | "last"
}

// ReaderConfig - настройки reader'а топика с ручным коммитом оффсетов.
func (c *Config) ReaderConfig(topic string) kafka.ReaderConfig {
	rc := kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          topic,
		CommitInterval: 0,
	}

	switch strings.ToLower(strings.TrimSpace(c.StartOffset)) {
	case "first":
		rc.StartOffset = kafka.FirstOffset
	default:
		rc.StartOffset = kafka.LastOffset
	}

	return rc
}
