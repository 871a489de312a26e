//go:build integration

package testutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// topicReadyTimeout - сколько ждём появления топика в метаданных.
const topicReadyTimeout = 10 * time.Second

// UniqueQueue - уникальные топик и группа на основе префикса, чтобы тесты не делили оффсеты.
func UniqueQueue(base string) (topic, group string) {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	topic = base + "-" + suffix
	return topic, topic + "-group"
}

// NewQueue - уникальный топик (с одной партицией), готовый к работе, и его группа.
func (e *KafkaEnv) NewQueue(ctx context.Context, name string) (topic, group string, err error) {
	topic, group = UniqueQueue(e.BaseTopic + "-" + name)
	if err := EnsureTopic(ctx, e.Brokers, topic, 1); err != nil {
		return "", "", err
	}
	return topic, group, nil
}

// EnsureTopic - создаёт топик через контроллер кластера и ждёт его готовности.
// Уже существующий топик ошибкой не считается.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions int) error {
	if len(brokers) == 0 {
		return errors.New("no brokers")
	}
	addr := bootstrapAddr(brokers[0])

	conn, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	ctrl, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	admin, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(ctrl.Host, strconv.Itoa(ctrl.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer admin.Close()

	err = admin.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}

	return waitTopicReady(ctx, addr, topic)
}

// bootstrapAddr - "PLAINTEXT://host:port" (так отдаёт testcontainers) → "host:port".
func bootstrapAddr(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "://"); i >= 0 {
		return raw[i+3:]
	}
	return raw
}

func waitTopicReady(ctx context.Context, addr, topic string) error {
	ctx, cancel := context.WithTimeout(ctx, topicReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for {
		c, err := kafka.DialContext(ctx, "tcp", addr)
		if err == nil {
			parts, perr := c.ReadPartitions(topic)
			_ = c.Close()
			if perr == nil && len(parts) > 0 {
				return nil
			}
			err = perr
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("topic %q not ready: %w", topic, errors.Join(ctx.Err(), lastErr))
		case <-ticker.C:
		}
	}
}
