//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log"
	"os"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
)

// defaultRedpandaImage - переопределяется через RELAY_TEST_REDPANDA_IMAGE.
const defaultRedpandaImage = "docker.redpanda.com/redpandadata/redpanda:v23.3.8"

var tcLogger = log.New(os.Stdout, "[tc] ", log.LstdFlags)

func shortID(c tc.Container) string {
	id := c.GetContainerID()
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// stage - хук, печатающий этап жизненного цикла контейнера.
func stage(l *log.Logger, name string) tc.ContainerHook {
	return func(_ context.Context, c tc.Container) error {
		l.Printf("%s id=%s", name, shortID(c))
		return nil
	}
}

func logHooks(l *log.Logger) tc.ContainerLifecycleHooks {
	return tc.ContainerLifecycleHooks{
		PreCreates: []tc.ContainerRequestHook{
			func(_ context.Context, req tc.ContainerRequest) error {
				l.Printf("creating image=%s", req.Image)
				return nil
			},
		},
		PostStarts:     []tc.ContainerHook{stage(l, "started")},
		PostReadies:    []tc.ContainerHook{stage(l, "ready")},
		PreTerminates:  []tc.ContainerHook{stage(l, "terminating")},
		PostTerminates: []tc.ContainerHook{stage(l, "terminated")},
	}
}

// KafkaEnv - запущенный Kafka-совместимый брокер (redpanda) для интеграционных тестов.
type KafkaEnv struct {
	Container *redpanda.Container
	Brokers   []string
	BaseTopic string // префикс топиков, см. NewQueue
}

// StartKafkaTC - поднимает redpanda; stop завершает контейнер.
func StartKafkaTC(ctx context.Context, baseTopic string) (*KafkaEnv, func(context.Context) error, error) {
	image := os.Getenv("RELAY_TEST_REDPANDA_IMAGE")
	if image == "" {
		image = defaultRedpandaImage
	}

	rp, err := redpanda.Run(ctx, image,
		tc.WithLifecycleHooks(logHooks(tcLogger)),
		redpanda.WithAutoCreateTopics(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("run redpanda: %w", err)
	}

	seed, err := rp.KafkaSeedBroker(ctx)
	if err != nil {
		_ = tc.TerminateContainer(rp)
		return nil, nil, fmt.Errorf("seed broker: %w", err)
	}

	stop := func(_ context.Context) error { return tc.TerminateContainer(rp) }
	return &KafkaEnv{Container: rp, Brokers: []string{seed}, BaseTopic: baseTopic}, stop, nil
}
