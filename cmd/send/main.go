package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gunvolt24/sb_relay/config"
	"github.com/Gunvolt24/sb_relay/internal/app"
	"github.com/Gunvolt24/sb_relay/internal/broker"
	"github.com/Gunvolt24/sb_relay/pkg/logger"
	"github.com/Gunvolt24/sb_relay/pkg/metrics"
	"github.com/Gunvolt24/sb_relay/pkg/validate"
	"github.com/joho/godotenv"
)

// CLI для отправки сообщений в очередь через Producer.
// Каждый JSON-документ из файла (или stdin) отправляется отдельным сообщением.
func main() {
	inputPath := flag.String("in", "-", "path to input (.json or .jsonl), \"-\" for stdin")
	formatStr := flag.String("format", "auto", "input format: auto|json|jsonl")
	queue := flag.String("queue", "", "destination queue (default: RELAY_QUEUES_SOURCE)")
	correlationID := flag.String("correlation-id", "", "correlation id (only for a single message)")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Broker.Kind == config.BrokerMemory {
		fmt.Fprintln(os.Stderr, "memory broker lives inside the worker process; use servicebus or kafka")
		os.Exit(1)
	}

	target := *queue
	if target == "" {
		target = cfg.Queues.Source
	}

	payloads, summary, err := validate.PayloadsFromFile(*inputPath, validate.InputFormat(*formatStr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "input: %v (%s)\n", err, summary)
		os.Exit(1)
	}
	if *correlationID != "" && len(payloads) > 1 {
		fmt.Fprintf(os.Stderr, "-correlation-id needs a single message, got %d\n", len(payloads))
		os.Exit(1)
	}

	if err := run(cfg, target, *correlationID, *timeout, payloads); err != nil {
		fmt.Fprintf(os.Stderr, "send: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "sent %d message(s) to %s (%s)\n", len(payloads), target, summary)
}

func run(cfg config.Config, queue, correlationID string, timeout time.Duration, payloads [][]byte) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logg, cleanup, err := logger.NewZapLogger(cfg.Logger.IsProd)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	metrics.MustRegister()

	conn, inv, err := app.ConnectBroker(ctx, &cfg.Broker, logg)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := conn.Close(context.Background()); cErr != nil {
			logg.Warnf(ctx, "broker connection close error: %v", cErr)
		}
	}()

	producer := broker.NewProducer(inv, logg)
	for i, body := range payloads {
		if err := producer.Send(ctx, queue, body, correlationID); err != nil {
			return fmt.Errorf("message %d of %d: %w", i+1, len(payloads), err)
		}
	}
	return nil
}
