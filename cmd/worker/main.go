package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gunvolt24/sb_relay/config"
	"github.com/Gunvolt24/sb_relay/internal/app"
	"github.com/joho/godotenv"
)

// Воркер: получает сообщения из исходной очереди и пересылает их в очередь назначения.
func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := app.Bootstrap(ctx, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}

	runErr := a.Run(ctx)
	cleanup()

	// Подключение к брокеру не восстановилось - перезапуск отдаём оркестратору.
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "worker stopped: %v\n", runErr)
		os.Exit(1)
	}
}
