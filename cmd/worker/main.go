package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/vissharm/ecommerce-app-user-service/internal/config"
	"github.com/vissharm/ecommerce-app-user-service/internal/events"
	"github.com/vissharm/ecommerce-app-user-service/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	queue := cfg.EventsQueue
	if queue == "" {
		queue = events.DefaultQueue
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: 10,
			Queues:      map[string]int{queue: 1},
			Logger:      asynqLogger{logger.Slog()},
		},
	)

	mux := events.NewServeMux(events.LogNotifier{Logger: logger})
	if err := srv.Start(mux); err != nil {
		logger.Error(ctx, "start worker", "error", err)
		os.Exit(1)
	}
	logger.Info(ctx, "worker started", "queue", queue)

	<-ctx.Done()
	logger.Info(context.Background(), "worker stopping")
	srv.Shutdown()
}

// asynqLogger adapts slog to asynq.Logger.
type asynqLogger struct {
	l *slog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
