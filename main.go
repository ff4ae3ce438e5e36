package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/resoul/shortsgen/api"
	"github.com/resoul/shortsgen/config"
	"github.com/resoul/shortsgen/services"
	"github.com/sirupsen/logrus"
)

const (
	shutdownGrace = 30 * time.Second
	taskRetention = 24 * time.Hour
	pruneInterval = time.Hour
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	storage, err := services.NewStorageService(cfg.Storage)
	if err != nil {
		logrus.Fatalf("failed to init storage: %v", err)
	}

	metrics := services.NewMetrics(prometheus.DefaultRegisterer)
	tasks := services.NewTaskStore()
	runner := services.NewExecToolRunner(cfg.Tools)
	clips := services.NewClipProviders(cfg.Clips, metrics)
	notifier := services.NewNotifier(cfg.Webhook)

	processor := services.NewProcessor(runner, storage, clips, notifier, tasks, metrics, cfg.Clips)

	pool := services.NewWorkerPool(cfg.Worker, processor)
	pool.Start()

	var rabbit *services.RabbitMQService
	if cfg.RabbitMQ.URL != "" {
		rabbit, err = services.NewRabbitMQService(cfg.RabbitMQ, tasks, pool)
		if err != nil {
			logrus.Fatalf("failed to init RabbitMQ: %v", err)
		}
		go func() {
			if err := rabbit.Consume(); err != nil {
				logrus.WithError(err).Error("AMQP intake stopped")
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for range ticker.C {
			if removed := tasks.Prune(taskRetention); removed > 0 {
				logrus.WithField("removed", removed).Debug("Pruned finished tasks")
			}
		}
	}()

	server := api.NewServer(cfg.Server, pool, tasks)
	go func() {
		logrus.WithField("addr", cfg.Server.Addr()).Info("HTTP server listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutdown signal received, draining in-flight jobs")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown failed")
	}
	if rabbit != nil {
		rabbit.Close()
	}
	if err := pool.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("Worker pool shutdown incomplete")
	}

	logrus.Info("Shutdown complete")
}
