package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attendance/internal/app"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/queue"
	"github.com/your-org/attendance/internal/recognition"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.NATS.URL == "" {
		slog.Error("training worker requires nats.url")
		os.Exit(1)
	}

	slog.Info("starting attendance training worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := app.OpenStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	objects, err := app.OpenObjects(ctx, cfg.MinIO)
	if err != nil {
		slog.Error("open object store", "error", err)
		os.Exit(1)
	}

	snapshots, err := app.OpenSnapshots(cfg.Recognition, objects)
	if err != nil {
		slog.Error("open snapshot store", "error", err)
		os.Exit(1)
	}

	locker, closeLock, err := app.TrainingLocker(ctx, cfg.Redis)
	if err != nil {
		slog.Error("training lock", "error", err)
		os.Exit(1)
	}
	defer closeLock()

	holder := recognition.NewHolder()
	if _, err := recognition.Reload(ctx, snapshots, holder); err != nil && !errors.Is(err, recognition.ErrModelNotTrained) {
		slog.Warn("load current model", "error", err)
	}
	trainer := app.NewTrainer(cfg, store, objects, snapshots, holder, locker)

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeTrainingJobs(ctx, "training-workers",
		app.TrainingJobHandler(trainer, holder, producer.PublishModelUpdated))
	if err != nil {
		slog.Error("start training consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		slog.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.PendingTrainingJobs(ctx)
				if err == nil {
					observability.TrainingQueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	slog.Info("worker stopped")
}
