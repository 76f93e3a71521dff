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

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/api"
	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/api/ws"
	"github.com/your-org/attendance/internal/app"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/gateway"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/queue"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/internal/vision"
	"github.com/your-org/attendance/internal/vision/cascade"
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

	slog.Info("starting attendance API service", "port", cfg.Server.Port)

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

	holder := recognition.NewHolder()
	if m, err := recognition.Reload(ctx, snapshots, holder); err != nil {
		slog.Warn("no model loaded, recognition unavailable until trained", "error", err)
	} else {
		slog.Info("model loaded", "version", m.Version, "labels", m.LabelCount())
	}

	var locator vision.Locator
	if cl, err := cascade.NewLocator(cfg.Vision); err != nil {
		slog.Warn("face cascade unavailable, uploads are treated as pre-cropped faces", "error", err)
		locator = vision.WholeImage{}
	} else {
		defer cl.Close()
		locator = cl
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	checks := map[string]handlers.Check{
		"store":   store.Ping,
		"objects": objects.Ping,
	}

	var (
		notifier  ledger.Notifier = hub
		requester gateway.TrainingRequester
		trainer   *recognition.Trainer
	)

	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
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

		instance := "api-" + uuid.NewString()[:8]
		err = consumer.ConsumeModelUpdates(ctx, instance+"-models", func(ctx context.Context, evt models.ModelUpdated) error {
			m, err := recognition.Reload(ctx, snapshots, holder)
			if err != nil {
				return fmt.Errorf("reload model %s: %w", evt.Version, err)
			}
			slog.Info("model reloaded", "announced", evt.Version, "current", m.Version)
			return nil
		})
		if err != nil {
			slog.Warn("start model update consumer", "error", err)
		}
		if err := consumer.ConsumeAttendance(ctx, instance+"-attendance", hub.AttendanceMarked); err != nil {
			slog.Warn("start attendance consumer", "error", err)
		}

		notifier = producer
		requester = producer
		checks["nats"] = func(context.Context) error { return producer.Ping() }
	} else {
		locker, closeLock, err := app.TrainingLocker(ctx, cfg.Redis)
		if err != nil {
			slog.Error("training lock", "error", err)
			os.Exit(1)
		}
		defer closeLock()

		trainer = app.NewTrainer(cfg, store, objects, snapshots, holder, locker)
		inline, wait := app.InlineTraining(ctx, trainer)
		defer wait()
		requester = inline
		slog.Info("nats not configured, training inline")
	}

	l, err := app.NewLedger(cfg.Attendance, store, ledger.WithNotifier(notifier))
	if err != nil {
		slog.Error("attendance schedule", "error", err)
		os.Exit(1)
	}

	intake := app.NewIntake(cfg.Vision)
	recognizer := recognition.NewRecognizer(holder, app.NewPreprocessor(cfg.Vision), recognition.NewPolicy(cfg.Recognition))

	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		Identities: store,
		Gateway:    gateway.New(intake, locator, recognizer, l),
		Enroller:   gateway.NewEnroller(store, objects, intake, locator, requester),
		Ledger:     l,
		Holder:     holder,
		Requester:  requester,
		Trainer:    trainer,
		Hub:        hub,
		Checks:     checks,
		StatsTTL:   cfg.Server.StatsCacheTTL,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()

	slog.Info("API server stopped")
}
