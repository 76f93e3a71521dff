package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/your-org/attendance/internal/app"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/queue"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/internal/storage"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "attendctl",
	Short: "Operate the attendance service from the command line",
	Long: `attendctl trains the face model, runs a live capture loop against a
webcam or network stream, enrolls identities and exports attendance reports.
It reads the same configuration file as the API and worker.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// runtime is the set of components a subcommand works with.
type runtime struct {
	cfg       *config.Config
	store     storage.Store
	objects   app.Objects
	snapshots recognition.SnapshotStore
	holder    *recognition.Holder
	producer  *queue.Producer
	closers   []func()
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	observability.SetupLogger(level, logFormat(cfg))

	rt := &runtime{cfg: cfg, holder: recognition.NewHolder()}
	if rt.store, err = app.OpenStore(ctx, cfg.Database); err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, rt.store.Close)

	if rt.objects, err = app.OpenObjects(ctx, cfg.MinIO); err != nil {
		rt.Close()
		return nil, err
	}
	if rt.snapshots, err = app.OpenSnapshots(cfg.Recognition, rt.objects); err != nil {
		rt.Close()
		return nil, err
	}
	if _, err := recognition.Reload(ctx, rt.snapshots, rt.holder); err != nil && !errors.Is(err, recognition.ErrModelNotTrained) {
		slog.Warn("load current model", "error", err)
	}

	if cfg.NATS.URL != "" {
		p, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, marks will not reach the live feed", "error", err)
		} else {
			rt.producer = p
			rt.closers = append(rt.closers, p.Close)
		}
	}
	return rt, nil
}

func (rt *runtime) ledger() (*ledger.Ledger, error) {
	var opts []ledger.Option
	if rt.producer != nil {
		opts = append(opts, ledger.WithNotifier(rt.producer))
	}
	l, err := app.NewLedger(rt.cfg.Attendance, rt.store, opts...)
	if err != nil {
		return nil, fmt.Errorf("attendance schedule: %w", err)
	}
	return l, nil
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func logFormat(cfg *config.Config) string {
	if cfg.Logging.Format == "" {
		return "text"
	}
	return cfg.Logging.Format
}
