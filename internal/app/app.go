// Package app wires configuration into the long-lived components shared by
// the api, worker and attendctl binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/gateway"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/internal/vision"
)

// Objects is the object store surface the services use.
type Objects interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}

// OpenStore connects the configured relational backend and applies its schema.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("using sqlite store", "path", cfg.SQLitePath)
		return s, nil
	default:
		s, err := storage.NewPostgresStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		slog.Info("using postgres store", "host", cfg.Host, "db", cfg.Name)
		return s, nil
	}
}

// OpenObjects returns MinIO when an endpoint is configured, else a local directory.
func OpenObjects(ctx context.Context, cfg config.MinIOConfig) (Objects, error) {
	if cfg.Endpoint == "" {
		d, err := storage.NewDirStore(cfg.LocalDir)
		if err != nil {
			return nil, err
		}
		slog.Info("using local object store", "dir", cfg.LocalDir)
		return d, nil
	}
	m, err := storage.NewMinIOStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := m.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}
	return m, nil
}

// OpenSnapshots selects where trained models are persisted.
func OpenSnapshots(cfg config.RecognitionConfig, objects Objects) (recognition.SnapshotStore, error) {
	switch cfg.SnapshotBackend {
	case "minio":
		return recognition.NewObjectSnapshotStore(objects, "models"), nil
	default:
		fs, err := recognition.NewFileStore(cfg.SnapshotDir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
}

// TrainingLocker returns a Redis lock when an address is configured so that
// only one process trains at a time. The returned close func is never nil.
func TrainingLocker(ctx context.Context, cfg config.RedisConfig) (recognition.Locker, func(), error) {
	if cfg.Addr == "" {
		return recognition.NewLocalLocker(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return recognition.NewRedisLocker(client, cfg.LockKey, cfg.LockTTL), func() { client.Close() }, nil
}

func NewPreprocessor(cfg config.VisionConfig) *vision.Preprocessor {
	return vision.NewPreprocessor(cfg.FaceSize, cfg.BlurKernel)
}

func NewIntake(cfg config.VisionConfig) vision.Intake {
	return vision.Intake{MinSize: cfg.MinImageSize, MaxBytes: cfg.MaxImageBytes}
}

func NewLedger(cfg config.AttendanceConfig, store storage.Store, opts ...ledger.Option) (*ledger.Ledger, error) {
	sched, err := ledger.NewSchedule(cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]ledger.Option{ledger.WithHistoryLimit(cfg.HistoryLimit)}, opts...)
	return ledger.New(store, sched, opts...), nil
}

// NewTrainer builds a trainer over the stored corpus.
func NewTrainer(cfg *config.Config, store storage.Store, objects Objects, snapshots recognition.SnapshotStore,
	holder *recognition.Holder, locker recognition.Locker) *recognition.Trainer {
	return recognition.NewTrainer(
		recognition.StoredCorpus{Samples: store, Objects: objects},
		NewPreprocessor(cfg.Vision),
		snapshots,
		holder,
		recognition.WithLocker(locker),
		recognition.WithGrid(cfg.Recognition.GridX, cfg.Recognition.GridY),
	)
}

// InlineTraining runs each rebuild request in the background on trainer. It
// serves deployments without a queue; the trainer's lock serialises bursts.
// wait blocks until every started run has finished.
func InlineTraining(ctx context.Context, trainer *recognition.Trainer) (req gateway.TrainingFunc, wait func()) {
	var wg sync.WaitGroup
	req = func(_ context.Context, job models.TrainingJob) error {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := trainer.Train(ctx); err != nil {
				slog.Warn("inline training", "job_id", job.JobID, "reason", job.Reason, "error", err)
			}
		}()
		return nil
	}
	return req, wg.Wait
}

// JobClockSkew is how far the requesting host's clock may run ahead of the
// worker's before a job could be wrongly treated as covered.
const JobClockSkew = 5 * time.Second

// TrainingJobHandler rebuilds the model for a queued job and announces the
// result through publish. A job requested comfortably before the current
// model's corpus read is already covered and is skipped. An empty corpus is
// not retried.
func TrainingJobHandler(trainer *recognition.Trainer, holder *recognition.Holder,
	publish func(context.Context, models.ModelUpdated) error) func(context.Context, models.TrainingJob) error {
	return func(ctx context.Context, job models.TrainingJob) error {
		if cur, err := holder.Current(); err == nil && job.RequestedAt.Before(cur.TrainedAt.Add(-JobClockSkew)) {
			slog.Debug("training job already covered", "job_id", job.JobID, "model", cur.Version)
			return nil
		}

		m, err := trainer.Train(ctx)
		if errors.Is(err, recognition.ErrInsufficientTrainingData) {
			slog.Warn("training skipped, no samples", "job_id", job.JobID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("train for job %s: %w", job.JobID, err)
		}
		return publish(ctx, models.ModelUpdated{
			Version:   m.Version,
			Labels:    m.LabelCount(),
			Samples:   m.SampleCount(),
			TrainedAt: m.TrainedAt,
		})
	}
}
