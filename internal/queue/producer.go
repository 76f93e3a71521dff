package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/attendance/internal/models"
)

const (
	TrainingStreamName   = "TRAINING"
	TrainingSubject      = "training.jobs"
	ModelsStreamName     = "MODELS"
	ModelUpdatedSubject  = "model.updated"
	AttendanceStreamName = "ATTENDANCE"
	AttendanceSubject    = "attendance.marked"
)

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

// streamConfigs lists every stream the services rely on.
func streamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        TrainingStreamName,
			Subjects:    []string{TrainingSubject},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     10000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  time.Minute,
			Description: "Model rebuild requests",
		},
		{
			Name:        ModelsStreamName,
			Subjects:    []string{ModelUpdatedSubject},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      time.Hour,
			MaxMsgs:     1000,
			Storage:     jetstream.FileStorage,
			Description: "New model snapshot announcements",
		},
		{
			Name:        AttendanceStreamName,
			Subjects:    []string{AttendanceSubject},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Description: "Created attendance records",
		},
	}
}

// Producer publishes training jobs, model announcements and attendance events.
// It satisfies gateway.TrainingRequester and ledger.Notifier.
type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := streamConfigs()

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

func (p *Producer) publish(ctx context.Context, subject string, v any, opts ...jetstream.PublishOpt) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload, opts...); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// RequestTraining enqueues a rebuild. The job id doubles as the dedup id.
func (p *Producer) RequestTraining(ctx context.Context, job models.TrainingJob) error {
	return p.publish(ctx, TrainingSubject, job, jetstream.WithMsgID(job.JobID.String()))
}

func (p *Producer) PublishModelUpdated(ctx context.Context, evt models.ModelUpdated) error {
	return p.publish(ctx, ModelUpdatedSubject, evt, jetstream.WithMsgID(evt.Version))
}

// AttendanceMarked publishes a created record to the live feed.
func (p *Producer) AttendanceMarked(ctx context.Context, evt models.AttendanceMarked) error {
	return p.publish(ctx, AttendanceSubject, evt, jetstream.WithMsgID(evt.EventID.String()))
}

// PendingTrainingJobs returns the number of queued rebuild requests.
func (p *Producer) PendingTrainingJobs(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, TrainingStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
