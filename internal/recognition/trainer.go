package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/vision"
)

// LabeledImage is one raw enrollment face crop.
type LabeledImage struct {
	Label int64
	Image *image.Gray
}

// SampleSource yields the entire enrolled corpus.
type SampleSource interface {
	LoadSamples(ctx context.Context) ([]LabeledImage, error)
}

// Build trains a new model from scratch over samples.
func Build(samples []LabeledImage, prep *vision.Preprocessor, gridX, gridY int, at time.Time) (*Model, error) {
	if len(samples) == 0 {
		return nil, ErrInsufficientTrainingData
	}
	m := &Model{
		Version:    NewVersion(at),
		TrainedAt:  at,
		FaceSize:   prep.Size,
		GridX:      gridX,
		GridY:      gridY,
		Labels:     make([]int64, 0, len(samples)),
		Histograms: make([][]float32, 0, len(samples)),
	}
	for i, s := range samples {
		canon, err := prep.Process(s.Image)
		if err != nil {
			return nil, fmt.Errorf("preprocess sample %d (label %d): %w", i, s.Label, err)
		}
		m.Labels = append(m.Labels, s.Label)
		m.Histograms = append(m.Histograms, spatialHistogram(canon, gridX, gridY))
	}
	return m, nil
}

// Trainer rebuilds the model over the whole corpus, persists it, then swaps it in.
type Trainer struct {
	source SampleSource
	prep   *vision.Preprocessor
	store  SnapshotStore
	holder *Holder
	lock   Locker
	gridX  int
	gridY  int
	now    func() time.Time
}

type TrainerOption func(*Trainer)

func WithLocker(l Locker) TrainerOption {
	return func(t *Trainer) { t.lock = l }
}

func WithGrid(x, y int) TrainerOption {
	return func(t *Trainer) {
		if x > 0 && y > 0 {
			t.gridX, t.gridY = x, y
		}
	}
}

func WithClock(now func() time.Time) TrainerOption {
	return func(t *Trainer) { t.now = now }
}

func NewTrainer(source SampleSource, prep *vision.Preprocessor, store SnapshotStore, holder *Holder, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		source: source,
		prep:   prep,
		store:  store,
		holder: holder,
		lock:   NewLocalLocker(),
		gridX:  8,
		gridY:  8,
		now:    time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Train runs one full rebuild. Concurrent calls queue on the lock. On any
// failure the previously current model stays in place.
func (t *Trainer) Train(ctx context.Context) (*Model, error) {
	unlock, err := t.lock.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for training lock: %w", err)
	}
	defer unlock()

	start := time.Now()
	m, err := t.train(ctx)
	observability.TrainingDuration.Observe(time.Since(start).Seconds())
	switch {
	case errors.Is(err, ErrInsufficientTrainingData):
		observability.TrainingRuns.WithLabelValues("no_data").Inc()
		return nil, err
	case err != nil:
		observability.TrainingRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	observability.TrainingRuns.WithLabelValues("ok").Inc()
	observability.ModelLabels.Set(float64(m.LabelCount()))
	slog.Info("model trained",
		"version", m.Version,
		"labels", m.LabelCount(),
		"samples", m.SampleCount(),
		"duration", time.Since(start))
	return m, nil
}

// train stamps the model with the time the corpus read began, so that
// anything committed after TrainedAt may be missing from it.
func (t *Trainer) train(ctx context.Context) (*Model, error) {
	readAt := t.now()
	samples, err := t.source.LoadSamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	m, err := Build(samples, t.prep, t.gridX, t.gridY, readAt)
	if err != nil {
		return nil, err
	}
	if err := t.store.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("persist model: %w", err)
	}
	t.holder.Swap(m)
	return m, nil
}

// Reload loads the persisted snapshot into the holder.
func Reload(ctx context.Context, store SnapshotStore, holder *Holder) (*Model, error) {
	m, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if holder.Swap(m) {
		observability.ModelLabels.Set(float64(m.LabelCount()))
	}
	return m, nil
}
