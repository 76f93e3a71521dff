package app

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/internal/storage"
)

func TestLocalWiring(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLitePath = filepath.Join(dir, "att.db")
	cfg.MinIO.LocalDir = filepath.Join(dir, "objects")
	cfg.Recognition.SnapshotBackend = "minio"
	cfg.Attendance.Timezone = "UTC"

	store, err := OpenStore(ctx, cfg.Database)
	require.NoError(t, err)
	defer store.Close()
	_, isSQLite := store.(*storage.SQLiteStore)
	assert.True(t, isSQLite)

	objects, err := OpenObjects(ctx, cfg.MinIO)
	require.NoError(t, err)
	require.NoError(t, objects.Ping(ctx))

	snapshots, err := OpenSnapshots(cfg.Recognition, objects)
	require.NoError(t, err)
	_, err = snapshots.Load(ctx)
	require.ErrorIs(t, err, recognition.ErrModelNotTrained)

	locker, closeLock, err := TrainingLocker(ctx, cfg.Redis)
	require.NoError(t, err)
	defer closeLock()
	unlock, err := locker.Lock(ctx)
	require.NoError(t, err)
	unlock()

	l, err := NewLedger(cfg.Attendance, store)
	require.NoError(t, err)
	ident := &models.Identity{ExternalKey: "S1", Name: "Ada"}
	require.NoError(t, store.CreateIdentity(ctx, ident))
	nine := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	res, err := l.Mark(ctx, ledger.ByKey("S1"), models.MethodManual, "", nine)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, res.Record.Status)

	trainer := NewTrainer(cfg, store, objects, snapshots, recognition.NewHolder(), locker)
	_, err = trainer.Train(ctx)
	require.ErrorIs(t, err, recognition.ErrInsufficientTrainingData)
}

func TestFileSnapshotsByDefault(t *testing.T) {
	cfg := config.Default()
	cfg.Recognition.SnapshotDir = filepath.Join(t.TempDir(), "model")
	snapshots, err := OpenSnapshots(cfg.Recognition, nil)
	require.NoError(t, err)
	_, ok := snapshots.(*recognition.FileStore)
	assert.True(t, ok)
}

func TestInlineTrainingRunsInBackground(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Default()
	store, err := storage.OpenSQLite(filepath.Join(dir, "att.db"))
	require.NoError(t, err)
	defer store.Close()
	objects, err := storage.NewDirStore(filepath.Join(dir, "objects"))
	require.NoError(t, err)
	snapshots, err := recognition.NewFileStore(filepath.Join(dir, "model"))
	require.NoError(t, err)
	holder := recognition.NewHolder()

	trainer := NewTrainer(cfg, store, objects, snapshots, holder, recognition.NewLocalLocker())
	req, wait := InlineTraining(ctx, trainer)
	require.NoError(t, req.RequestTraining(ctx, models.TrainingJob{Reason: "test"}))
	wait()

	// No samples: the run fails and nothing is swapped in.
	_, err = holder.Current()
	assert.ErrorIs(t, err, recognition.ErrModelNotTrained)
}

func stripes(t *testing.T, period int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 120, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			if ((x+y)/period)%2 == 0 {
				img.Pix[y*img.Stride+x] = 200
			} else {
				img.Pix[y*img.Stride+x] = 40
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTrainingJobHandler(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Default()
	store, err := storage.OpenSQLite(filepath.Join(dir, "att.db"))
	require.NoError(t, err)
	defer store.Close()
	objects, err := storage.NewDirStore(filepath.Join(dir, "objects"))
	require.NoError(t, err)
	snapshots, err := recognition.NewFileStore(filepath.Join(dir, "model"))
	require.NoError(t, err)
	holder := recognition.NewHolder()
	trainer := NewTrainer(cfg, store, objects, snapshots, holder, recognition.NewLocalLocker())

	var published []models.ModelUpdated
	handle := TrainingJobHandler(trainer, holder, func(_ context.Context, evt models.ModelUpdated) error {
		published = append(published, evt)
		return nil
	})

	// Empty corpus is acknowledged without an announcement.
	require.NoError(t, handle(ctx, models.TrainingJob{JobID: uuid.New(), RequestedAt: time.Now()}))
	assert.Empty(t, published)

	ident := &models.Identity{ExternalKey: "S1", Name: "Ada"}
	require.NoError(t, store.CreateIdentity(ctx, ident))
	for i, period := range []int{6, 7} {
		smp := &models.Sample{ID: uuid.New(), IdentityID: ident.ID, Width: 120, Height: 120}
		smp.ObjectKey = storage.SampleKey(ident.ID, smp.ID.String())
		require.NoError(t, objects.PutObject(ctx, smp.ObjectKey, stripes(t, period), "image/png"), i)
		require.NoError(t, store.AddSample(ctx, smp))
	}

	requested := time.Now()
	require.NoError(t, handle(ctx, models.TrainingJob{JobID: uuid.New(), RequestedAt: requested}))
	require.Len(t, published, 1)
	assert.Equal(t, 1, published[0].Labels)
	assert.Equal(t, 2, published[0].Samples)

	// A job queued well before that model's corpus read is already covered.
	require.NoError(t, handle(ctx, models.TrainingJob{JobID: uuid.New(), RequestedAt: requested.Add(-time.Minute)}))
	assert.Len(t, published, 1)

	// The persisted snapshot is what a fresh process would load.
	fresh := recognition.NewHolder()
	m, err := recognition.Reload(ctx, snapshots, fresh)
	require.NoError(t, err)
	assert.Equal(t, published[0].Version, m.Version)
}

// enrollingCorpus commits one more sample and queues its retrain right after
// the trainer has read the corpus, the way a concurrent enrollment would.
type enrollingCorpus struct {
	recognition.StoredCorpus
	after func() models.TrainingJob

	mu    sync.Mutex
	loads int
	late  []models.TrainingJob
}

func (c *enrollingCorpus) LoadSamples(ctx context.Context) ([]recognition.LabeledImage, error) {
	samples, err := c.StoredCorpus.LoadSamples(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	if c.loads == 1 {
		c.late = append(c.late, c.after())
	}
	return samples, err
}

func TestTrainingJobHandlerRetrainsEnrollmentDuringCorpusRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Default()
	store, err := storage.OpenSQLite(filepath.Join(dir, "att.db"))
	require.NoError(t, err)
	defer store.Close()
	objects, err := storage.NewDirStore(filepath.Join(dir, "objects"))
	require.NoError(t, err)
	snapshots, err := recognition.NewFileStore(filepath.Join(dir, "model"))
	require.NoError(t, err)

	addSample := func(key string, period int) {
		ident, err := store.GetIdentityByKey(ctx, key)
		require.NoError(t, err)
		if ident == nil {
			ident = &models.Identity{ExternalKey: key, Name: key}
			require.NoError(t, store.CreateIdentity(ctx, ident))
		}
		smp := &models.Sample{ID: uuid.New(), IdentityID: ident.ID, Width: 120, Height: 120}
		smp.ObjectKey = storage.SampleKey(ident.ID, smp.ID.String())
		require.NoError(t, objects.PutObject(ctx, smp.ObjectKey, stripes(t, period), "image/png"))
		require.NoError(t, store.AddSample(ctx, smp))
	}
	addSample("S1", 6)

	src := &enrollingCorpus{
		StoredCorpus: recognition.StoredCorpus{Samples: store, Objects: objects},
		after: func() models.TrainingJob {
			addSample("S2", 9)
			return models.TrainingJob{JobID: uuid.New(), Reason: "sample added", RequestedAt: time.Now()}
		},
	}
	holder := recognition.NewHolder()
	trainer := recognition.NewTrainer(src, NewPreprocessor(cfg.Vision), snapshots, holder)

	var published []models.ModelUpdated
	handle := TrainingJobHandler(trainer, holder, func(_ context.Context, evt models.ModelUpdated) error {
		published = append(published, evt)
		return nil
	})

	require.NoError(t, handle(ctx, models.TrainingJob{JobID: uuid.New(), RequestedAt: time.Now()}))
	require.Len(t, published, 1)
	assert.Equal(t, 1, published[0].Labels)
	require.Len(t, src.late, 1)
	assert.False(t, published[0].TrainedAt.After(src.late[0].RequestedAt))

	require.NoError(t, handle(ctx, src.late[0]))
	assert.Equal(t, 2, src.loads)
	require.Len(t, published, 2)
	assert.Equal(t, 2, published[1].Labels)
}
