package gateway

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"math"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/recognition"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/internal/vision"
)

var zone = time.FixedZone("UTC+2", 2*60*60)

func face(label int64, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, 160, 160))
	fx := 0.09 + 0.06*float64(label%5)
	fy := 0.04 * float64(label%3+1)
	fr := 0.05 + 0.03*float64(label%5)
	for y := 0; y < 160; y++ {
		for x := 0; x < 160; x++ {
			r := math.Hypot(float64(x-80), float64(y-80))
			v := 128 + 55*math.Sin(fx*float64(x)+fy*float64(y)) + 35*math.Cos(fr*r) + float64(rng.Intn(5)-2)
			img.Pix[y*img.Stride+x] = uint8(math.Max(0, math.Min(255, v)))
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type env struct {
	store  *storage.SQLiteStore
	holder *recognition.Holder
	prep   *vision.Preprocessor
	ledger *ledger.Ledger
	ids    map[string]int64
}

func newEnv(t *testing.T, keys ...string) *env {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "gw.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	e := &env{
		store:  store,
		holder: recognition.NewHolder(),
		prep:   vision.NewPreprocessor(200, 5),
		ids:    map[string]int64{},
	}
	for _, k := range keys {
		ident := &models.Identity{ExternalKey: k, Name: "Name " + k}
		require.NoError(t, store.CreateIdentity(context.Background(), ident))
		e.ids[k] = ident.ID
	}
	sched := ledger.Schedule{StartHour: 9, Grace: 15 * time.Minute, Location: zone}
	e.ledger = ledger.New(store, sched, ledger.WithClock(func() time.Time {
		return time.Date(2024, 5, 6, 9, 20, 0, 0, zone)
	}))
	return e
}

// train builds a model whose labels are the given identity ids.
func (e *env) train(t *testing.T, labels ...int64) {
	t.Helper()
	var samples []recognition.LabeledImage
	for _, l := range labels {
		for i := int64(0); i < 2; i++ {
			samples = append(samples, recognition.LabeledImage{Label: l, Image: face(l, l*10+i)})
		}
	}
	m, err := recognition.Build(samples, e.prep, 8, 8, time.Now())
	require.NoError(t, err)
	e.holder.Swap(m)
}

func (e *env) gateway(loc vision.Locator, policy recognition.Policy) *Gateway {
	return New(vision.Intake{MinSize: 100, MaxBytes: 5 << 20}, loc,
		recognition.NewRecognizer(e.holder, e.prep, policy), e.ledger)
}

func TestFacePathUntrainedModel(t *testing.T) {
	e := newEnv(t, "S1")
	g := e.gateway(vision.WholeImage{}, recognition.DefaultPolicy())

	_, err := g.RecognizeAndMark(context.Background(), vision.BytesSource(pngBytes(t, face(1, 1))), "desk")
	require.ErrorIs(t, err, recognition.ErrModelNotTrained)
}

func TestFacePathMarksRecognisedIdentity(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "S1", "S2")
	e.train(t, e.ids["S1"], e.ids["S2"])
	g := e.gateway(vision.WholeImage{}, recognition.DefaultPolicy())

	probe := vision.BytesSource(pngBytes(t, face(e.ids["S2"], 777)))
	out, err := g.RecognizeAndMark(ctx, probe, "front-desk")
	require.NoError(t, err)
	require.Equal(t, StatusMarked, out.Status)
	require.NotNil(t, out.Match)
	assert.Equal(t, e.ids["S2"], out.Match.Label)
	assert.NotEqual(t, recognition.TierReject, out.Match.Tier)
	assert.Equal(t, "S2", out.Identity.ExternalKey)
	assert.Equal(t, models.MethodFace, out.Record.Method)
	assert.Equal(t, "front-desk", out.Record.RecordedBy)
	assert.Equal(t, models.StatusLate, out.Record.Status)

	again, err := g.RecognizeAndMark(ctx, probe, "front-desk")
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyMarked, again.Status)
	assert.Equal(t, out.Record.ID, again.Record.ID)
}

func TestFacePathNoFace(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "S1")
	e.train(t, e.ids["S1"])
	g := e.gateway(vision.StaticLocator{}, recognition.DefaultPolicy())

	out, err := g.RecognizeAndMark(ctx, vision.BytesSource(pngBytes(t, face(1, 2))), "")
	require.NoError(t, err)
	assert.Equal(t, StatusNoFace, out.Status)
	assert.Nil(t, out.Match)

	n, err := e.store.CountMarked(ctx, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFacePathBelowThreshold(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "S1")
	e.train(t, e.ids["S1"])
	strict := recognition.Policy{HighBelow: 1e-9, MediumBelow: 2e-9, AcceptableBelow: 3e-9}
	g := e.gateway(vision.WholeImage{}, strict)

	out, err := g.RecognizeAndMark(ctx, vision.BytesSource(pngBytes(t, face(e.ids["S1"], 31337))), "")
	require.NoError(t, err)
	assert.Equal(t, StatusLowConfidence, out.Status)
	require.NotNil(t, out.Match)
	assert.False(t, out.Match.Accepted)
	assert.Nil(t, out.Record)
}

func TestFacePathLabelWithoutIdentity(t *testing.T) {
	e := newEnv(t, "S1")
	e.train(t, 999)
	g := e.gateway(vision.WholeImage{}, recognition.DefaultPolicy())

	out, err := g.RecognizeAndMark(context.Background(), vision.BytesSource(pngBytes(t, face(999, 5))), "")
	require.NoError(t, err)
	assert.Equal(t, StatusUnknownIdentity, out.Status)
}

func TestFacePathInvalidImage(t *testing.T) {
	e := newEnv(t)
	e.train(t, 1)
	g := e.gateway(vision.WholeImage{}, recognition.DefaultPolicy())

	out, err := g.RecognizeAndMark(context.Background(), vision.BytesSource(pngBytes(t, image.NewGray(image.Rect(0, 0, 40, 40)))), "")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidImage, out.Status)

	out, err = g.RecognizeAndMark(context.Background(), vision.BytesSource("garbage"), "")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidImage, out.Status)
}

func TestTokenPath(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "S1")
	g := e.gateway(vision.WholeImage{}, recognition.DefaultPolicy())

	out, err := g.MarkByClaim(ctx, []byte(`{"external_key":"S1","name":"Name S1"}`))
	require.NoError(t, err)
	require.Equal(t, StatusMarked, out.Status)
	assert.Equal(t, models.MethodToken, out.Record.Method)
	assert.Equal(t, SelfRecorder, out.Record.RecordedBy)

	out, err = g.MarkByClaim(ctx, []byte(`{"roll_no":"S1"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyMarked, out.Status)

	out, err = g.MarkByClaim(ctx, []byte(`{"external_key":"S404"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusUnknownIdentity, out.Status)

	out, err = g.MarkByClaim(ctx, []byte(`not-json`))
	require.NoError(t, err)
	assert.Equal(t, StatusMalformedClaim, out.Status)
}

func TestManualMark(t *testing.T) {
	e := newEnv(t, "S1")
	g := e.gateway(vision.WholeImage{}, recognition.DefaultPolicy())

	out, err := g.MarkManual(context.Background(), "S1", "registrar")
	require.NoError(t, err)
	require.Equal(t, StatusMarked, out.Status)
	assert.Equal(t, models.MethodManual, out.Record.Method)
	assert.Equal(t, "registrar", out.Record.RecordedBy)
}

type memObjects struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (m *memObjects) PutObject(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[key] = data
	return nil
}

func (m *memObjects) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.objs[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return d, nil
}

func TestEnrollmentFlow(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	objects := &memObjects{objs: map[string][]byte{}}
	var jobs []models.TrainingJob
	requester := TrainingFunc(func(_ context.Context, job models.TrainingJob) error {
		jobs = append(jobs, job)
		return nil
	})
	intake := vision.Intake{MinSize: 100, MaxBytes: 5 << 20}
	enr := NewEnroller(e.store, objects, intake, vision.StaticLocator{image.Rect(20, 20, 120, 140)}, requester)

	ident := &models.Identity{ExternalKey: " S77 ", Name: "Ada"}
	require.NoError(t, enr.Enroll(ctx, ident))
	assert.Equal(t, "S77", ident.ExternalKey)
	assert.NotZero(t, ident.ID)

	err := enr.Enroll(ctx, &models.Identity{ExternalKey: "S77", Name: "Other"})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
	require.ErrorIs(t, enr.Enroll(ctx, &models.Identity{ExternalKey: "S78"}), ErrInvalidIdentity)

	smp, err := enr.AddSample(ctx, "S77", vision.BytesSource(pngBytes(t, face(3, 3))))
	require.NoError(t, err)
	assert.Equal(t, 100, smp.Width)
	assert.Equal(t, 120, smp.Height)
	assert.Contains(t, objects.objs, smp.ObjectKey)

	_, err = enr.AddSample(ctx, "S77", vision.BytesSource(pngBytes(t, image.NewGray(image.Rect(0, 0, 64, 64)))))
	require.ErrorIs(t, err, vision.ErrImageTooSmall)
	_, err = enr.AddSample(ctx, "nobody", vision.BytesSource(pngBytes(t, face(3, 3))))
	require.ErrorIs(t, err, ledger.ErrUnknownIdentity)

	n, err := enr.SampleCount(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, enr.RequestRetrain(ctx, "samples added", ident.ID))
	require.Len(t, jobs, 1)
	assert.Equal(t, ident.ID, jobs[0].IdentityID)

	// The stored crop feeds straight back into training.
	corpus := recognition.StoredCorpus{Samples: e.store, Objects: objects}
	samples, err := corpus.LoadSamples(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, ident.ID, samples[0].Label)
}

func TestEnrollmentRejectsUploadWithoutFace(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "S1")
	objects := &memObjects{objs: map[string][]byte{}}
	enr := NewEnroller(e.store, objects, vision.Intake{MinSize: 100}, vision.StaticLocator{}, nil)

	_, err := enr.AddSample(ctx, "S1", vision.BytesSource(pngBytes(t, face(1, 1))))
	require.ErrorIs(t, err, vision.ErrNoFaceDetected)
	assert.Empty(t, objects.objs)
	require.NoError(t, enr.RequestRetrain(ctx, "noop", 0))
}

func (m *memObjects) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objs, key)
	return nil
}

type failingSamples struct {
	*storage.SQLiteStore
}

func (failingSamples) AddSample(context.Context, *models.Sample) error {
	return errors.New("disk full")
}

func TestEnrollmentRemovesObjectWhenRowFails(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "S1")
	objects := &memObjects{objs: map[string][]byte{}}
	enr := NewEnroller(failingSamples{e.store}, objects, vision.Intake{MinSize: 100}, vision.WholeImage{}, nil)

	_, err := enr.AddSample(ctx, "S1", vision.BytesSource(pngBytes(t, face(1, 1))))
	require.Error(t, err)
	assert.Empty(t, objects.objs)
}

func TestRecognizeCapture(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "S1")
	e.train(t, e.ids["S1"])
	g := e.gateway(vision.StaticLocator{}, recognition.DefaultPolicy())

	frame := face(e.ids["S1"], 4242)
	out, err := g.RecognizeCapture(ctx, vision.CaptureResult{Frame: frame, Face: frame.Bounds(), Frames: 3}, "kiosk")
	require.NoError(t, err)
	assert.Equal(t, StatusMarked, out.Status)
	assert.Equal(t, "kiosk", out.Record.RecordedBy)

	out, err = g.RecognizeCapture(ctx, vision.CaptureResult{Frames: 10}, "kiosk")
	require.NoError(t, err)
	assert.Equal(t, StatusNoFace, out.Status)
}
