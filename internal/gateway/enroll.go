package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/internal/vision"
)

var ErrInvalidIdentity = errors.New("external key and name are required")

type EnrollStore interface {
	CreateIdentity(ctx context.Context, id *models.Identity) error
	GetIdentityByKey(ctx context.Context, externalKey string) (*models.Identity, error)
	AddSample(ctx context.Context, s *models.Sample) error
	CountSamples(ctx context.Context, identityID int64) (int, error)
}

type ObjectPutter interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

type objectDeleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// TrainingRequester schedules a model rebuild.
type TrainingRequester interface {
	RequestTraining(ctx context.Context, job models.TrainingJob) error
}

// TrainingFunc adapts a plain function to TrainingRequester.
type TrainingFunc func(ctx context.Context, job models.TrainingJob) error

func (f TrainingFunc) RequestTraining(ctx context.Context, job models.TrainingJob) error {
	return f(ctx, job)
}

// Enroller registers identities and their face samples.
type Enroller struct {
	store    EnrollStore
	objects  ObjectPutter
	intake   vision.Intake
	locator  vision.Locator
	training TrainingRequester
}

func NewEnroller(store EnrollStore, objects ObjectPutter, intake vision.Intake, locator vision.Locator, training TrainingRequester) *Enroller {
	return &Enroller{store: store, objects: objects, intake: intake, locator: locator, training: training}
}

// Enroll creates the identity. A taken external key yields storage.ErrDuplicateKey.
func (e *Enroller) Enroll(ctx context.Context, ident *models.Identity) error {
	ident.ExternalKey = strings.TrimSpace(ident.ExternalKey)
	ident.Name = strings.TrimSpace(ident.Name)
	if ident.ExternalKey == "" || ident.Name == "" {
		return ErrInvalidIdentity
	}
	if err := e.store.CreateIdentity(ctx, ident); err != nil {
		return err
	}
	slog.Info("identity enrolled", "identity_id", ident.ID, "external_key", ident.ExternalKey)
	return nil
}

// AddSample validates an upload, crops the largest face and stores it.
func (e *Enroller) AddSample(ctx context.Context, externalKey string, src vision.ImageSource) (*models.Sample, error) {
	ident, err := e.store.GetIdentityByKey(ctx, externalKey)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	if ident == nil {
		return nil, ledger.ErrUnknownIdentity
	}

	img, err := e.intake.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	face, _, err := vision.LocateFace(e.locator, img)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, face); err != nil {
		return nil, fmt.Errorf("encode face crop: %w", err)
	}

	smp := &models.Sample{
		ID:         uuid.New(),
		IdentityID: ident.ID,
		Width:      face.Bounds().Dx(),
		Height:     face.Bounds().Dy(),
	}
	smp.ObjectKey = storage.SampleKey(ident.ID, smp.ID.String())
	if err := e.objects.PutObject(ctx, smp.ObjectKey, buf.Bytes(), "image/png"); err != nil {
		return nil, fmt.Errorf("store sample: %w", err)
	}
	if err := e.store.AddSample(ctx, smp); err != nil {
		if d, ok := e.objects.(objectDeleter); ok {
			if derr := d.DeleteObject(ctx, smp.ObjectKey); derr != nil {
				slog.Warn("remove orphaned sample object", "key", smp.ObjectKey, "error", derr)
			}
		}
		return nil, err
	}
	return smp, nil
}

// RequestRetrain asks for a full rebuild after the corpus changed.
func (e *Enroller) RequestRetrain(ctx context.Context, reason string, identityID int64) error {
	if e.training == nil {
		return nil
	}
	job := models.TrainingJob{
		JobID:       uuid.New(),
		Reason:      reason,
		IdentityID:  identityID,
		RequestedAt: time.Now().UTC(),
	}
	if err := e.training.RequestTraining(ctx, job); err != nil {
		return fmt.Errorf("request training: %w", err)
	}
	return nil
}

func (e *Enroller) SampleCount(ctx context.Context, identityID int64) (int, error) {
	return e.store.CountSamples(ctx, identityID)
}
