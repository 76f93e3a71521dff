package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/internal/vision"
)

type SampleLister interface {
	ListSamples(ctx context.Context) ([]models.Sample, error)
}

// StoredCorpus reads sample metadata from the identity store and pixels from
// the object store. Missing or undecodable samples are skipped; transport
// errors abort the run.
type StoredCorpus struct {
	Samples SampleLister
	Objects vision.ObjectGetter
}

func (c StoredCorpus) LoadSamples(ctx context.Context) ([]LabeledImage, error) {
	rows, err := c.Samples.ListSamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}

	intake := vision.Intake{}
	out := make([]LabeledImage, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := intake.Load(ctx, vision.ObjectSource{Store: c.Objects, Key: row.ObjectKey})
		if errors.Is(err, vision.ErrImageUnreadable) || errors.Is(err, storage.ErrObjectNotFound) {
			slog.Warn("skip unreadable sample", "sample_id", row.ID, "key", row.ObjectKey, "error", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load sample %s: %w", row.ID, err)
		}
		out = append(out, LabeledImage{Label: row.IdentityID, Image: img})
	}
	return out, nil
}
