package recognition

import (
	"fmt"
	"image"
	"math"
	"time"
)

// Model is an immutable trained snapshot: one spatial LBP histogram per
// enrollment sample, tagged with the identity label it came from.
type Model struct {
	Version    string
	TrainedAt  time.Time
	FaceSize   int
	GridX      int
	GridY      int
	Labels     []int64
	Histograms [][]float32
}

// NewVersion derives a sortable version string from the build time.
func NewVersion(t time.Time) string {
	return t.UTC().Format("20060102T150405.000000000Z")
}

// LabelCount returns the number of distinct identities in the model.
func (m *Model) LabelCount() int {
	if m == nil {
		return 0
	}
	seen := make(map[int64]struct{}, len(m.Labels))
	for _, l := range m.Labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

func (m *Model) SampleCount() int {
	if m == nil {
		return 0
	}
	return len(m.Labels)
}

// Match returns the label of the nearest sample histogram and its distance.
// probe must already be preprocessed.
func (m *Model) Match(probe *image.Gray) (int64, float64, error) {
	if m.SampleCount() == 0 {
		return 0, 0, ErrModelNotTrained
	}
	if b := probe.Bounds(); b.Dx() != m.FaceSize || b.Dy() != m.FaceSize {
		return 0, 0, fmt.Errorf("probe is %dx%d, model expects %dx%d", b.Dx(), b.Dy(), m.FaceSize, m.FaceSize)
	}
	q := spatialHistogram(probe, m.GridX, m.GridY)

	bestLabel, bestDist := int64(0), math.Inf(1)
	for i, h := range m.Histograms {
		if d := chiSquare(q, h); d < bestDist {
			bestDist = d
			bestLabel = m.Labels[i]
		}
	}
	return bestLabel, bestDist, nil
}
