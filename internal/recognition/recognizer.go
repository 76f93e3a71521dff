package recognition

import (
	"fmt"
	"image"
	"time"

	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/vision"
)

// MatchResult is the outcome of one recognition attempt. Label is meaningful
// only when Accepted is true.
type MatchResult struct {
	Label        int64
	Distance     float64
	Confidence   float64
	Tier         Tier
	Accepted     bool
	ModelVersion string
}

// Recognizer matches face crops against whatever model the holder currently publishes.
type Recognizer struct {
	holder *Holder
	prep   *vision.Preprocessor
	policy Policy
}

func NewRecognizer(holder *Holder, prep *vision.Preprocessor, policy Policy) *Recognizer {
	return &Recognizer{holder: holder, prep: prep, policy: policy}
}

// Recognize preprocesses a raw face crop and scores it.
func (r *Recognizer) Recognize(face *image.Gray) (MatchResult, error) {
	model, err := r.holder.Current()
	if err != nil {
		return MatchResult{}, err
	}

	start := time.Now()
	probe, err := r.prep.Process(face)
	if err != nil {
		return MatchResult{}, fmt.Errorf("preprocess probe: %w", err)
	}
	observability.StageDuration.WithLabelValues("preprocess").Observe(time.Since(start).Seconds())

	start = time.Now()
	label, dist, err := model.Match(probe)
	if err != nil {
		return MatchResult{}, err
	}
	observability.StageDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())
	observability.MatchDistance.Observe(dist)

	d := r.policy.Evaluate(dist)
	return MatchResult{
		Label:        label,
		Distance:     dist,
		Confidence:   d.Confidence,
		Tier:         d.Tier,
		Accepted:     d.Accepted,
		ModelVersion: model.Version,
	}, nil
}

// Holder exposes the model publisher for status reporting.
func (r *Recognizer) Holder() *Holder {
	return r.holder
}
