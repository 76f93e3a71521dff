package recognition

import "errors"

var (
	// ErrModelNotTrained means no usable snapshot exists: none was ever
	// persisted, or the current one has zero labels.
	ErrModelNotTrained = errors.New("model not trained")

	// ErrInsufficientTrainingData is returned when the corpus holds no samples.
	// The previously current model is left in place.
	ErrInsufficientTrainingData = errors.New("insufficient training data")
)
