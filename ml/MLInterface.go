package ml

import (
	"errors"

	"traffic/dataset"
)

var (
	// ErrModelConfig marks an architecture that cannot be built for the
	// requested shapes, or a saved state that does not fit it.
	ErrModelConfig = errors.New("invalid model configuration")
	// ErrBadInput marks images or targets that do not match the model.
	ErrBadInput = errors.New("bad model input")
)

// Model is a compiled classifier. Targets are one-hot label vectors.
type Model interface {
	Fit(images []dataset.Image, targets [][]float32, epochs int) ([]EpochStats, error)
	Evaluate(images []dataset.Image, targets [][]float32) (Metrics, error)
	Predict(images []dataset.Image) ([][]float32, error)
	Save(path string) error
	Release()
}

type EpochStats struct {
	Epoch      int
	Loss       float64
	Accuracy   float64
	Samples    int
	Throughput float64 // samples/sec
}

type CategoryStats struct {
	Category  int
	Support   int // test samples of this category
	Predicted int // test samples predicted as this category
	Correct   int
}

func (s CategoryStats) Recall() float64 {
	if s.Support == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Support)
}

func (s CategoryStats) Precision() float64 {
	if s.Predicted == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Predicted)
}

type Metrics struct {
	Loss        float64
	Accuracy    float64
	Samples     int
	PerCategory []CategoryStats
}
