// Package provider defines the contract between the worker and the library
// that owns the detection model: construction, training with hooks, and
// inference.
package provider

import (
	"context"
	"errors"
	"image"

	"yolodesk/internal/models"
)

// ErrAborted is returned by Train when a hook asked the run to stop.
var ErrAborted = errors.New("training aborted")

// Model is an opaque handle to a constructed model. Handles are never
// mutated; loading other weights yields a new handle.
type Model interface {
	Spec() string
}

type TrainConfig struct {
	Data    string
	Epochs  int
	Batch   int
	ImgSize int
	Device  string
	Project string
	Name    string
}

// Hooks are invoked on the goroutine that called Train.
type Hooks struct {
	OnTrainEpochStart func(t *Trainer)
	OnTrainBatchEnd   func(t *Trainer)
	OnTrainEnd        func(t *Trainer)
}

type Predictor interface {
	Predict(ctx context.Context, m Model, img image.Image, conf float64) ([]models.DetectionResult, error)
}

type Provider interface {
	Predictor

	Load(spec string) (Model, error)
	// Train blocks until the run finishes, fails or is stopped from a hook.
	Train(ctx context.Context, m Model, cfg TrainConfig, hooks Hooks) error
}

// WithPredictor returns a provider that trains and loads with base but runs
// inference through p.
func WithPredictor(base Provider, p Predictor) Provider {
	return &composite{Provider: base, predictor: p}
}

type composite struct {
	Provider
	predictor Predictor
}

func (c *composite) Predict(ctx context.Context, m Model, img image.Image, conf float64) ([]models.DetectionResult, error) {
	return c.predictor.Predict(ctx, m, img, conf)
}
