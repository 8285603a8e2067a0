package provider

import (
	"context"
	"image"
	"testing"

	"yolodesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type specModel string

func (m specModel) Spec() string { return string(m) }

type baseProvider struct{ predicted bool }

func (b *baseProvider) Load(spec string) (Model, error) { return specModel(spec), nil }

func (b *baseProvider) Train(ctx context.Context, m Model, cfg TrainConfig, hooks Hooks) error {
	return nil
}

func (b *baseProvider) Predict(ctx context.Context, m Model, img image.Image, conf float64) ([]models.DetectionResult, error) {
	b.predicted = true
	return nil, nil
}

type fixedPredictor []models.DetectionResult

func (f fixedPredictor) Predict(ctx context.Context, m Model, img image.Image, conf float64) ([]models.DetectionResult, error) {
	return f, nil
}

func TestWithPredictorOverridesInferenceOnly(t *testing.T) {
	base := &baseProvider{}
	want := fixedPredictor{{Label: "car", Confidence: 0.9, Box: []float32{0, 0, 1, 1}}}

	p := WithPredictor(base, want)

	m, err := p.Load("yolo11n.yaml")
	require.NoError(t, err)
	assert.Equal(t, "yolo11n.yaml", m.Spec())

	got, err := p.Predict(context.Background(), m, image.NewRGBA(image.Rect(0, 0, 1, 1)), 0.5)
	require.NoError(t, err)
	assert.Equal(t, []models.DetectionResult(want), got)
	assert.False(t, base.predicted)
}

func TestTrainerLossesPairsNames(t *testing.T) {
	tr := &Trainer{
		LossNames: []string{"box_loss", "cls_loss", "dfl_loss"},
		LossItems: []float64{1.5, 2.25},
	}

	assert.Equal(t, []models.Metric{
		{Name: "box_loss", Value: 1.5},
		{Name: "cls_loss", Value: 2.25},
	}, tr.Losses())
}

func TestTrainerStopAndRelease(t *testing.T) {
	tr := &Trainer{}
	assert.False(t, tr.ShouldStop())

	tr.Stop()
	tr.Release()

	assert.True(t, tr.ShouldStop())
	assert.True(t, tr.Released())
}
