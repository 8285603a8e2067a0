package provider

import "yolodesk/internal/models"

// Trainer is the training state handed to hooks.
type Trainer struct {
	// Epoch is zero based.
	Epoch     int
	Epochs    int
	Batches   int
	LossNames []string
	LossItems []float64
	SaveDir   string
	Metrics   []models.Metric

	stop    bool
	release bool
}

// Stop asks the provider to end the run once the current hook returns.
func (t *Trainer) Stop() {
	t.stop = true
}

// Release asks the provider to drop its model and validator references
// before it unwinds.
func (t *Trainer) Release() {
	t.release = true
}

func (t *Trainer) ShouldStop() bool {
	return t.stop
}

func (t *Trainer) Released() bool {
	return t.release
}

// Losses pairs loss names with their current values. Extra values without a
// name are dropped.
func (t *Trainer) Losses() []models.Metric {
	n := len(t.LossNames)
	if len(t.LossItems) < n {
		n = len(t.LossItems)
	}

	out := make([]models.Metric, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Metric{Name: t.LossNames[i], Value: t.LossItems[i]})
	}

	return out
}
