package ultralytics

import (
	"yolodesk/internal/models"
	"yolodesk/processing/provider"
)

const (
	eventEpochStart = "epoch_start"
	eventBatchEnd   = "batch_end"
	eventTrainEnd   = "train_end"
	eventAborted    = "aborted"
	eventError      = "error"
	eventDetections = "detections"
)

// message is one line written by the bridge on stdout.
type message struct {
	Event      string                   `json:"event"`
	Epoch      int                      `json:"epoch"`
	Epochs     int                      `json:"epochs"`
	Batches    int                      `json:"batches"`
	LossNames  []string                 `json:"loss_names"`
	LossItems  []float64                `json:"loss_items"`
	SaveDir    string                   `json:"save_dir"`
	Metrics    []models.Metric          `json:"metrics"`
	Message    string                   `json:"message"`
	Detections []models.DetectionResult `json:"detections"`
}

// reply answers a batch_end message; the bridge blocks until it arrives.
type reply struct {
	Stop    bool `json:"stop"`
	Release bool `json:"release"`
}

func (m *message) trainer() *provider.Trainer {
	return &provider.Trainer{
		Epoch:     m.Epoch,
		Epochs:    m.Epochs,
		Batches:   m.Batches,
		LossNames: m.LossNames,
		LossItems: m.LossItems,
		SaveDir:   m.SaveDir,
		Metrics:   m.Metrics,
	}
}
