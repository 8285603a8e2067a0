package models

// ProgressEvent is a snapshot of a running training session, emitted once per
// finished batch.
type ProgressEvent struct {
	Epoch         int    `json:"epoch"`
	Epochs        int    `json:"epochs"`
	EpochProgress int    `json:"epoch_progress"`
	Metrics       string `json:"metrics"`
}

// IsZero reports whether the event carries no data. Such events are ignored by
// consumers.
func (e ProgressEvent) IsZero() bool {
	return e == ProgressEvent{}
}

type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}
