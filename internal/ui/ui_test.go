package ui

import (
	"testing"
	"time"

	"yolodesk/internal/models"

	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressViewNeverRegresses(t *testing.T) {
	p := &progressView{}

	_, ok := p.take()
	assert.False(t, ok)

	p.offer(models.ProgressEvent{Epoch: 1, Epochs: 3, EpochProgress: 50})
	p.offer(models.ProgressEvent{Epoch: 1, Epochs: 3, EpochProgress: 100})

	ev, ok := p.take()
	require.True(t, ok)
	assert.Equal(t, 100, ev.EpochProgress)
	assert.Equal(t, "1/3", formatEpoch(ev))

	_, ok = p.take()
	assert.False(t, ok, "already drawn")
}

func TestProgressViewIgnoresZeroEvent(t *testing.T) {
	p := &progressView{}

	p.offer(models.ProgressEvent{Epoch: 2, Epochs: 2, EpochProgress: 10})
	p.offer(models.ProgressEvent{})

	ev, ok := p.take()
	require.True(t, ok)
	assert.Equal(t, 2, ev.Epoch)
}

func TestClearProgressBlanksPreviousRun(t *testing.T) {
	test.NewTempApp(t)

	a := &TrainerApp{
		progress:    &progressView{},
		epochLabel:  widget.NewLabel(""),
		progressBar: widget.NewProgressBar(),
		metricsText: widget.NewLabel(""),
	}
	a.progressBar.Max = 100

	a.drawProgress(models.ProgressEvent{Epoch: 3, Epochs: 3, EpochProgress: 100, Metrics: "box_loss: 0.5000"})
	a.progress.offer(models.ProgressEvent{Epoch: 3, Epochs: 3, EpochProgress: 100})
	require.Equal(t, "3/3", a.epochLabel.Text)

	a.clearProgress()

	assert.Eventually(t, func() bool {
		return a.epochLabel.Text == "0/0" && a.progressBar.Value == 0 && a.metricsText.Text == ""
	}, time.Second, 10*time.Millisecond)

	_, ok := a.progress.take()
	assert.False(t, ok, "stale event dropped")
}

func TestLogPumpKeepsOrder(t *testing.T) {
	p := &logPump{}

	p.push("[INFO] a\n")
	p.push("[WARNING] b\n")

	assert.Equal(t, "[INFO] a\n[WARNING] b\n", p.flush())
	assert.Equal(t, "", p.flush())

	p.stop()
	p.stop()
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "No objects detected", summarize(nil))
	assert.Equal(t, "3 objects: 2 car 1 bus", summarize([]models.DetectionResult{
		{Label: "car"}, {Label: "bus"}, {Label: "car"},
	}))
}
