package ui

import (
	"fmt"
	"sync"
	"time"

	"yolodesk/internal/models"

	"fyne.io/fyne/v2"
)

// progressView holds the latest event not yet drawn. Events are offered in
// arrival order, so the drawn state never goes back to an older event.
type progressView struct {
	mu    sync.Mutex
	last  models.ProgressEvent
	dirty bool
}

func (p *progressView) offer(ev models.ProgressEvent) {
	if ev.IsZero() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = ev
	p.dirty = true
}

// take returns the pending event, if any, and marks it drawn.
func (p *progressView) take() (models.ProgressEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.dirty {
		return models.ProgressEvent{}, false
	}
	p.dirty = false

	return p.last, true
}

// reset forgets any event of a previous run that was not drawn yet.
func (p *progressView) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = models.ProgressEvent{}
	p.dirty = false
}

func formatEpoch(ev models.ProgressEvent) string {
	return fmt.Sprintf("%d/%d", ev.Epoch, ev.Epochs)
}

func (a *TrainerApp) runProgressLoop() {
	uiTicker := time.NewTicker(100 * time.Millisecond)
	defer uiTicker.Stop()

	events := a.worker.Events()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.progress.offer(ev)

		case <-uiTicker.C:
			ev, ok := a.progress.take()
			if !ok {
				continue
			}

			fyne.Do(func() { a.drawProgress(ev) })
		}
	}
}

func (a *TrainerApp) drawProgress(ev models.ProgressEvent) {
	a.epochLabel.SetText(formatEpoch(ev))
	a.progressBar.SetValue(float64(ev.EpochProgress))
	a.metricsText.SetText(ev.Metrics)
}

// clearProgress blanks the epoch counter, the bar and the metrics.
func (a *TrainerApp) clearProgress() {
	a.progress.reset()
	fyne.Do(func() {
		a.epochLabel.SetText(formatEpoch(models.ProgressEvent{}))
		a.progressBar.SetValue(0)
		a.metricsText.SetText("")
	})
}
