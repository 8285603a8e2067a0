package ui

import (
	"strings"
	"sync"
	"time"

	"yolodesk/internal/ui/cwidget"

	"fyne.io/fyne/v2"
)

// logPump buffers formatted log lines from any goroutine and appends them to
// the log view on the UI goroutine, in arrival order.
type logPump struct {
	mu      sync.Mutex
	pending []string
	done    chan struct{}
	once    sync.Once
}

func (p *logPump) push(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, line)
}

func (p *logPump) flush() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		return ""
	}

	text := strings.Join(p.pending, "")
	p.pending = nil

	return text
}

func (p *logPump) init() {
	p.once.Do(func() { p.done = make(chan struct{}) })
}

func (p *logPump) run(view *cwidget.LogView) {
	p.init()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if text := p.flush(); text != "" {
				fyne.Do(func() { view.Append(text) })
			}
		case <-p.done:
			return
		}
	}
}

func (p *logPump) stop() {
	p.init()

	select {
	case <-p.done:
	default:
		close(p.done)
	}
}
