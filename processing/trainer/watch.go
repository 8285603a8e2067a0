package trainer

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const defaultDebounce = 500 * time.Millisecond

// WeightsWatcher reloads the weights into the worker when the weights file
// is rewritten, for example by a finished run saving best.pt, while weights
// are applied.
type WeightsWatcher struct {
	w   *Worker
	fw  *fsnotify.Watcher
	log *logrus.Logger

	mu     sync.Mutex
	target string
	dir    string

	debounce time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

func NewWeightsWatcher(w *Worker, log *logrus.Logger) (*WeightsWatcher, error) {
	return newWeightsWatcher(w, log, defaultDebounce)
}

func newWeightsWatcher(w *Worker, log *logrus.Logger, debounce time.Duration) (*WeightsWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ww := &WeightsWatcher{
		w:        w,
		fw:       fw,
		log:      log,
		debounce: debounce,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go ww.run()

	return ww, nil
}

// Watch switches the watched file to path. The parent directory is watched
// so that replace-by-rename saves are seen too.
func (ww *WeightsWatcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	ww.mu.Lock()
	defer ww.mu.Unlock()

	if dir != ww.dir {
		if ww.dir != "" {
			ww.fw.Remove(ww.dir)
		}
		if err := ww.fw.Add(dir); err != nil {
			ww.dir = ""
			return err
		}
		ww.dir = dir
	}
	ww.target = abs

	return nil
}

func (ww *WeightsWatcher) isTarget(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}

	ww.mu.Lock()
	defer ww.mu.Unlock()
	return abs == ww.target
}

func (ww *WeightsWatcher) run() {
	defer close(ww.stopped)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ww.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-ww.fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !ww.isTarget(ev.Name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(ww.debounce)
			} else {
				timer.Reset(ww.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if ww.w.WeightsApplied() {
				ww.log.Info("Weights file changed, reloading")
				ww.w.LoadWeights()
			}

		case err, ok := <-ww.fw.Errors:
			if !ok {
				return
			}
			ww.log.WithError(err).Warn("weights watcher")
		}
	}
}

func (ww *WeightsWatcher) Close() error {
	close(ww.done)
	err := ww.fw.Close()
	<-ww.stopped
	return err
}
