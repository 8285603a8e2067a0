package trainer

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"yolodesk/internal/models"
	"yolodesk/processing/provider"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fakeModel string

func (m fakeModel) Spec() string { return string(m) }

// fakeProvider plays a scripted training run through the hooks.
type fakeProvider struct {
	mu sync.Mutex

	batches  int
	step     chan struct{}
	trainErr error
	failLoad map[string]bool
	// noBest makes every best.pt checkpoint unloadable.
	noBest bool

	loads      []string
	trainCfg   provider.TrainConfig
	trainModel string
	batchesRun int
	released   bool

	dets        []models.DetectionResult
	predictConf float64
	predictErr  error
	predictGate chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{batches: 2, failLoad: map[string]bool{}}
}

func (f *fakeProvider) Load(spec string) (provider.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failLoad[spec] || (f.noBest && strings.HasSuffix(spec, "best.pt")) {
		return nil, errors.New("cannot load " + spec)
	}
	f.loads = append(f.loads, spec)
	return fakeModel(spec), nil
}

func (f *fakeProvider) Train(ctx context.Context, m provider.Model, cfg provider.TrainConfig, hooks provider.Hooks) error {
	f.mu.Lock()
	f.trainCfg = cfg
	f.trainModel = m.Spec()
	f.mu.Unlock()

	for e := 0; e < cfg.Epochs; e++ {
		hooks.OnTrainEpochStart(&provider.Trainer{Epoch: e, Epochs: cfg.Epochs, Batches: f.batches})

		for b := 0; b < f.batches; b++ {
			if f.step != nil {
				select {
				case <-f.step:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			t := &provider.Trainer{
				Epoch:     e,
				Epochs:    cfg.Epochs,
				Batches:   f.batches,
				LossNames: []string{"box_loss", "cls_loss", "dfl_loss"},
				LossItems: []float64{1.25, 0.5, 1},
			}
			hooks.OnTrainBatchEnd(t)

			f.mu.Lock()
			f.batchesRun++
			f.released = t.Released()
			f.mu.Unlock()

			if t.ShouldStop() {
				return provider.ErrAborted
			}
		}
	}

	hooks.OnTrainEnd(&provider.Trainer{
		Epoch:   cfg.Epochs - 1,
		Epochs:  cfg.Epochs,
		SaveDir: filepath.Join(cfg.Project, cfg.Name),
		Metrics: []models.Metric{
			{Name: "metrics/precision(B)", Value: 0.75},
			{Name: "metrics/mAP50(B)", Value: 0.5},
		},
	})

	return f.trainErr
}

func (f *fakeProvider) Predict(ctx context.Context, m provider.Model, img image.Image, conf float64) ([]models.DetectionResult, error) {
	if f.predictGate != nil {
		<-f.predictGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.predictConf = conf
	return f.dets, f.predictErr
}

type shown struct {
	title string
	img   image.Image
	dets  []models.DetectionResult
}

type fakeViewer struct {
	mu    sync.Mutex
	shown []shown
}

func (v *fakeViewer) Show(title string, img image.Image, dets []models.DetectionResult) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shown = append(v.shown, shown{title, img, dets})
}

func newTestWorker(t *testing.T, p provider.Provider, opts ...Option) (*Worker, *test.Hook) {
	t.Helper()

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	w, err := New(p, log, opts...)
	require.NoError(t, err)
	t.Cleanup(w.Close)

	return w, hook
}

func writeDataset(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for _, split := range []string{"train", "val"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "images", split), 0755))
	}

	path := filepath.Join(dir, "data.yaml")
	require.NoError(t, os.WriteFile(path, []byte("train: images/train\nval: images/val\nnames:\n  0: car\n"), 0644))

	return path
}

func writeImage(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "1.PNG")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 64, 48))))
	return path
}

func entriesAt(hook *test.Hook, level logrus.Level) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

func drain(ch <-chan models.ProgressEvent) []models.ProgressEvent {
	var out []models.ProgressEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
