// Package trainer runs training and analysis off the UI goroutine and reports
// progress back over a channel.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"yolodesk/internal/models"
	"yolodesk/processing/dataset"
	"yolodesk/processing/detector"
	"yolodesk/processing/imaging"
	"yolodesk/processing/provider"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrBusy         = errors.New("a task is already running")
	ErrInvalidValue = errors.New("invalid value")
	ErrPathNotFound = errors.New("path not found")
	ErrClosed       = errors.New("worker closed")
)

const (
	DefaultBaseModel   = "yolo11n.yaml"
	DefaultProjectDir  = "./my_runs"
	defaultEventBuffer = 64
)

// Viewer displays the outcome of an image analysis.
type Viewer interface {
	Show(title string, img image.Image, detections []models.DetectionResult)
}

type Option func(*Worker)

func WithViewer(v Viewer) Option {
	return func(w *Worker) { w.viewer = v }
}

func WithBaseModel(spec string) Option {
	return func(w *Worker) { w.baseSpec = spec }
}

func WithProjectDir(dir string) Option {
	return func(w *Worker) { w.project = dir }
}

func WithSession(s Session) Option {
	return func(w *Worker) { w.session = s }
}

func WithEventBuffer(n int) Option {
	return func(w *Worker) { w.bufSize = n }
}

// Worker owns the session, the model handle and the abort flag. At most one
// background task (training or analysis) runs at a time.
type Worker struct {
	mu             sync.Mutex
	session        Session
	model          provider.Model
	weightsApplied bool

	baseSpec string
	project  string
	bufSize  int

	p      provider.Provider
	log    *logrus.Logger
	viewer Viewer

	events chan models.ProgressEvent
	busy   atomic.Bool
	abort  atomic.Bool
	// training is set under mu while a training run owns the busy slot.
	training bool

	// step counts finished batches of the current epoch. Only hooks touch it.
	step int

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
	closeOnce sync.Once
}

func DefaultSession() Session {
	return Session{
		Dataset:    "dataset/data.yaml",
		Epochs:     1,
		Batch:      8,
		ImageSize:  320,
		Device:     "cpu",
		Confidence: 0.1,
	}
}

// New builds a worker and constructs the base model.
func New(p provider.Provider, log *logrus.Logger, opts ...Option) (*Worker, error) {
	w := &Worker{
		session:  DefaultSession(),
		baseSpec: DefaultBaseModel,
		project:  DefaultProjectDir,
		bufSize:  defaultEventBuffer,
		p:        p,
		log:      log,
	}

	for _, opt := range opts {
		opt(w)
	}

	if err := w.session.Validate(); err != nil {
		return nil, err
	}

	m, err := p.Load(w.baseSpec)
	if err != nil {
		return nil, fmt.Errorf("load base model %s: %w", w.baseSpec, err)
	}
	w.model = m

	if w.bufSize < 1 {
		w.bufSize = 1
	}
	w.events = make(chan models.ProgressEvent, w.bufSize)
	w.ctx, w.cancel = context.WithCancel(context.Background())

	return w, nil
}

// Events delivers progress in emission order. When the reader falls behind
// the oldest pending event is dropped.
func (w *Worker) Events() <-chan models.ProgressEvent {
	return w.events
}

func (w *Worker) Busy() bool {
	return w.busy.Load()
}

// Snapshot returns a copy of the current session.
func (w *Worker) Snapshot() Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

func (w *Worker) ModelSpec() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model.Spec()
}

func (w *Worker) WeightsApplied() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.weightsApplied
}

// Configure sets one session field from its text form. Invalid input leaves
// the session untouched and is logged as a warning.
func (w *Worker) Configure(field Field, value string) error {
	w.mu.Lock()
	next, err := w.session.with(field, value)
	if err == nil {
		w.session = next
	}
	w.mu.Unlock()

	if err != nil {
		w.log.WithField("field", string(field)).Warn(err.Error())
		return err
	}

	w.log.WithField("field", string(field)).Debugf("set to %q", value)
	return nil
}

func (w *Worker) SetDatasetPath(path string) error {
	if err := w.checkPath(path, "Wrong path for dataset"); err != nil {
		return err
	}
	if err := w.Configure(FieldDataset, path); err != nil {
		return err
	}
	w.log.Info("Dataset path updated")
	return nil
}

func (w *Worker) SetWeightsPath(path string) error {
	if err := w.checkPath(path, "Wrong path for weights"); err != nil {
		return err
	}
	if err := w.Configure(FieldWeights, path); err != nil {
		return err
	}
	w.log.Info("Weights path updated")
	return nil
}

func (w *Worker) SetAnalysedFilePath(path string) error {
	if err := w.checkPath(path, "Wrong path for file"); err != nil {
		return err
	}
	return w.Configure(FieldAnalysedFile, path)
}

func (w *Worker) checkPath(path, msg string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		w.log.WithField("path", path).Info(msg)
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	return nil
}

// LoadWeights replaces the model with one built from the session weights
// path. On failure the previous model is kept.
func (w *Worker) LoadWeights() error {
	path := w.Snapshot().Weights

	m, err := w.p.Load(path)
	if err != nil {
		w.log.Warn("Need to setup correct path for weights file\n" + err.Error())
		return err
	}

	w.mu.Lock()
	w.model = m
	w.weightsApplied = true
	w.mu.Unlock()

	w.log.WithField("weights", path).Info("Weights applied")
	return nil
}

// DiscardWeights goes back to the untrained base model.
func (w *Worker) DiscardWeights() error {
	m, err := w.p.Load(w.baseSpec)
	if err != nil {
		w.log.Warn("Cannot rebuild base model\n" + err.Error())
		return err
	}

	w.mu.Lock()
	w.model = m
	w.weightsApplied = false
	w.mu.Unlock()

	w.log.Info("Weights discarded")
	return nil
}

// StartTraining launches a run with the current session on a background
// goroutine. It returns ErrBusy while another task is running.
func (w *Worker) StartTraining() error {
	if !w.busy.CompareAndSwap(false, true) {
		w.log.Warn("Another task is running. Abort it or wait for it to finish.")
		return ErrBusy
	}

	m, err := w.track(true)
	if err != nil {
		w.busy.Store(false)
		return err
	}

	s := w.Snapshot()
	if err := w.checkDataset(s.Dataset); err != nil {
		w.done()
		return err
	}

	w.step = 0

	cfg := provider.TrainConfig{
		Data:    s.Dataset,
		Epochs:  s.Epochs,
		Batch:   s.Batch,
		ImgSize: s.ImageSize,
		Device:  s.Device,
		Project: w.project,
		Name:    "train-" + uuid.NewString()[:8],
	}

	go w.runTraining(m, cfg)

	return nil
}

func (w *Worker) checkDataset(path string) error {
	if _, err := os.Stat(path); err != nil {
		// Bare names such as "coco8.yaml" are resolved by the provider.
		if filepath.Base(path) == path && strings.HasSuffix(path, ".yaml") {
			return nil
		}
		w.log.WithField("path", path).Warn("Dataset descriptor not found")
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}

	ds, err := dataset.Load(path)
	if err != nil {
		w.log.WithField("path", path).Warn(err.Error())
		return err
	}

	w.log.WithField("path", path).Info("Dataset: " + ds.Summary())
	for _, missing := range ds.Missing() {
		w.log.WithField("path", missing).Warn("Dataset split not found")
	}

	return nil
}

// track registers a background task and returns the model it should use.
// A training task also clears any abort request left from an earlier run.
func (w *Worker) track(training bool) (provider.Model, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	w.wg.Add(1)
	w.training = training
	if training {
		w.abort.Store(false)
	}

	return w.model, nil
}

// done releases the slot taken by track.
func (w *Worker) done() {
	w.mu.Lock()
	w.training = false
	w.mu.Unlock()

	w.busy.Store(false)
	w.wg.Done()
}

func (w *Worker) runTraining(m provider.Model, cfg provider.TrainConfig) {
	defer w.done()

	w.log.WithFields(logrus.Fields{
		"run":    cfg.Name,
		"model":  m.Spec(),
		"epochs": cfg.Epochs,
		"batch":  cfg.Batch,
		"imgsz":  cfg.ImgSize,
		"device": cfg.Device,
	}).Info("Start training")

	var saveDir string
	hooks := provider.Hooks{
		OnTrainEpochStart: func(*provider.Trainer) { w.step = 0 },
		OnTrainBatchEnd:   func(t *provider.Trainer) { w.onBatchEnd(t, cfg.Epochs) },
		OnTrainEnd: func(t *provider.Trainer) {
			saveDir = t.SaveDir
			w.onTrainEnd(t)
		},
	}

	err := w.p.Train(w.ctx, m, cfg, hooks)
	switch {
	case err == nil:
		w.adoptTrained(saveDir)
	case errors.Is(err, provider.ErrAborted):
		w.log.WithField("run", cfg.Name).Info("Training aborted")
	case errors.Is(err, context.Canceled):
		w.log.WithField("run", cfg.Name).Info("Training cancelled on shutdown")
	default:
		w.log.WithField("run", cfg.Name).Error(err.Error())
	}
}

func (w *Worker) onBatchEnd(t *provider.Trainer, epochs int) {
	if w.abort.Load() {
		t.Stop()
		t.Release()
		return
	}

	w.step++

	w.emit(models.ProgressEvent{
		Epoch:         t.Epoch + 1,
		Epochs:        epochs,
		EpochProgress: percent(w.step, t.Batches),
		Metrics:       formatMetrics(t.Losses()),
	})
}

func (w *Worker) onTrainEnd(t *provider.Trainer) {
	var b strings.Builder

	b.WriteString("Training finished.\n")
	b.WriteString("Result directory: " + t.SaveDir + "\n")
	for _, m := range t.Metrics {
		b.WriteString(m.Name + ": " + strconv.FormatFloat(m.Value, 'f', -1, 64) + "\n")
	}

	w.log.Info(b.String())
}

// adoptTrained switches the model to the checkpoint written by a finished
// run, best.pt first, then last.pt.
func (w *Worker) adoptTrained(saveDir string) {
	if saveDir == "" {
		w.log.Warn("Training result directory unknown, keeping previous model")
		return
	}

	for _, name := range []string{"best.pt", "last.pt"} {
		path := filepath.Join(saveDir, "weights", name)

		m, err := w.p.Load(path)
		if err != nil {
			w.log.WithField("weights", path).Debug(err.Error())
			continue
		}

		w.mu.Lock()
		w.model = m
		w.mu.Unlock()

		w.log.WithField("weights", path).Info("Model switched to trained weights")
		return
	}

	w.log.WithField("dir", saveDir).Warn("No trained weights found, keeping previous model")
}

func (w *Worker) emit(ev models.ProgressEvent) {
	for {
		select {
		case w.events <- ev:
			return
		default:
		}

		select {
		case <-w.events:
		default:
		}
	}
}

// AbortTraining asks the running training to stop. The run ends at its next
// batch boundary.
func (w *Worker) AbortTraining() {
	w.mu.Lock()
	training := w.training
	if training {
		w.abort.Store(true)
	}
	w.mu.Unlock()

	if !training {
		w.log.Info("No training in progress")
		return
	}

	w.log.Info("Abort requested, stopping after the current batch")
}

// AnalyseImage runs inference on the session image in the background and
// hands the annotated result to the viewer.
func (w *Worker) AnalyseImage() error {
	s := w.Snapshot()
	if err := w.checkPath(s.AnalysedFile, "Wrong path for file"); err != nil {
		return err
	}

	if !w.busy.CompareAndSwap(false, true) {
		w.log.Warn("Cannot analyse while another task is running")
		return ErrBusy
	}

	m, err := w.track(false)
	if err != nil {
		w.busy.Store(false)
		return err
	}

	go w.runAnalysis(m, s.AnalysedFile, s.Confidence)

	return nil
}

func (w *Worker) runAnalysis(m provider.Model, path string, conf float64) {
	defer w.done()

	img, _, err := imaging.Load(path)
	if err != nil {
		w.log.Warn(err.Error())
		return
	}

	dets, err := w.p.Predict(w.ctx, m, img, conf)
	if err != nil {
		w.log.WithField("path", path).Error(err.Error())
		return
	}

	w.log.WithFields(logrus.Fields{
		"path": path,
		"conf": conf,
	}).Infof("%d objects detected", len(dets))

	if w.viewer != nil {
		w.viewer.Show(filepath.Base(path), detector.Annotate(img, dets), dets)
	}
}

// Wait blocks until the current background task returns.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Close cancels any running task, waits for it and closes the event channel.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		w.cancel()
		w.wg.Wait()
		close(w.events)
	})
}

func percent(step, total int) int {
	if total <= 0 {
		return 0
	}

	p := int(math.Round(float64(step) / float64(total) * 100))
	if p > 100 {
		p = 100
	}

	return p
}

func formatMetrics(losses []models.Metric) string {
	lines := make([]string, 0, len(losses))
	for _, l := range losses {
		lines = append(lines, l.Name+": "+strconv.FormatFloat(l.Value, 'f', 4, 64))
	}
	return strings.Join(lines, "\n")
}
