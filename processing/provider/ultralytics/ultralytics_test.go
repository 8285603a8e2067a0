package ultralytics

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"yolodesk/internal/models"
	"yolodesk/processing/provider"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestProvider runs this test binary as the bridge, in the given scenario.
func newTestProvider(t *testing.T, scenario string) *Provider {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	p := New("python3", log)
	p.command = func(ctx context.Context, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HELPER_SCENARIO="+scenario)
		return cmd
	}

	return p
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	args = args[1:]

	os.Exit(fakeBridge(os.Getenv("HELPER_SCENARIO"), args[0], args[1:]))
}

func fakeBridge(scenario, mode string, args []string) int {
	fs := flag.NewFlagSet(mode, flag.ContinueOnError)
	modelSpec := fs.String("model", "", "")
	data := fs.String("data", "", "")
	epochs := fs.Int("epochs", 0, "")
	fs.Int("batch", 0, "")
	fs.Int("imgsz", 0, "")
	fs.String("device", "", "")
	project := fs.String("project", "", "")
	name := fs.String("name", "", "")
	conf := fs.Float64("conf", 0, "")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	emit := func(v any) {
		b, _ := json.Marshal(v)
		fmt.Println(string(b))
	}

	switch scenario {
	case "train":
		in := bufio.NewReader(os.Stdin)
		fmt.Println("Ultralytics 8.3.0 Python-3.11 torch-2.4.0 CPU")
		for e := 0; e < *epochs; e++ {
			emit(map[string]any{"event": eventEpochStart, "epoch": e, "epochs": *epochs})
			for b := 0; b < 3; b++ {
				emit(map[string]any{
					"event": eventBatchEnd, "epoch": e, "epochs": *epochs, "batches": 3,
					"loss_names": []string{"box_loss", "cls_loss"},
					"loss_items": []float64{1.5, 0.25},
				})
				line, err := in.ReadBytes('\n')
				if err != nil {
					return 3
				}
				var r reply
				if err := json.Unmarshal(line, &r); err != nil {
					return 3
				}
				if r.Stop {
					if r.Release {
						fmt.Fprintln(os.Stderr, "released")
					}
					emit(map[string]any{"event": eventAborted})
					return 0
				}
			}
		}
		emit(map[string]any{
			"event":    eventTrainEnd,
			"save_dir": filepath.Join(*project, *name),
			"metrics":  []models.Metric{{Name: "metrics/mAP50(B)", Value: 0.5}, {Name: "fitness", Value: 0.4}},
			"message":  *data,
		})
		return 0

	case "train-error":
		emit(map[string]any{"event": eventError, "message": "Dataset '" + *data + "' does not exist"})
		return 1

	case "crash":
		fmt.Fprintln(os.Stderr, "Traceback: ModuleNotFoundError: No module named 'ultralytics'")
		return 1

	case "predict":
		img, err := png.Decode(os.Stdin)
		if err != nil {
			return 4
		}
		fmt.Println("0: 320x320 1 car, 12.0ms")
		emit(map[string]any{"event": eventDetections, "detections": []models.DetectionResult{{
			Label:      *modelSpec,
			Confidence: float32(*conf),
			Box:        []float32{0, 0, float32(img.Bounds().Dy()) / 10, 1},
		}}})
		return 0
	}

	return 5
}

func TestTrainDeliversHooksInOrder(t *testing.T) {
	p := newTestProvider(t, "train")

	var events []string
	var last *provider.Trainer
	hooks := provider.Hooks{
		OnTrainEpochStart: func(tr *provider.Trainer) { events = append(events, fmt.Sprintf("start %d", tr.Epoch)) },
		OnTrainBatchEnd: func(tr *provider.Trainer) {
			events = append(events, fmt.Sprintf("batch %d/%d", tr.Epoch, tr.Batches))
			last = tr
		},
		OnTrainEnd: func(tr *provider.Trainer) {
			events = append(events, "end")
			last = tr
		},
	}

	err := p.Train(context.Background(), &model{spec: "yolo11n.yaml"}, provider.TrainConfig{
		Data: "data.yaml", Epochs: 2, Batch: 8, ImgSize: 320, Device: "cpu", Project: "runs", Name: "r1",
	}, hooks)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start 0", "batch 0/3", "batch 0/3", "batch 0/3",
		"start 1", "batch 1/3", "batch 1/3", "batch 1/3",
		"end",
	}, events)
	require.NotNil(t, last)
	assert.Equal(t, filepath.Join("runs", "r1"), last.SaveDir)
	assert.Len(t, last.Metrics, 2)
	assert.Equal(t, "metrics/mAP50(B)", last.Metrics[0].Name)
}

func TestTrainStopFromHook(t *testing.T) {
	p := newTestProvider(t, "train")

	batches := 0
	ended := false
	hooks := provider.Hooks{
		OnTrainBatchEnd: func(tr *provider.Trainer) {
			batches++
			if batches == 2 {
				tr.Stop()
				tr.Release()
			}
		},
		OnTrainEnd: func(*provider.Trainer) { ended = true },
	}

	err := p.Train(context.Background(), &model{spec: "yolo11n.yaml"}, provider.TrainConfig{
		Data: "data.yaml", Epochs: 5, Project: "runs", Name: "r1",
	}, hooks)

	assert.ErrorIs(t, err, provider.ErrAborted)
	assert.Equal(t, 2, batches)
	assert.False(t, ended)
}

func TestTrainReportsBridgeError(t *testing.T) {
	p := newTestProvider(t, "train-error")

	err := p.Train(context.Background(), &model{spec: "yolo11n.yaml"}, provider.TrainConfig{Data: "missing.yaml"}, provider.Hooks{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.yaml")
}

func TestTrainReportsCrashWithStderr(t *testing.T) {
	p := newTestProvider(t, "crash")

	err := p.Train(context.Background(), &model{spec: "yolo11n.yaml"}, provider.TrainConfig{}, provider.Hooks{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "No module named 'ultralytics'")
}

func TestPredict(t *testing.T) {
	p := newTestProvider(t, "predict")

	img := image.NewRGBA(image.Rect(0, 0, 4, 5))
	dets, err := p.Predict(context.Background(), &model{spec: "best.pt"}, img, 0.25)
	require.NoError(t, err)

	require.Len(t, dets, 1)
	assert.Equal(t, "best.pt", dets[0].Label)
	assert.InDelta(t, 0.25, dets[0].Confidence, 1e-6)
	assert.InDelta(t, 0.5, dets[0].Box[2], 1e-6)
}

func TestPredictCrash(t *testing.T) {
	p := newTestProvider(t, "crash")

	_, err := p.Predict(context.Background(), &model{spec: "best.pt"}, image.NewRGBA(image.Rect(0, 0, 1, 1)), 0.1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ultralytics")
}

func TestLoad(t *testing.T) {
	p := New("python3", logrus.New())
	dir := t.TempDir()

	weights := filepath.Join(dir, "best.pt")
	require.NoError(t, os.WriteFile(weights, []byte("weights"), 0644))
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0644))

	m, err := p.Load(weights)
	require.NoError(t, err)
	assert.Equal(t, weights, m.Spec())

	m, err = p.Load("yolo11n.yaml")
	require.NoError(t, err)
	assert.Equal(t, "yolo11n.yaml", m.Spec())

	for _, bad := range []string{"", notes, filepath.Join(dir, "absent.pt"), "custom.pt"} {
		_, err := p.Load(bad)
		assert.ErrorIs(t, err, ErrUnknownModel, bad)
	}
}

func TestBridgeScriptEmbedded(t *testing.T) {
	assert.True(t, bytes.Contains([]byte(bridgeScript), []byte("on_train_batch_end")))
}
