// Package ultralytics runs YOLO training and inference through the ultralytics
// Python package. Each call starts the embedded bridge script in a fresh
// interpreter and talks to it over line delimited JSON on stdin/stdout.
package ultralytics

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"yolodesk/internal/models"
	"yolodesk/processing/provider"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//go:embed bridge.py
var bridgeScript string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUnknownModel is returned by Load for specs that are neither an existing
// model file nor a builtin model name.
var ErrUnknownModel = errors.New("unknown model spec")

var modelExts = map[string]bool{
	".pt":          true,
	".yaml":        true,
	".yml":         true,
	".onnx":        true,
	".torchscript": true,
	".engine":      true,
}

type model struct {
	spec string
}

func (m *model) Spec() string { return m.spec }

type Provider struct {
	python string
	log    *logrus.Logger

	command func(ctx context.Context, args ...string) *exec.Cmd
}

func New(python string, log *logrus.Logger) *Provider {
	p := &Provider{
		python: python,
		log:    log,
	}
	p.command = p.bridgeCommand

	return p
}

func (p *Provider) bridgeCommand(ctx context.Context, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, p.python, append([]string{"-c", bridgeScript}, args...)...)
}

// Load validates spec and returns a handle for it. Builtin names such as
// "yolo11n.yaml" or "yolo11s.pt" are resolved by the library itself.
func (p *Provider) Load(spec string) (provider.Model, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.Wrap(ErrUnknownModel, "empty model spec")
	}

	ext := strings.ToLower(filepath.Ext(spec))
	if !modelExts[ext] {
		return nil, errors.Wrapf(ErrUnknownModel, "unsupported model file %q", spec)
	}

	info, err := os.Stat(spec)
	switch {
	case err == nil && info.IsDir():
		return nil, errors.Wrapf(ErrUnknownModel, "%q is a directory", spec)
	case err == nil:
		return &model{spec: spec}, nil
	case filepath.Base(spec) == spec && strings.HasPrefix(strings.ToLower(spec), "yolo"):
		return &model{spec: spec}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownModel, "model file %q: %v", spec, err)
	}
}

func (p *Provider) Train(ctx context.Context, m provider.Model, cfg provider.TrainConfig, hooks provider.Hooks) error {
	cmd := p.command(ctx,
		"train",
		"--model", m.Spec(),
		"--data", cfg.Data,
		"--epochs", strconv.Itoa(cfg.Epochs),
		"--batch", strconv.Itoa(cfg.Batch),
		"--imgsz", strconv.Itoa(cfg.ImgSize),
		"--device", cfg.Device,
		"--project", cfg.Project,
		"--name", cfg.Name,
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "bridge stdin")
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "bridge stdout")
	}

	stderr := p.stderrWriter()
	defer stderr.Close()
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "start bridge")
	}

	aborted, bridgeErr := p.serveTraining(stdout, stdin, hooks)

	stdin.Close()
	waitErr := cmd.Wait()

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case aborted:
		return provider.ErrAborted
	case bridgeErr != nil:
		return bridgeErr
	case waitErr != nil:
		return errors.Wrapf(waitErr, "bridge exited: %s", stderr.Tail())
	}

	return nil
}

// serveTraining reads hook messages until the bridge closes stdout.
func (p *Provider) serveTraining(stdout io.Reader, stdin io.Writer, hooks provider.Hooks) (aborted bool, bridgeErr error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		msg, ok := p.decode(scanner.Bytes())
		if !ok {
			continue
		}

		switch msg.Event {
		case eventEpochStart:
			call(hooks.OnTrainEpochStart, msg.trainer())

		case eventBatchEnd:
			t := msg.trainer()
			call(hooks.OnTrainBatchEnd, t)

			b, _ := json.Marshal(reply{Stop: t.ShouldStop(), Release: t.Released()})
			if _, err := stdin.Write(append(b, '\n')); err != nil {
				p.log.WithError(err).Debug("bridge reply not delivered")
			}

		case eventTrainEnd:
			call(hooks.OnTrainEnd, msg.trainer())

		case eventAborted:
			aborted = true

		case eventError:
			bridgeErr = errors.New(msg.Message)
		}
	}

	if err := scanner.Err(); err != nil && bridgeErr == nil {
		bridgeErr = errors.Wrap(err, "read bridge output")
	}

	return aborted, bridgeErr
}

func (p *Provider) Predict(ctx context.Context, m provider.Model, img image.Image, conf float64) ([]models.DetectionResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "encode image")
	}

	cmd := p.command(ctx,
		"predict",
		"--model", m.Spec(),
		"--conf", strconv.FormatFloat(conf, 'f', -1, 64),
	)
	cmd.Stdin = &buf

	stderr := p.stderrWriter()
	defer stderr.Close()
	cmd.Stderr = stderr

	out, runErr := cmd.Output()

	for _, line := range bytes.Split(out, []byte("\n")) {
		msg, ok := p.decode(line)
		if !ok {
			continue
		}

		switch msg.Event {
		case eventDetections:
			return msg.Detections, nil
		case eventError:
			return nil, errors.New(msg.Message)
		}
	}

	if runErr != nil {
		return nil, errors.Wrapf(runErr, "bridge exited: %s", stderr.Tail())
	}

	return nil, errors.New("bridge returned no detections")
}

func (p *Provider) decode(line []byte) (*message, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false
	}

	if line[0] != '{' {
		p.log.Debug(string(line))
		return nil, false
	}

	var msg message
	if err := json.Unmarshal(line, &msg); err != nil {
		p.log.WithError(err).Debugf("undecodable bridge line: %s", line)
		return nil, false
	}

	return &msg, true
}

func call(hook func(*provider.Trainer), t *provider.Trainer) {
	if hook != nil {
		hook(t)
	}
}
