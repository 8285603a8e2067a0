// Command yolotrain runs a training session without the window, printing
// per-epoch progress bars. Ctrl+C aborts after the current batch; a second
// Ctrl+C kills the run.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"yolodesk/internal/config"
	"yolodesk/internal/logging"
	"yolodesk/internal/models"
	"yolodesk/processing/provider/ultralytics"
	"yolodesk/processing/trainer"

	"github.com/schollz/progressbar/v3"
)

func main() {
	os.Exit(run())
}

func run() int {
	env, _, err := config.LoadEnvironment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	data := flag.String("data", "dataset/data.yaml", "dataset descriptor")
	epochs := flag.String("epochs", "1", "number of epochs")
	batch := flag.String("batch", "8", "batch size, -1 for auto")
	imgsz := flag.String("imgsz", "320", "train image size")
	device := flag.String("device", "cpu", "device: cpu, 0, 0,1, mps")
	weights := flag.String("weights", "", "start from these weights instead of the base model")
	flag.Parse()

	log, _ := logging.New(logging.Options{Level: env.LogLevel, Dir: env.LogDir})

	worker, err := trainer.New(ultralytics.New(env.PythonExe, log), log,
		trainer.WithBaseModel(env.BaseModel),
		trainer.WithProjectDir(env.ProjectDir),
	)
	if err != nil {
		log.Error(err.Error())
		return 1
	}
	defer worker.Close()

	if err := worker.SetDatasetPath(*data); err != nil {
		if err := worker.Configure(trainer.FieldDataset, *data); err != nil {
			return 2
		}
	}

	for field, value := range map[trainer.Field]string{
		trainer.FieldEpochs:    *epochs,
		trainer.FieldBatch:     *batch,
		trainer.FieldImageSize: *imgsz,
		trainer.FieldDevice:    *device,
	} {
		if err := worker.Configure(field, value); err != nil {
			return 2
		}
	}

	if *weights != "" {
		if err := worker.SetWeightsPath(*weights); err != nil {
			return 2
		}
		if err := worker.LoadWeights(); err != nil {
			return 1
		}
	}

	if err := worker.StartTraining(); err != nil {
		return 1
	}

	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	var bar *progressbar.ProgressBar
	epoch := 0
	interrupts := 0
	events := worker.Events()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.IsZero() {
				continue
			}
			if ev.Epoch != epoch {
				epoch = ev.Epoch
				bar = newEpochBar(ev)
			}
			bar.Set(ev.EpochProgress)

		case <-sigs:
			interrupts++
			if interrupts == 1 {
				worker.AbortTraining()
			} else {
				go worker.Close()
			}

		case <-done:
			if bar != nil {
				bar.Finish()
			}
			return 0
		}
	}
}

func newEpochBar(ev models.ProgressEvent) *progressbar.ProgressBar {
	fmt.Fprintln(os.Stderr)

	return progressbar.NewOptions(100,
		progressbar.OptionSetDescription(fmt.Sprintf("epoch %d/%d", ev.Epoch, ev.Epochs)),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
}
